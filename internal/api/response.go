package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/Netflix/dispatch-sub003/internal/errs"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Failed to encode JSON response: %v", err)
		}
	}
}

// RespondError writes a standard error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithCode writes an error response with a machine-readable code.
func RespondErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondValidationError writes field-level validation errors as a 422 response.
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    "validation_error",
		Details: fieldErrors,
	})
}

// RespondNoContent writes a 204 No Content response with no body.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// RespondServiceError maps a service-layer error onto the HTTP envelope.
func RespondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsNotFound(err):
		RespondErrorWithCode(w, http.StatusNotFound, "not_found", err.Error())
	case errs.IsValidation(err):
		RespondErrorWithCode(w, http.StatusBadRequest, "invalid", err.Error())
	case errs.IsConflict(err):
		RespondErrorWithCode(w, http.StatusConflict, "conflict", err.Error())
	case errs.IsForbidden(err):
		RespondErrorWithCode(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		log.Printf("Internal error: %v", err)
		RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
