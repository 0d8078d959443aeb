package handlers

import (
	"net/http"

	"github.com/Netflix/dispatch-sub003/internal/api"
)

// handleIssueMfaChallenge issues a push challenge to the authenticated
// principal for the named action.
func (h *APIHandler) handleIssueMfaChallenge(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	var req api.IssueMfaRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	challenge, err := h.mfa.Issue(r.Context(), project.ID, actor(r), req.Action)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, challenge)
}

// handleResolveMfaChallenge settles a challenge. The caller must be the
// principal the challenge was issued to.
func (h *APIHandler) handleResolveMfaChallenge(w http.ResponseWriter, r *http.Request) {
	if _, err := h.projectFor(r); err != nil {
		api.RespondServiceError(w, err)
		return
	}
	var req api.ResolveMfaRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	challenge, err := h.mfa.Resolve(r.PathValue("uuid"), actor(r), req.Action, *req.Approved)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, challenge)
}
