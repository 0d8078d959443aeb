package api

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a request struct against its validator tags. It
// returns nil when the struct is sound, otherwise a field-to-message
// map keyed by the snake_case field names the JSON surface uses, ready
// for RespondValidationError.
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	out := make(map[string]string, len(fieldErrors))
	for _, fe := range fieldErrors {
		out[toSnakeCase(fe.Field())] = messageFor(fe)
	}
	return out
}

// messageFor phrases the failed tag for the caller. Tags without a
// dedicated phrasing fall through to a generic one rather than leaking
// validator internals.
func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// toSnakeCase maps a Go field name onto its JSON form. Each upper-case
// rune starts a new segment, so initialisms split letter by letter.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
