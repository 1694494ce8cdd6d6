// Package shared holds the JSON response helpers every handler uses, keeping
// the domain-error-to-status mapping in one place.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	domainerrors "onboard/pkg/domainerrors"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error onto an HTTP status and writes the error
// envelope. Errors without a code become 500s with no detail leaked.
func WriteError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	body := ErrorBody{Error: string(code)}
	var de *domainerrors.Error
	if errors.As(err, &de) {
		body.Message = de.Message
	}
	WriteJSON(w, toStatus(code), body)
}

func toStatus(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeBadRequest:
		return http.StatusBadRequest
	case domainerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case domainerrors.CodeForbidden:
		return http.StatusForbidden
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeConflict:
		return http.StatusConflict
	case domainerrors.CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case domainerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
