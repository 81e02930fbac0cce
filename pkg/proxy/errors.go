package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/llmrelay/llmrelay/pkg/dialect"
)

// Error kinds surfaced to clients.
const (
	ErrAuthentication = "authentication_error"
	ErrValidation     = "validation_error"
	ErrInvalidRequest = "invalid_request_error"
	ErrPermission     = "permission_error"
	ErrRateLimit      = "rate_limit_error"
	ErrOverloaded     = "overloaded_error"
	ErrAPI            = "api_error"
	ErrTimeout        = "timeout_error"
	ErrUpstream       = "upstream_error"
	ErrServer         = "server_error"
)

// mapUpstreamStatus translates an upstream HTTP status into the error kind
// surfaced to the client. The gateway never forwards upstream failures
// verbatim.
func mapUpstreamStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrInvalidRequest
	case http.StatusUnauthorized:
		return ErrAuthentication
	case http.StatusForbidden:
		return ErrPermission
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusInternalServerError:
		return ErrAPI
	case http.StatusServiceUnavailable:
		return ErrOverloaded
	default:
		return ErrAPI
	}
}

// writeError replies with a Dialect A error envelope. Secrets never travel in
// the message or details.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeErrorDetails(w, status, kind, message, "", "")
}

func writeErrorDetails(w http.ResponseWriter, status int, kind, message, details, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dialect.ErrorEnvelope{
		Type: "error",
		Error: dialect.APIError{
			Type:    kind,
			Message: message,
			Details: details,
			Hint:    hint,
		},
	})
}
