// Package httpapi exposes the core-owned HTTP surface of spec §6.1: message
// send/history, read-receipt advance/read, and bulk unread counts.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/echo-chat/realtime-core/internal/apperr"
)

type successEnvelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type errorEnvelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Code       apperr.Kind `json:"code"`
	StatusCode int         `json:"statusCode"`
	Retryable  bool        `json:"retryable"`
	Timestamp  time.Time   `json:"timestamp"`
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data, Timestamp: time.Now().UTC()})
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{
		Success:    false,
		Message:    err.Error(),
		Code:       kind,
		StatusCode: status,
		Retryable:  apperr.IsRetryable(err),
		Timestamp:  time.Now().UTC(),
	})
}

// statusFor maps an error kind to the HTTP status spec §7 implies: 401 for
// the auth kinds, 403 Forbidden, 404 NotFound (also used for invisible
// resources, to avoid membership probing), 409 Conflict/Contended, 503 for
// Unavailable, 504 for Timeout, 400 for InvalidArgument, 500 otherwise.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.AuthInvalid, apperr.AuthExpired, apperr.AuthRevoked:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Contended:
		return http.StatusConflict
	case apperr.Timeout:
		return http.StatusGatewayTimeout
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
