package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/echo-chat/realtime-core/internal/apperr"
)

func TestStatusForMapsEveryKind(t *testing.T) {
	cases := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.AuthInvalid, http.StatusUnauthorized},
		{apperr.AuthExpired, http.StatusUnauthorized},
		{apperr.AuthRevoked, http.StatusUnauthorized},
		{apperr.Forbidden, http.StatusForbidden},
		{apperr.NotFound, http.StatusNotFound},
		{apperr.InvalidArgument, http.StatusBadRequest},
		{apperr.Conflict, http.StatusConflict},
		{apperr.Contended, http.StatusConflict},
		{apperr.Timeout, http.StatusGatewayTimeout},
		{apperr.Unavailable, http.StatusServiceUnavailable},
		{apperr.Internal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.kind))
		})
	}
}
