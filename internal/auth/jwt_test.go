package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echo-chat/realtime-core/internal/apperr"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue("user-1", []string{"member"}, time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, []string{"member"}, claims.Roles)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue("user-1", nil, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthExpired, apperr.KindOf(err))
}

func TestVerifyRejectsWrongSigningKey(t *testing.T) {
	issuer := NewVerifier("secret-a")
	verifier := NewVerifier("secret-b")

	token, err := issuer.Issue("user-1", nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthInvalid, apperr.KindOf(err))
}

func TestVerifyRejectsUnexpectedSigningMethod(t *testing.T) {
	v := NewVerifier("test-secret")
	claims := &Claims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthInvalid, apperr.KindOf(err))
}

func TestExtractTokenFromAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	token, err := ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestExtractTokenFallsBackToQueryParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=xyz789", nil)

	token, err := ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "xyz789", token)
}

func TestExtractTokenRejectsMalformedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic abc123")

	_, err := ExtractToken(r)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthInvalid, apperr.KindOf(err))
}

func TestExtractTokenRejectsAbsentCredential(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)

	_, err := ExtractToken(r)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthInvalid, apperr.KindOf(err))
}
