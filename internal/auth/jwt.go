// Package auth implements C1, the Token Verifier: a pure (no network)
// validator of opaque bearer credentials, grounded on
// go-server/internal/auth/jwt.go.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/echo-chat/realtime-core/internal/apperr"
)

// Claims is the principal carried by a verified token: userId and roles.
type Claims struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verifier validates opaque bearer credentials and yields a principal.
type Verifier struct {
	secretKey []byte
}

// NewVerifier builds a Verifier over a symmetric signing key. Key rotation is
// out of scope per spec §4.1.
func NewVerifier(secretKey string) *Verifier {
	return &Verifier{secretKey: []byte(secretKey)}
}

// Issue mints a token for the given principal; used by tests and by the
// out-of-scope HTTP login mutator that this core does not own.
func (v *Verifier) Issue(userID string, roles []string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "echo-realtime-core",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}

// Verify validates tokenString and returns the principal. Errors are
// AuthInvalid for malformed/signature failures and AuthExpired when the
// token's exp claim has passed, per spec §4.1.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.AuthExpired, "token expired", err)
		}
		return nil, apperr.Wrap(apperr.AuthInvalid, "token invalid", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.AuthInvalid, "invalid token claims")
	}

	return claims, nil
}

// ExtractToken pulls the bearer credential from an HTTP request, checking the
// Authorization header first and falling back to a ?token= query parameter
// (needed for the handshake of transports that cannot set headers).
func ExtractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			return "", apperr.New(apperr.AuthInvalid, "malformed Authorization header")
		}
		return strings.TrimPrefix(header, prefix), nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", apperr.New(apperr.AuthInvalid, "no bearer credential present")
}
