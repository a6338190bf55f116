package auth

import (
	"context"
	"duo-chat/domain"
	"net/http"
	"strings"
)

type contextKey string

const IdentityKey contextKey = "identity"

// CookieName is the cookie carrying the token for browser clients.
const CookieName = "token"

// TokenFromRequest looks for the token in the cookie, then the Authorization
// header, then the "token" query parameter used by websocket clients which
// cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Authenticate resolves the identity of the caller.
func (v *TokenVerifier) Authenticate(r *http.Request) (domain.Identity, error) {
	return v.Verify(TokenFromRequest(r))
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(domain.Identity)
	return identity, ok && identity != ""
}
