package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tuanvu-dev/campushub-auth/internal/model"
)

// CookieName is the HTTP-only cookie carrying the session token, set by the
// OAuth callback handler and cleared by logout.
const CookieName = "auth_token"

// UserLoader re-fetches the current user record during authentication.
// Satisfied by repository.UserRepository; declared here so the middleware
// doesn't depend on the storage package.
type UserLoader interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// contextKey is an unexported type for context keys in this package, so no
// other package can read or shadow the authenticated user value.
type contextKey string

const userKey contextKey = "user"

// Authenticator locates and verifies the session token on inbound requests
// and resolves it to a live user record.
//
// TOKEN LOCATIONS, in order:
//  1. Authorization: Bearer header (API clients)
//  2. auth_token HTTP-only cookie (browser sessions set by the OAuth callback)
//  3. ?token= query parameter — fallback only, never a production trust
//     boundary (query strings end up in access logs)
//
// A cryptographically valid token whose subject no longer exists still fails:
// role and metadata must always reflect current stored state, and a deleted
// user must not keep a working session.
type Authenticator struct {
	tokens *TokenService
	users  UserLoader
}

func NewAuthenticator(tokens *TokenService, users UserLoader) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Require enforces authentication. Missing, malformed, expired tokens and
// deleted users all yield 401 and stop the chain.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticate(r)
		if err != nil {
			// Written by hand rather than via http.Error, which would
			// overwrite Content-Type with text/plain.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin allows only authenticated admins through. It must be chained
// after Require, which re-fetched the user — so the role checked here is the
// stored one, not the token snapshot, and a demoted admin is cut off on their
// next request.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user.Role != model.RoleAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"forbidden","message":"admin privileges required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Optional resolves the user if a valid token is present but never blocks the
// request. Every verification failure — absent token, bad signature, expiry,
// deleted user — degrades to anonymous.
//
// The OAuth initiate endpoint depends on this distinction: an authenticated
// caller is linking a new provider to their account, an anonymous caller is
// logging in fresh.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := a.authenticate(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), userKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate extracts, validates, and resolves the session token.
func (a *Authenticator) authenticate(r *http.Request) (*model.User, error) {
	tokenStr := extractToken(r)
	if tokenStr == "" {
		return nil, errors.New("auth: no token")
	}

	claims, err := a.tokens.Validate(tokenStr)
	if err != nil {
		return nil, err
	}

	// Re-fetch so role/metadata reflect latest stored state, not the token
	// snapshot, and so deleted users are rejected.
	user, err := a.users.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// extractToken tries the Bearer header, then the cookie, then the query
// fallback. First hit wins.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok && token != "" {
			return token
		}
	}

	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return r.URL.Query().Get("token")
}

// UserFromContext retrieves the authenticated user from the request context.
// Returns (nil, false) if the request is anonymous.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}
