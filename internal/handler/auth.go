package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tuanvu-dev/campushub-auth/internal/apperror"
	"github.com/tuanvu-dev/campushub-auth/internal/auth"
	"github.com/tuanvu-dev/campushub-auth/internal/model"
	"github.com/tuanvu-dev/campushub-auth/internal/oauth"
	"github.com/tuanvu-dev/campushub-auth/internal/service"
	"github.com/tuanvu-dev/campushub-auth/internal/statestore"
)

// AuthHandler exposes registration, login, the OAuth flows, and account
// management.
//
// Cookie policy: the session token rides in an HTTP-only cookie. In
// production it is additionally Secure + SameSite=Strict; in development
// SameSite=Lax so the OAuth redirect round-trip works over plain http.
type AuthHandler struct {
	svc            *service.AuthService
	authn          *auth.Authenticator
	providers      oauth.Registry
	states         statestore.Store
	allowedOrigins []string
	cookieTTL      time.Duration
	production     bool
	logger         *slog.Logger
}

func NewAuthHandler(
	svc *service.AuthService,
	authn *auth.Authenticator,
	providers oauth.Registry,
	states statestore.Store,
	allowedOrigins []string,
	cookieTTL time.Duration,
	production bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		svc:            svc,
		authn:          authn,
		providers:      providers,
		states:         states,
		allowedOrigins: allowedOrigins,
		cookieTTL:      cookieTTL,
		production:     production,
		logger:         logger,
	}
}

// Routes mounts the auth endpoints on a chi router.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.Post("/logout", h.HandleLogout)

	// Optional auth on both OAuth legs: the initiate distinguishes a fresh
	// login from a linking request, and the callback needs the session user
	// for the link-to-current-account resolution branch.
	r.Group(func(r chi.Router) {
		r.Use(h.authn.Optional)
		r.Get("/{provider}/callback", h.HandleOAuthCallback)
		r.Get("/{provider}", h.HandleOAuthInitiate)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authn.Require)
		r.Get("/me", h.HandleMe)
		r.Get("/linked-accounts", h.HandleLinkedAccounts)
		r.Delete("/unlink/{provider}", h.HandleUnlink)
	})

	return r
}

type credentialsRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"fullName"`
	StudentID string `json:"studentId"`
}

type authResponse struct {
	User        *model.User `json:"user"`
	AccessToken string      `json:"accessToken"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /auth/register
// 201 on success, 409 when the email is taken.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		StudentID: req.StudentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{User: result.User, AccessToken: result.Token})
}

// HandleLogin authenticates an email/password pair.
//
// HTTP: POST /auth/login
// 400 on any credential mismatch — the response never says which check failed.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: result.User, AccessToken: result.Token})
}

// HandleOAuthInitiate starts an OAuth flow.
//
// HTTP: GET /auth/{provider}?redirect_uri=...
//
// The redirect_uri is validated against the configured origin allow-list,
// then stashed in the state store under a random state value; the browser is
// sent to the provider's authorize URL carrying that state. The state is the
// anti-forgery half of the handshake — the callback only proceeds for a
// state this server minted within the last five minutes.
func (h *AuthHandler) HandleOAuthInitiate(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" || !h.originAllowed(redirectURI) {
		writeError(w, apperror.ValidationFailed("redirect_uri", "invalid or missing redirect_uri"))
		return
	}

	state := uuid.NewString()
	if err := h.states.Put(r.Context(), state, redirectURI); err != nil {
		h.logger.Error("storing oauth state failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// HandleOAuthCallback completes an OAuth flow.
//
// HTTP: GET /auth/{provider}/callback?code=...&state=...
//
// The state is consumed exactly once; a replayed callback finds nothing and
// fails with the same generic error as a forged one. Provider failures at
// any fetch step are logged with full detail but surface as one normalized
// message.
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, apperror.InvalidCredential("missing OAuth parameter"))
		return
	}

	destination, err := h.states.Consume(r.Context(), state)
	if err != nil {
		if !errors.Is(err, statestore.ErrNotFound) {
			h.logger.Error("consuming oauth state failed", slog.String("error", err.Error()))
		}
		writeError(w, apperror.InvalidCredential("invalid or expired OAuth state"))
		return
	}

	profile, token, err := provider.FetchProfile(r.Context(), code)
	if err != nil {
		// Full cause stays in the log; the caller sees only the
		// normalized message.
		h.logger.Error("oauth profile fetch failed",
			slog.String("provider", string(provider.Name())),
			slog.String("error", err.Error()),
		)
		writeError(w, apperror.Upstream(err))
		return
	}

	sessionUser, _ := auth.UserFromContext(r.Context())

	user, err := h.svc.ResolveOAuthUser(r.Context(), provider.Name(), profile, token, sessionUser)
	if err != nil {
		h.logger.Error("identity resolution failed",
			slog.String("provider", string(provider.Name())),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	tokenStr, err := h.svc.IssueToken(user)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, tokenStr)
	http.Redirect(w, r, destination+"/auth/callback", http.StatusFound)
}

// HandleLogout clears the session cookie. Stateless tokens stay technically
// valid until expiry; without the cookie the browser can't send one.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleLinkedAccounts lists the user's linked providers (metadata only —
// tokens are never returned).
//
// HTTP: GET /auth/linked-accounts
func (h *AuthHandler) HandleLinkedAccounts(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	accounts, err := h.svc.LinkedAccounts(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// HandleUnlink removes a linked provider. Unknown provider names are
// rejected before any lookup.
//
// HTTP: DELETE /auth/unlink/{provider}
func (h *AuthHandler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	providerName, ok := model.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		writeError(w, apperror.ValidationFailed("provider", "invalid provider"))
		return
	}

	if err := h.svc.UnlinkAccount(r.Context(), user.ID, providerName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account unlinked"})
}

// provider resolves the {provider} path segment to a configured provider.
// Unknown names are 400; known but unconfigured providers are 503 with a
// clear configuration error rather than a redirect built from empty values.
func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (oauth.Provider, bool) {
	name, ok := model.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		writeError(w, apperror.ValidationFailed("provider", "invalid provider"))
		return nil, false
	}

	p, ok := h.providers.Get(name)
	if !ok {
		h.logger.Warn("oauth flow for unconfigured provider", slog.String("provider", string(name)))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "provider_not_configured",
			Message: string(name) + " OAuth is not configured on this server",
		})
		return nil, false
	}
	return p, true
}

func (h *AuthHandler) originAllowed(origin string) bool {
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	sameSite := http.SameSiteLaxMode
	if h.production {
		sameSite = http.SameSiteStrictMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.production,
		SameSite: sameSite,
	})
}
