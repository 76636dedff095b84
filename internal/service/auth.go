// Package service — authentication and account-linking business logic.
//
// AuthService sits between the HTTP handlers and the stores:
//
//	handler (HTTP) → AuthService (rules) → UserRepository / LinkRepository
//	               ↘ TokenService (JWT) / PasswordService (bcrypt)
//
// It owns the identity resolution engine: given an incoming credential —
// password or OAuth profile — decide whether it maps to an existing user,
// should be merged into an already-authenticated session, or should mint a
// new account.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tuanvu-dev/campushub-auth/internal/apperror"
	"github.com/tuanvu-dev/campushub-auth/internal/auth"
	"github.com/tuanvu-dev/campushub-auth/internal/model"
	"github.com/tuanvu-dev/campushub-auth/internal/oauth"
	"github.com/tuanvu-dev/campushub-auth/internal/repository"
)

const minPasswordLen = 6

// AuthService handles authentication and account linking.
type AuthService struct {
	users     repository.UserRepository
	links     repository.LinkRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	links repository.LinkRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		links:     links,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// ============ Email/password authentication ============

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	Email     string
	Password  string
	FullName  string
	StudentID string
}

// Register creates a password account.
//
// A duplicate email yields Conflict — surfaced verbatim, registration is the
// one place where revealing "this email exists" is unavoidable.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:           email,
		FullName:        in.FullName,
		PasswordHash:    hash,
		StudentID:       in.StudentID,
		Role:            model.RoleUser,
		PrimaryProvider: model.AuthMethodEmail,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Conflict passes through with its message intact.
		return nil, err
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	return s.issueFor(user)
}

// Login authenticates an email/password pair.
//
// Unknown email, OAuth-only account, and wrong password all produce the same
// generic InvalidCredential error so callers can't probe which accounts
// exist or how they authenticate.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.verifyCredentials(ctx, strings.TrimSpace(strings.ToLower(email)), password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.InvalidCredential("email or password is incorrect")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		// Login still succeeds; the stamp is best-effort.
		s.logger.Warn("updating last_login failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return s.issueFor(user)
}

// verifyCredentials returns the user for a correct email+password pair and
// (nil, nil) for every mismatch. Only infrastructure failures produce an
// error.
func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	// OAuth-only accounts have no hash; indistinguishable from a wrong
	// password on purpose.
	if !user.HasPassword() {
		return nil, nil
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, nil
	}

	return user, nil
}

// ============ Identity resolution ============

// ResolveOAuthUser decides what account an incoming OAuth identity belongs
// to. Decision order, first match wins:
//
//  1. Existing link for (provider, profile.ID) → returning user; their
//     stored provider tokens are refreshed in passing.
//  2. Caller already holds a session → link this identity to that account.
//  3. Verified provider email matches an existing user → auto-link to it.
//     Deliberate trust decision: a provider-verified email is authoritative.
//  4. Otherwise mint a new account plus the link, in one transaction.
//
// sessionUser is an explicit parameter — the handler resolves it through the
// optional authenticator and passes it in; nothing here reads request state.
//
// Two concurrent callbacks for the same never-seen identity race on the
// store's unique constraints: the loser gets Conflict and re-runs the
// lookup, converging on the winner's account.
func (s *AuthService) ResolveOAuthUser(
	ctx context.Context,
	provider model.Provider,
	profile *oauth.Profile,
	token *oauth.Token,
	sessionUser *model.User,
) (*model.User, error) {
	if profile == nil || profile.ID == "" {
		return nil, fmt.Errorf("service/auth: provider profile must carry an id")
	}

	user, err := s.resolveOnce(ctx, provider, profile, token, sessionUser)
	if err != nil && errors.Is(err, apperror.ErrConflict) {
		// Lost a race on user or link creation; the winning row now
		// exists, so a second pass resolves through branch 1 or 3.
		s.logger.Info("resolution raced, retrying lookup",
			slog.String("provider", string(provider)),
			slog.String("providerUserID", profile.ID),
		)
		user, err = s.resolveOnce(ctx, provider, profile, token, sessionUser)
	}
	return user, err
}

func (s *AuthService) resolveOnce(
	ctx context.Context,
	provider model.Provider,
	profile *oauth.Profile,
	token *oauth.Token,
	sessionUser *model.User,
) (*model.User, error) {
	// 1. Existing link: the returning-OAuth-user login path.
	link, err := s.links.GetByProviderUserID(ctx, provider, profile.ID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up link: %w", err)
	}
	if link != nil {
		owner, err := s.users.GetUserByID(ctx, link.UserID)
		if err != nil {
			return nil, fmt.Errorf("service/auth: loading link owner %s: %w", link.UserID, err)
		}
		// Refresh the stored provider tokens on every login; a stale
		// access token is useless to any integration reading it later.
		if err := s.linkAccount(ctx, owner.ID, provider, profile, token); err != nil {
			s.logger.Warn("refreshing link tokens failed",
				slog.String("userID", owner.ID),
				slog.String("provider", string(provider)),
				slog.String("error", err.Error()),
			)
		}
		s.logger.Info("oauth login via existing link",
			slog.String("userID", owner.ID),
			slog.String("provider", string(provider)),
		)
		return owner, nil
	}

	// 2. Active session: explicit "link this provider to my account".
	if sessionUser != nil {
		if err := s.linkAccount(ctx, sessionUser.ID, provider, profile, token); err != nil {
			return nil, err
		}
		s.logger.Info("provider linked to current session",
			slog.String("userID", sessionUser.ID),
			slog.String("provider", string(provider)),
		)
		return sessionUser, nil
	}

	// 3. Email match: silently merge identities sharing a verified email.
	if profile.Email != "" {
		existing, err := s.users.GetUserByEmail(ctx, strings.ToLower(profile.Email))
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: looking up email: %w", err)
		}
		if existing != nil {
			if err := s.linkAccount(ctx, existing.ID, provider, profile, token); err != nil {
				return nil, err
			}
			s.logger.Info("provider auto-linked by email",
				slog.String("userID", existing.ID),
				slog.String("provider", string(provider)),
			)
			return existing, nil
		}
	}

	// 4. New account.
	user := &model.User{
		Email:           placeholderOrEmail(provider, profile),
		FullName:        displayName(profile),
		Role:            model.RoleUser,
		PrimaryProvider: model.MethodForProvider(provider),
		AvatarURL:       profile.AvatarURL,
		// no password hash: OAuth accounts can't use the password path
	}
	newLink := buildLink(user.ID, provider, profile, token)
	if err := s.users.CreateWithLink(ctx, user, newLink); err != nil {
		return nil, err
	}

	s.logger.Info("user created from oauth profile",
		slog.String("userID", user.ID),
		slog.String("provider", string(provider)),
	)
	return user, nil
}

// IssueToken mints a session token for an already-resolved user.
func (s *AuthService) IssueToken(user *model.User) (string, error) {
	token, err := s.tokens.Generate(user)
	if err != nil {
		return "", fmt.Errorf("service/auth: generating token for %s: %w", user.ID, err)
	}
	return token, nil
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ============ Linking lifecycle ============

// LinkedAccounts lists the user's linked providers. Tokens never leave the
// service layer — callers get metadata only.
func (s *AuthService) LinkedAccounts(ctx context.Context, userID string) ([]model.LinkedAccount, error) {
	links, err := s.links.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing links for %s: %w", userID, err)
	}

	accounts := make([]model.LinkedAccount, 0, len(links))
	for _, l := range links {
		accounts = append(accounts, model.LinkedAccount{
			Provider:         l.Provider,
			ProviderUsername: l.ProviderUsername,
			ProviderEmail:    l.ProviderEmail,
			CreatedAt:        l.CreatedAt,
		})
	}
	return accounts, nil
}

// UnlinkAccount removes a (user, provider) link.
//
// NotLinked when no such link exists. Refuses (Conflict) to remove a
// password-less user's only login-capable link — that would strand the
// account with no way back in.
func (s *AuthService) UnlinkAccount(ctx context.Context, userID string, provider model.Provider) error {
	if _, err := s.links.GetByUserAndProvider(ctx, userID, provider); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotLinked(string(provider))
		}
		return fmt.Errorf("service/auth: looking up link: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/auth: loading user %s: %w", userID, err)
	}
	if !user.HasPassword() {
		n, err := s.links.CountLoginLinks(ctx, userID)
		if err != nil {
			return fmt.Errorf("service/auth: counting links: %w", err)
		}
		if n <= 1 {
			return apperror.Conflict("cannot remove the only sign-in method for this account")
		}
	}

	if err := s.links.Delete(ctx, userID, provider); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotLinked(string(provider))
		}
		return fmt.Errorf("service/auth: deleting link: %w", err)
	}

	s.logger.Info("provider unlinked",
		slog.String("userID", userID),
		slog.String("provider", string(provider)),
	)
	return nil
}

// linkAccount upserts the link record for (userID, provider).
func (s *AuthService) linkAccount(ctx context.Context, userID string, provider model.Provider, profile *oauth.Profile, token *oauth.Token) error {
	link := buildLink(userID, provider, profile, token)
	if err := s.links.Upsert(ctx, link); err != nil {
		return err
	}
	return nil
}

func (s *AuthService) issueFor(user *model.User) (*AuthResult, error) {
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

func buildLink(userID string, provider model.Provider, profile *oauth.Profile, token *oauth.Token) *model.IdentityLink {
	link := &model.IdentityLink{
		UserID:           userID,
		Provider:         provider,
		ProviderUserID:   profile.ID,
		ProviderUsername: profile.Username,
		ProviderEmail:    profile.Email,
		UsedForLogin:     true,
	}
	if token != nil {
		link.AccessToken = token.AccessToken
		link.RefreshToken = token.RefreshToken
	}
	return link
}

// placeholderOrEmail synthesizes {provider}_{providerID}@placeholder.local
// when the provider disclosed no email, keeping the email-unique invariant
// without a nullable column.
func placeholderOrEmail(provider model.Provider, profile *oauth.Profile) string {
	if profile.Email != "" {
		return strings.ToLower(profile.Email)
	}
	return fmt.Sprintf("%s_%s@placeholder.local", strings.ToLower(string(provider)), profile.ID)
}

// displayName falls back displayName → username → "User".
func displayName(profile *oauth.Profile) string {
	if profile.DisplayName != "" {
		return profile.DisplayName
	}
	if profile.Username != "" {
		return profile.Username
	}
	return "User"
}
