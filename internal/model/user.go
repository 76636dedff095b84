// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Provider identifies an external OAuth identity provider.
//
// The values are stored verbatim in the database (identity_links.provider and
// users.primary_provider) and appear in API paths (/auth/github), so they
// must never be renamed once deployed.
type Provider string

const (
	ProviderGitHub Provider = "GITHUB"
	ProviderJira   Provider = "JIRA"
)

// ParseProvider maps a user-supplied provider name (any case) to a known
// Provider. Unknown names return ("", false) — callers must reject those
// before touching the database.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToUpper(s)) {
	case ProviderGitHub:
		return ProviderGitHub, true
	case ProviderJira:
		return ProviderJira, true
	}
	return "", false
}

// AuthMethod is the method through which a user's account was first created.
// It is a superset of Provider: password registration uses AuthMethodEmail.
type AuthMethod string

const (
	AuthMethodEmail  AuthMethod = "EMAIL"
	AuthMethodGitHub AuthMethod = "GITHUB"
	AuthMethodJira   AuthMethod = "JIRA"
)

// MethodForProvider returns the AuthMethod recorded as primary_provider when
// an account is first created through the given OAuth provider.
func MethodForProvider(p Provider) AuthMethod {
	if p == ProviderJira {
		return AuthMethodJira
	}
	return AuthMethodGitHub
}

// Role is the user's authorization level. It is carried in the session token
// but re-read from the database on every authenticated request, so a demoted
// admin loses access as soon as their next request arrives.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a registered account.
//
// Email is globally unique (enforced by the store). OAuth-only accounts have
// an empty PasswordHash and cannot authenticate through the password path —
// the verifier treats them exactly like a wrong password so callers can't
// probe which accounts are OAuth-only.
//
// Users created through OAuth with no disclosed email get a synthesized
// placeholder ({provider}_{providerID}@placeholder.local) so the uniqueness
// invariant holds without a nullable column.
type User struct {
	ID              string     `json:"id"                  db:"id"`
	Email           string     `json:"email"               db:"email"`
	FullName        string     `json:"fullName"            db:"full_name"`
	PasswordHash    string     `json:"-"                   db:"password_hash"` // never serialized
	StudentID       string     `json:"studentId,omitempty" db:"student_id"`
	Role            Role       `json:"role"                db:"role"`
	PrimaryProvider AuthMethod `json:"primaryProvider"     db:"primary_provider"`
	AvatarURL       string     `json:"avatarUrl,omitempty" db:"avatar_url"`
	CreatedAt       time.Time  `json:"createdAt"           db:"created_at"`
	LastLogin       *time.Time `json:"lastLogin,omitempty" db:"last_login"`
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IdentityLink binds one local user to one external OAuth identity.
//
// Two uniqueness invariants, both enforced by the store rather than by
// application-level locking (two concurrent callbacks for the same brand-new
// identity must race safely):
//   - (Provider, ProviderUserID): one external identity maps to at most one
//     local user
//   - (UserID, Provider): a user has at most one link per provider
type IdentityLink struct {
	ID               string     `json:"id"               db:"id"`
	UserID           string     `json:"userId"           db:"user_id"`
	Provider         Provider   `json:"provider"         db:"provider"`
	ProviderUserID   string     `json:"providerUserId"   db:"provider_user_id"`
	ProviderUsername string     `json:"providerUsername" db:"provider_username"`
	ProviderEmail    string     `json:"providerEmail"    db:"provider_email"`
	AccessToken      string     `json:"-"                db:"access_token"`
	RefreshToken     string     `json:"-"                db:"refresh_token"`
	UsedForLogin     bool       `json:"usedForLogin"     db:"used_for_login"`
	CreatedAt        time.Time  `json:"createdAt"        db:"created_at"`
	LastRefreshedAt  *time.Time `json:"lastRefreshedAt,omitempty" db:"last_refreshed_at"`
}

// LinkedAccount is the caller-facing view of an IdentityLink. Access and
// refresh tokens are deliberately absent — they never leave the service layer.
type LinkedAccount struct {
	Provider         Provider  `json:"provider"`
	ProviderUsername string    `json:"providerUsername"`
	ProviderEmail    string    `json:"providerEmail"`
	CreatedAt        time.Time `json:"createdAt"`
}
