// Package repository declares the storage interfaces consumed by the service
// layer. The service depends on these, never on a concrete store, so tests
// swap in in-memory fakes and the store engine stays replaceable.
package repository

import (
	"context"

	"github.com/tuanvu-dev/campushub-auth/internal/model"
)

// UserRepository stores user accounts.
//
// Email uniqueness is enforced by the store itself (unique constraint), not
// by application locking: Create and CreateWithLink return a Conflict error
// when the email is already taken, including when two requests race.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	// Update rewrites the user's mutable fields (email, full_name,
	// password_hash, student_id, role, avatar_url). A new email colliding
	// with another account returns Conflict.
	Update(ctx context.Context, user *model.User) error

	// DeleteUser removes the account and, through the store's cascade, all
	// of its identity links.
	DeleteUser(ctx context.Context, id string) error

	UpdateLastLogin(ctx context.Context, id string) error

	// CreateWithLink inserts a new user and their first identity link in one
	// transaction. A failed link insert must roll back the user so no orphan
	// placeholder accounts survive a partial failure.
	CreateWithLink(ctx context.Context, user *model.User, link *model.IdentityLink) error
}

// LinkRepository stores identity links. The store enforces both uniqueness
// invariants — (provider, provider_user_id) and (user_id, provider) — and
// rejects the second insert when concurrent callbacks race.
type LinkRepository interface {
	GetByProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.IdentityLink, error)
	GetByUserAndProvider(ctx context.Context, userID string, provider model.Provider) (*model.IdentityLink, error)

	// Upsert inserts a link, or — when one already exists for
	// (link.UserID, link.Provider) — updates its provider-identity fields,
	// tokens, and refresh timestamp in place.
	Upsert(ctx context.Context, link *model.IdentityLink) error

	ListByUser(ctx context.Context, userID string) ([]model.IdentityLink, error)
	Delete(ctx context.Context, userID string, provider model.Provider) error

	// CountLoginLinks returns how many login-capable links the user has.
	// Used by the unlink guard.
	CountLoginLinks(ctx context.Context, userID string) (int, error)
}
