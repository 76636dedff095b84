package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/tuanvu-dev/campushub-auth/internal/apperror"
	"github.com/tuanvu-dev/campushub-auth/internal/model"
	"github.com/tuanvu-dev/campushub-auth/internal/repository"
)

// compile-time check that *DB implements repository.LinkRepository
var _ repository.LinkRepository = (*DB)(nil)

const linkColumns = `id, user_id, provider, provider_user_id, provider_username,
	provider_email, access_token, refresh_token, used_for_login, created_at,
	last_refreshed_at`

// GetByProviderUserID looks up the link owning an external identity.
// This is the "does this GitHub/Jira account already belong to someone"
// query at the top of the resolution order.
func (db *DB) GetByProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.IdentityLink, error) {
	return db.getLink(ctx,
		`WHERE provider = ? AND provider_user_id = ?`, provider, providerUserID)
}

// GetByUserAndProvider looks up a user's link for one provider.
func (db *DB) GetByUserAndProvider(ctx context.Context, userID string, provider model.Provider) (*model.IdentityLink, error) {
	return db.getLink(ctx,
		`WHERE user_id = ? AND provider = ?`, userID, provider)
}

// Upsert inserts a link or, when (user_id, provider) already exists, updates
// its identity fields, tokens, and refresh timestamp in place. The existing
// row keeps its id and created_at.
func (db *DB) Upsert(ctx context.Context, link *model.IdentityLink) error {
	now := time.Now().UTC()

	existing, err := db.GetByUserAndProvider(ctx, link.UserID, link.Provider)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	if existing != nil {
		link.ID = existing.ID
		link.CreatedAt = existing.CreatedAt
		link.LastRefreshedAt = &now
		_, err = db.conn.ExecContext(ctx,
			`UPDATE identity_links
			 SET provider_user_id = ?, provider_username = ?, provider_email = ?,
			     access_token = ?, refresh_token = ?, used_for_login = ?,
			     last_refreshed_at = ?
			 WHERE id = ?`,
			link.ProviderUserID,
			link.ProviderUsername,
			link.ProviderEmail,
			link.AccessToken,
			link.RefreshToken,
			link.UsedForLogin,
			now,
			link.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				// The new provider_user_id is already linked elsewhere.
				return apperror.Conflict("identity is already linked")
			}
			return fmt.Errorf("sqlite: updating link %s: %w", link.ID, err)
		}
		return nil
	}

	prepareNewLink(link)
	if err := insertLink(ctx, db.conn, link); err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("identity is already linked")
		}
		return fmt.Errorf("sqlite: inserting link (user=%s provider=%s): %w",
			link.UserID, link.Provider, err)
	}
	return nil
}

// ListByUser returns the user's login-capable links, newest last.
func (db *DB) ListByUser(ctx context.Context, userID string) ([]model.IdentityLink, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+linkColumns+`
		 FROM identity_links
		 WHERE user_id = ? AND used_for_login = 1
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing links for %s: %w", userID, err)
	}
	defer rows.Close()

	var links []model.IdentityLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning link: %w", err)
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating links: %w", err)
	}
	return links, nil
}

// Delete removes one (user, provider) link. apperror.ErrNotFound when there
// is nothing to remove — the unlink endpoint maps this to NotLinked.
func (db *DB) Delete(ctx context.Context, userID string, provider model.Provider) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM identity_links WHERE user_id = ? AND provider = ?`,
		userID, provider)
	if err != nil {
		return fmt.Errorf("sqlite: deleting link (user=%s provider=%s): %w", userID, provider, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("link", string(provider))
	}
	return nil
}

// CountLoginLinks counts the user's login-capable links.
func (db *DB) CountLoginLinks(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identity_links WHERE user_id = ? AND used_for_login = 1`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting links for %s: %w", userID, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*model.IdentityLink, error) {
	var (
		l           model.IdentityLink
		refreshedAt sql.NullTime
	)
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Provider,
		&l.ProviderUserID,
		&l.ProviderUsername,
		&l.ProviderEmail,
		&l.AccessToken,
		&l.RefreshToken,
		&l.UsedForLogin,
		&l.CreatedAt,
		&refreshedAt,
	)
	if err != nil {
		return nil, err
	}
	if refreshedAt.Valid {
		l.LastRefreshedAt = &refreshedAt.Time
	}
	return &l, nil
}

func (db *DB) getLink(ctx context.Context, where string, args ...any) (*model.IdentityLink, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM identity_links `+where, args...)

	link, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("link", "")
		}
		return nil, fmt.Errorf("sqlite: getting link: %w", err)
	}
	return link, nil
}

func prepareNewLink(link *model.IdentityLink) {
	if link.ID == "" {
		link.ID = xid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
}

func insertLink(ctx context.Context, ex execer, link *model.IdentityLink) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO identity_links (id, user_id, provider, provider_user_id,
			provider_username, provider_email, access_token, refresh_token,
			used_for_login, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID,
		link.UserID,
		link.Provider,
		link.ProviderUserID,
		link.ProviderUsername,
		link.ProviderEmail,
		link.AccessToken,
		link.RefreshToken,
		link.UsedForLogin,
		link.CreatedAt,
	)
	return err
}
