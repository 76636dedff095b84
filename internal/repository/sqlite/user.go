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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, full_name, password_hash, student_id, role,
	primary_provider, avatar_url, created_at, last_login`

// Create inserts a new user, generating ID and timestamps. A duplicate
// email becomes apperror.ErrConflict with the message the registration
// endpoint surfaces verbatim.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	prepareNewUser(user)

	if err := insertUser(ctx, db.conn, user); err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email is already in use")
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}
	return nil
}

// CreateWithLink inserts a new user and their first identity link in one
// transaction, so a failed link insert can't leave an orphan placeholder
// account behind.
func (db *DB) CreateWithLink(ctx context.Context, user *model.User, link *model.IdentityLink) error {
	prepareNewUser(user)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email is already in use")
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}

	link.UserID = user.ID
	prepareNewLink(link)
	if err := insertLink(ctx, tx, link); err != nil {
		if isUniqueViolation(err) {
			// Concurrent callback won the race for this external identity.
			// Rolling back removes the just-created user as well.
			return apperror.Conflict("identity is already linked")
		}
		return fmt.Errorf("sqlite: inserting link (provider=%s): %w", link.Provider, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user+link: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `WHERE email = ?`, email)
}

// ListUsers returns every account, oldest first.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var (
			u         model.User
			lastLogin sql.NullTime
		)
		if err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.FullName,
			&u.PasswordHash,
			&u.StudentID,
			&u.Role,
			&u.PrimaryProvider,
			&u.AvatarURL,
			&u.CreatedAt,
			&lastLogin,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		if lastLogin.Valid {
			u.LastLogin = &lastLogin.Time
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update rewrites the user's mutable fields. ID, created_at, and last_login
// are never touched here. A new email colliding with another account becomes
// Conflict; an unknown ID becomes NotFound.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET email = ?, full_name = ?, password_hash = ?, student_id = ?,
		     role = ?, avatar_url = ?
		 WHERE id = ?`,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.StudentID,
		user.Role,
		user.AvatarURL,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email is already in use")
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update result: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// DeleteUser removes the account; ON DELETE CASCADE takes the identity links
// with it. Returns apperror.ErrNotFound for an unknown ID.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete result: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// UpdateLastLogin stamps the user's last successful login.
func (db *DB) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: updating last_login for %s: %w", id, err)
	}
	return nil
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		u         model.User
		lastLogin sql.NullTime
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where, arg,
	).Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.PasswordHash,
		&u.StudentID,
		&u.Role,
		&u.PrimaryProvider,
		&u.AvatarURL,
		&u.CreatedAt,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}

	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting the insert
// helpers serve plain and transactional paths.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func prepareNewUser(user *model.User) {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
}

func insertUser(ctx context.Context, ex execer, user *model.User) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, password_hash, student_id,
			role, primary_provider, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.StudentID,
		user.Role,
		user.PrimaryProvider,
		user.AvatarURL,
		user.CreatedAt,
	)
	return err
}
