package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tuanvu-dev/campushub-auth/internal/apperror"
	"github.com/tuanvu-dev/campushub-auth/internal/auth"
	"github.com/tuanvu-dev/campushub-auth/internal/model"
	"github.com/tuanvu-dev/campushub-auth/internal/repository"
)

// UserService handles administrative user management: the CRUD surface behind
// /users. Self-service registration lives on AuthService; this service never
// issues tokens.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// CreateUserInput carries the fields for an admin-created account.
type CreateUserInput struct {
	Email     string
	Password  string
	FullName  string
	StudentID string
	Role      model.Role
}

// UpdateUserInput is a partial update: nil fields keep their current value.
// A non-nil Password is re-hashed before storage.
type UpdateUserInput struct {
	Email     *string
	Password  *string
	FullName  *string
	StudentID *string
	Role      *model.Role
}

// Create makes a password account on someone's behalf. Same validation as
// self-registration; a duplicate email is Conflict.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
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
		return nil, fmt.Errorf("service/user: hashing password: %w", err)
	}

	role := in.Role
	if role == "" {
		role = model.RoleUser
	}

	user := &model.User{
		Email:           email,
		FullName:        in.FullName,
		PasswordHash:    hash,
		StudentID:       in.StudentID,
		Role:            role,
		PrimaryProvider: model.AuthMethodEmail,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created by admin",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

// List returns every account.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}
	return users, nil
}

// Get returns one account by ID.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching user %s: %w", id, err)
	}
	return user, nil
}

// Update applies a partial update to an account. Only non-nil input fields
// change; a new password is hashed, a new email is normalized and validated.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLen {
			return nil, apperror.ValidationFailed("password",
				fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		}
		hash, err := s.passwords.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("service/user: hashing password: %w", err)
		}
		user.PasswordHash = hash
	}
	if in.FullName != nil {
		user.FullName = *in.FullName
	}
	if in.StudentID != nil {
		user.StudentID = *in.StudentID
	}
	if in.Role != nil {
		if *in.Role != model.RoleUser && *in.Role != model.RoleAdmin {
			return nil, apperror.ValidationFailed("role", "role must be USER or ADMIN")
		}
		user.Role = *in.Role
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user updated", slog.String("userID", user.ID))
	return user, nil
}

// Delete removes an account and all of its identity links.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.String("userID", id))
	return nil
}

// normalizeEmail lowercases, trims, and sanity-checks an email address.
func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(strings.ToLower(raw))
	if email == "" || !strings.Contains(email, "@") {
		return "", apperror.ValidationFailed("email", "a valid email is required")
	}
	return email, nil
}
