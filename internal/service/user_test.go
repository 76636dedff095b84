package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/tuanvu-dev/campushub-auth/internal/apperror"
	"github.com/tuanvu-dev/campushub-auth/internal/auth"
	"github.com/tuanvu-dev/campushub-auth/internal/model"
	"github.com/tuanvu-dev/campushub-auth/internal/repository/sqlite"
)

func newTestUserService(t *testing.T) (*UserService, *auth.PasswordService, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New(:memory:): %v", err)
	}
	t.Cleanup(func() { db.Close() })

	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUserService(db, passwords, logger), passwords, db
}

func ptr[T any](v T) *T { return &v }

func TestUserCreate(t *testing.T) {
	svc, passwords, _ := newTestUserService(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateUserInput{
		Email:     "New.Student@Campus.EDU",
		Password:  "hunter22",
		FullName:  "Linh Tran",
		StudentID: "SE112233",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.Email != "new.student@campus.edu" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.Role != model.RoleUser {
		t.Errorf("Role = %q, want USER default", user.Role)
	}
	if user.PrimaryProvider != model.AuthMethodEmail {
		t.Errorf("PrimaryProvider = %q, want EMAIL", user.PrimaryProvider)
	}
	if err := passwords.Verify(user.PasswordHash, "hunter22"); err != nil {
		t.Error("stored hash does not match the given password")
	}
}

func TestUserCreate_DuplicateEmailConflicts(t *testing.T) {
	svc, _, _ := newTestUserService(t)
	ctx := context.Background()

	in := CreateUserInput{Email: "mai@campus.edu", Password: "hunter22"}
	if _, err := svc.Create(ctx, in); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := svc.Create(ctx, in); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Create error = %v, want ErrConflict", err)
	}
}

func TestUserCreate_Validation(t *testing.T) {
	svc, _, _ := newTestUserService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateUserInput
	}{
		{"bad email", CreateUserInput{Email: "nope", Password: "hunter22"}},
		{"short password", CreateUserInput{Email: "a@x.test", Password: "abc"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.in); !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Create error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestUserList(t *testing.T) {
	svc, _, _ := newTestUserService(t)
	ctx := context.Background()

	for _, email := range []string{"a@x.test", "b@x.test"} {
		if _, err := svc.Create(ctx, CreateUserInput{Email: email, Password: "hunter22"}); err != nil {
			t.Fatalf("Create(%s): %v", email, err)
		}
	}

	users, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
}

func TestUserUpdate_PartialFields(t *testing.T) {
	svc, passwords, _ := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserInput{
		Email:     "mai@campus.edu",
		Password:  "hunter22",
		FullName:  "Mai Anh",
		StudentID: "SE112233",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Only the name changes; everything else keeps its value.
	updated, err := svc.Update(ctx, created.ID, UpdateUserInput{FullName: ptr("Mai Anh Updated")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.FullName != "Mai Anh Updated" {
		t.Errorf("FullName = %q", updated.FullName)
	}
	if updated.Email != "mai@campus.edu" || updated.StudentID != "SE112233" {
		t.Errorf("untouched fields changed: %+v", updated)
	}

	// A password update is re-hashed, never stored raw.
	updated, err = svc.Update(ctx, created.ID, UpdateUserInput{Password: ptr("new-password")})
	if err != nil {
		t.Fatalf("Update(password): %v", err)
	}
	if updated.PasswordHash == "new-password" {
		t.Fatal("password stored in clear")
	}
	if err := passwords.Verify(updated.PasswordHash, "new-password"); err != nil {
		t.Error("new password does not verify against stored hash")
	}
	if err := passwords.Verify(updated.PasswordHash, "hunter22"); err == nil {
		t.Error("old password still verifies after update")
	}
}

func TestUserUpdate_Validation(t *testing.T) {
	svc, _, _ := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserInput{Email: "mai@campus.edu", Password: "hunter22"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cases := []struct {
		name string
		in   UpdateUserInput
	}{
		{"bad email", UpdateUserInput{Email: ptr("nope")}},
		{"short password", UpdateUserInput{Password: ptr("abc")}},
		{"unknown role", UpdateUserInput{Role: ptr(model.Role("SUPERUSER"))}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Update(ctx, created.ID, tc.in); !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Update error = %v, want ErrValidation", err)
			}
		})
	}

	if _, err := svc.Update(ctx, "missing", UpdateUserInput{FullName: ptr("X")}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update(unknown id) error = %v, want ErrNotFound", err)
	}
}

func TestUserDelete(t *testing.T) {
	svc, _, _ := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserInput{Email: "mai@campus.edu", Password: "hunter22"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}

	if err := svc.Delete(ctx, created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}
