package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/tuanvu-dev/campushub-auth/internal/apperror"
	"github.com/tuanvu-dev/campushub-auth/internal/model"
)

func seedUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	u := newUser(email)
	if err := db.Create(context.Background(), u); err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return u
}

func githubLink(userID, providerUserID string) *model.IdentityLink {
	return &model.IdentityLink{
		UserID:           userID,
		Provider:         model.ProviderGitHub,
		ProviderUserID:   providerUserID,
		ProviderUsername: "octocat",
		ProviderEmail:    "octocat@x.test",
		AccessToken:      "gho_token",
		UsedForLogin:     true,
	}
}

func TestUpsert_InsertsThenUpdates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "a@x.test")

	link := githubLink(u.ID, "42")
	if err := db.Upsert(ctx, link); err != nil {
		t.Fatalf("insert Upsert() error = %v", err)
	}
	if link.ID == "" {
		t.Fatal("Upsert() did not assign an ID")
	}
	firstID := link.ID

	// Second upsert for the same (user, provider): same row, new tokens,
	// refresh timestamp set.
	refreshed := githubLink(u.ID, "42")
	refreshed.AccessToken = "gho_newer"
	if err := db.Upsert(ctx, refreshed); err != nil {
		t.Fatalf("update Upsert() error = %v", err)
	}
	if refreshed.ID != firstID {
		t.Errorf("update created a new row: id %q, want %q", refreshed.ID, firstID)
	}

	got, err := db.GetByUserAndProvider(ctx, u.ID, model.ProviderGitHub)
	if err != nil {
		t.Fatalf("GetByUserAndProvider() error = %v", err)
	}
	if got.AccessToken != "gho_newer" {
		t.Errorf("AccessToken = %q, want gho_newer", got.AccessToken)
	}
	if got.LastRefreshedAt == nil {
		t.Error("LastRefreshedAt not set on update")
	}

	n, err := db.CountLoginLinks(ctx, u.ID)
	if err != nil {
		t.Fatalf("CountLoginLinks() error = %v", err)
	}
	if n != 1 {
		t.Errorf("link count = %d, want 1 (upsert must not duplicate)", n)
	}
}

// One external identity maps to at most one local user.
func TestUpsert_RejectsStolenIdentity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@x.test")
	bob := seedUser(t, db, "bob@x.test")

	if err := db.Upsert(ctx, githubLink(alice.ID, "42")); err != nil {
		t.Fatalf("Upsert(alice) error = %v", err)
	}

	err := db.Upsert(ctx, githubLink(bob.ID, "42"))
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Upsert(bob, same identity) error = %v, want ErrConflict", err)
	}
}

func TestListByUser_OnlyOwnLinks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@x.test")
	bob := seedUser(t, db, "bob@x.test")

	db.Upsert(ctx, githubLink(alice.ID, "1"))
	jira := &model.IdentityLink{
		UserID:         alice.ID,
		Provider:       model.ProviderJira,
		ProviderUserID: "acc-1",
		UsedForLogin:   true,
	}
	db.Upsert(ctx, jira)
	db.Upsert(ctx, githubLink(bob.ID, "2"))

	links, err := db.ListByUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("len(links) = %d, want 2", len(links))
	}
	for _, l := range links {
		if l.UserID != alice.ID {
			t.Errorf("got a foreign link: owner %q", l.UserID)
		}
	}
}

// Unlink removes exactly that link and leaves others untouched.
func TestDelete_RemovesOnlyTargetLink(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "a@x.test")

	db.Upsert(ctx, githubLink(u.ID, "1"))
	db.Upsert(ctx, &model.IdentityLink{
		UserID:         u.ID,
		Provider:       model.ProviderJira,
		ProviderUserID: "acc-1",
		UsedForLogin:   true,
	})

	if err := db.Delete(ctx, u.ID, model.ProviderGitHub); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := db.GetByUserAndProvider(ctx, u.ID, model.ProviderGitHub); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("github link still present: err = %v", err)
	}
	if _, err := db.GetByUserAndProvider(ctx, u.ID, model.ProviderJira); err != nil {
		t.Errorf("jira link should be untouched: err = %v", err)
	}
}

func TestDelete_NotFoundWhenUnlinked(t *testing.T) {
	db := newTestDB(t)
	u := seedUser(t, db, "a@x.test")

	err := db.Delete(context.Background(), u.ID, model.ProviderJira)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
}
