package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tuanvu-dev/campushub-auth/internal/apperror"
	"github.com/tuanvu-dev/campushub-auth/internal/model"
)

// fakeUserLoader is an in-memory UserLoader.
type fakeUserLoader struct {
	users map[string]*model.User
}

func (f *fakeUserLoader) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *TokenService, *model.User) {
	t.Helper()
	ts := newTestTokenService(t)
	user := testUser()
	loader := &fakeUserLoader{users: map[string]*model.User{user.ID: user}}
	return NewAuthenticator(ts, loader), ts, user
}

// echoUser writes the authenticated user's ID, or "anonymous".
func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := UserFromContext(r.Context()); ok {
			w.Write([]byte(u.ID))
			return
		}
		w.Write([]byte("anonymous"))
	})
}

func TestRequire_BearerHeader(t *testing.T) {
	a, ts, user := newTestAuthenticator(t)
	token, _ := ts.Generate(user)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	a.Require(echoUser()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != user.ID {
		t.Errorf("body = %q, want %q", got, user.ID)
	}
}

func TestRequire_Cookie(t *testing.T) {
	a, ts, user := newTestAuthenticator(t)
	token, _ := ts.Generate(user)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec := httptest.NewRecorder()

	a.Require(echoUser()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequire_QueryFallback(t *testing.T) {
	a, ts, user := newTestAuthenticator(t)
	token, _ := ts.Generate(user)

	req := httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
	rec := httptest.NewRecorder()

	a.Require(echoUser()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequire_HeaderWinsOverCookie(t *testing.T) {
	a, ts, user := newTestAuthenticator(t)
	token, _ := ts.Generate(user)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	rec := httptest.NewRecorder()

	a.Require(echoUser()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (header token should win)", rec.Code)
	}
}

func TestRequire_MissingToken(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	a.Require(echoUser()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	// The body is a JSON error object and must be labeled as one.
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"error":"unauthorized"`) {
		t.Errorf("body = %q, want unauthorized JSON error", body)
	}
}

func TestRequire_ExpiredToken(t *testing.T) {
	a, ts, user := newTestAuthenticator(t)
	token, _ := ts.generateWithDuration(user, -time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	a.Require(echoUser()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// A cryptographically valid token whose subject no longer exists must fail:
// deleted users don't keep working sessions.
func TestRequire_DeletedUser(t *testing.T) {
	ts := newTestTokenService(t)
	ghost := &model.User{ID: "ghost", Email: "ghost@x.test", Role: model.RoleUser}
	token, _ := ts.Generate(ghost)

	a := NewAuthenticator(ts, &fakeUserLoader{users: map[string]*model.User{}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	a.Require(echoUser()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// RequireAdmin checks the stored role, so a token minted while the user was
// an admin stops working the moment the stored record says otherwise.
func TestRequireAdmin(t *testing.T) {
	ts := newTestTokenService(t)
	admin := &model.User{ID: "adm", Email: "adm@x.test", Role: model.RoleAdmin}
	member := &model.User{ID: "mem", Email: "mem@x.test", Role: model.RoleUser}
	loader := &fakeUserLoader{users: map[string]*model.User{admin.ID: admin, member.ID: member}}
	a := NewAuthenticator(ts, loader)

	handler := a.Require(a.RequireAdmin(echoUser()))

	adminToken, _ := ts.Generate(admin)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}

	memberToken, _ := ts.Generate(member)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+memberToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member status = %d, want 403", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	// Demotion takes effect on the next request even with the old token.
	admin.Role = model.RoleUser
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("demoted admin status = %d, want 403", rec.Code)
	}
}

func TestOptional_AnonymousOnAnyFailure(t *testing.T) {
	a, ts, user := newTestAuthenticator(t)
	expired, _ := ts.generateWithDuration(user, -time.Minute)

	cases := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"no token", func(r *http.Request) {}},
		{"malformed", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nonsense") }},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()

			a.Optional(echoUser()).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (optional auth never blocks)", rec.Code)
			}
			if got := rec.Body.String(); got != "anonymous" {
				t.Errorf("body = %q, want anonymous", got)
			}
		})
	}
}

func TestOptional_ResolvesValidToken(t *testing.T) {
	a, ts, user := newTestAuthenticator(t)
	token, _ := ts.Generate(user)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec := httptest.NewRecorder()

	a.Optional(echoUser()).ServeHTTP(rec, req)

	if got := rec.Body.String(); got != user.ID {
		t.Errorf("body = %q, want %q", got, user.ID)
	}
}
