package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fakeJira(t *testing.T, mux *http.ServeMux) *Jira {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewJira("client-id", "client-secret", "https://localhost/auth/jira/callback",
		WithJiraEndpoints(srv.URL+"/authorize", srv.URL+"/oauth/token", srv.URL))
}

func TestJira_FetchProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "atl_access",
			"refresh_token": "atl_refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer atl_access" {
			t.Errorf("Authorization = %q, want Bearer atl_access", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"account_id": "5b10a2844c20165700ede21g",
			"name":       "Mia Krystof",
			"email":      "mia@x.test",
			"picture":    "https://avatars.example/mia",
		})
	})
	j := fakeJira(t, mux)

	profile, token, err := j.FetchProfile(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}

	if profile.ID != "5b10a2844c20165700ede21g" {
		t.Errorf("ID = %q", profile.ID)
	}
	if profile.Email != "mia@x.test" {
		t.Errorf("Email = %q, want mia@x.test", profile.Email)
	}
	if profile.DisplayName != "Mia Krystof" {
		t.Errorf("DisplayName = %q", profile.DisplayName)
	}
	// offline_access scope: Atlassian issues a refresh token.
	if token.RefreshToken != "atl_refresh" {
		t.Errorf("RefreshToken = %q, want atl_refresh", token.RefreshToken)
	}
}

// Atlassian returns no profile with the token; a failing /me fails the whole
// fetch even after a successful exchange.
func TestJira_FailsWhenProfileFetchFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "atl_access", "token_type": "Bearer"})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	j := fakeJira(t, mux)

	if _, _, err := j.FetchProfile(context.Background(), "good-code"); err == nil {
		t.Fatal("FetchProfile() should fail when /me fails")
	}
}

func TestJira_RejectsMissingAccountID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "atl_access", "token_type": "Bearer"})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"name": "No ID"})
	})
	j := fakeJira(t, mux)

	if _, _, err := j.FetchProfile(context.Background(), "good-code"); err == nil {
		t.Fatal("FetchProfile() should reject a /me response with no account_id")
	}
}

func TestJira_AuthCodeURLCarriesAudience(t *testing.T) {
	j := NewJira("client-id", "client-secret", "https://localhost/cb")

	u := j.AuthCodeURL("state-xyz")
	for _, want := range []string{"state=state-xyz", "audience=api.atlassian.com", "prompt=consent"} {
		if !strings.Contains(u, want) {
			t.Errorf("AuthCodeURL() = %q, missing %q", u, want)
		}
	}
}
