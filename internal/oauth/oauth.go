// Package oauth implements the external identity fetchers.
//
// Each provider is a capability behind the same two operations: build the
// authorize redirect URL, and turn an authorization code into a profile plus
// provider tokens. GitHub and Jira differ in mechanics (GitHub needs extra
// API calls to learn the verified email; Atlassian returns no profile with
// the token at all), so each gets its own implementation selected by the
// provider tag.
//
// Errors from any step are returned with full detail for internal logging;
// callers collapse them into the single normalized OAuth failure before
// anything reaches the client.
package oauth

import (
	"context"

	"github.com/tuanvu-dev/campushub-auth/internal/model"
)

// Profile is the provider-agnostic identity snapshot used by the resolution
// engine. ID is the provider-assigned user ID — stable, never recycled.
type Profile struct {
	ID          string
	Username    string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Token holds the provider credentials obtained from the code exchange.
// RefreshToken is empty for providers that don't issue one (GitHub OAuth
// apps).
type Token struct {
	AccessToken  string
	RefreshToken string
}

// Provider is the per-provider OAuth capability.
type Provider interface {
	// Name returns the provider tag used in routes and link records.
	Name() model.Provider

	// AuthCodeURL builds the provider authorize URL carrying the given
	// anti-forgery state.
	AuthCodeURL(state string) string

	// FetchProfile exchanges the authorization code and fetches the user's
	// profile. Every network step is a hard dependency: any failure fails
	// the whole operation.
	FetchProfile(ctx context.Context, code string) (*Profile, *Token, error)
}

// Registry maps provider tags to configured providers. Unconfigured
// providers are simply absent.
type Registry map[model.Provider]Provider

// Get returns the provider for a tag, or (nil, false) when that provider is
// not configured.
func (r Registry) Get(p model.Provider) (Provider, bool) {
	prov, ok := r[p]
	return prov, ok
}
