package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/tuanvu-dev/campushub-auth/internal/model"
)

const githubAPIBase = "https://api.github.com"

// githubUser is the portion of the GitHub /user response we care about.
// GitHub returns a much larger object — we only unmarshal the fields we need.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"` // empty if hidden in GitHub settings
	AvatarURL string `json:"avatar_url"`
}

// githubEmail is one entry of the GitHub /user/emails response.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHub implements Provider for the GitHub Authorization Code flow.
//
// The code-for-token exchange happens server-to-server using the client
// secret; the access token never touches the browser. Fetching the profile
// takes three sequential round-trips: token exchange, GET /user, and
// GET /user/emails — the last one because most GitHub users hide their email
// from the public profile, so /user alone isn't enough.
type GitHub struct {
	config  *oauth2.Config
	apiBase string
	client  *http.Client
}

// GitHubOption customizes a GitHub provider. Used by tests to point the
// client at a local fake.
type GitHubOption func(*GitHub)

// WithGitHubEndpoints overrides the OAuth and API endpoints.
func WithGitHubEndpoints(authURL, tokenURL, apiBase string) GitHubOption {
	return func(g *GitHub) {
		g.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
		g.apiBase = apiBase
	}
}

// NewGitHub creates a GitHub provider with the given OAuth app credentials.
//
// Scopes:
//   - "read:user" — the public profile (ID, login, avatar)
//   - "user:email" — the email list, including private addresses
func NewGitHub(clientID, clientSecret, callbackURL string, opts ...GitHubOption) *GitHub {
	g := &GitHub{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GitHub) Name() model.Provider {
	return model.ProviderGitHub
}

// AuthCodeURL returns the GitHub authorize URL carrying the state value.
func (g *GitHub) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// FetchProfile completes the GitHub flow: code → token → /user → /user/emails.
func (g *GitHub) FetchProfile(ctx context.Context, code string) (*Profile, *Token, error) {
	// Bound every round-trip, including the library-internal exchange, by
	// our timeout-carrying client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)

	oauthToken, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("oauth/github: exchanging code: %w", err)
	}
	if oauthToken.AccessToken == "" {
		return nil, nil, fmt.Errorf("oauth/github: token endpoint returned no access token")
	}

	// oauth2.Config.Client returns an *http.Client that injects the
	// Authorization header on every request.
	client := g.config.Client(ctx, oauthToken)

	var ghUser githubUser
	if err := g.getJSON(ctx, client, g.apiBase+"/user", &ghUser); err != nil {
		return nil, nil, fmt.Errorf("oauth/github: fetching profile: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, nil, fmt.Errorf("oauth/github: provider returned an invalid user (id = 0)")
	}

	email, err := g.primaryEmail(ctx, client)
	if err != nil {
		return nil, nil, fmt.Errorf("oauth/github: fetching emails: %w", err)
	}
	if email == "" {
		email = ghUser.Email
	}

	profile := &Profile{
		ID:          strconv.FormatInt(ghUser.ID, 10),
		Username:    ghUser.Login,
		Email:       email,
		DisplayName: ghUser.Name,
		AvatarURL:   ghUser.AvatarURL,
	}
	token := &Token{
		AccessToken:  oauthToken.AccessToken,
		RefreshToken: oauthToken.RefreshToken,
	}
	return profile, token, nil
}

// primaryEmail selects from the /user/emails list: primary verified first,
// then any verified. Unverified addresses are skipped entirely — a profile
// email can silently merge accounts downstream, so an address the provider
// hasn't confirmed must never reach the resolution engine. No verified email
// is not an error here; the resolution engine synthesizes a placeholder.
func (g *GitHub) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []githubEmail
	if err := g.getJSON(ctx, client, g.apiBase+"/user/emails", &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func (g *GitHub) getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
