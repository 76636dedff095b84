package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/tuanvu-dev/campushub-auth/internal/model"
)

const (
	atlassianAuthURL  = "https://auth.atlassian.com/authorize"
	atlassianTokenURL = "https://auth.atlassian.com/oauth/token"
	atlassianAPIBase  = "https://api.atlassian.com"
)

// atlassianMe is the https://api.atlassian.com/me response.
type atlassianMe struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Picture   string `json:"picture"`
}

// Jira implements Provider for Atlassian's three-legged OAuth 2.0 (3LO).
//
// Unlike GitHub, Atlassian returns nothing about the user with the token —
// the profile must be fetched from the /me endpoint afterwards. The
// "offline_access" scope makes Atlassian issue a refresh token, which we
// store on the link record.
type Jira struct {
	config  *oauth2.Config
	apiBase string
	client  *http.Client
}

// JiraOption customizes a Jira provider; tests use it to target a local fake.
type JiraOption func(*Jira)

// WithJiraEndpoints overrides the OAuth and API endpoints.
func WithJiraEndpoints(authURL, tokenURL, apiBase string) JiraOption {
	return func(j *Jira) {
		j.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
		j.apiBase = apiBase
	}
}

// NewJira creates a Jira/Atlassian provider with the given 3LO app
// credentials. Atlassian requires HTTPS callback URLs in production.
func NewJira(clientID, clientSecret, callbackURL string, opts ...JiraOption) *Jira {
	j := &Jira{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:me", "offline_access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  atlassianAuthURL,
				TokenURL: atlassianTokenURL,
			},
		},
		apiBase: atlassianAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Jira) Name() model.Provider {
	return model.ProviderJira
}

// AuthCodeURL returns the Atlassian authorize URL. The audience and prompt
// parameters are required by Atlassian's 3LO implementation.
func (j *Jira) AuthCodeURL(state string) string {
	return j.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// FetchProfile exchanges the code and fetches the profile from /me.
func (j *Jira) FetchProfile(ctx context.Context, code string) (*Profile, *Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, j.client)

	oauthToken, err := j.config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("oauth/jira: exchanging code: %w", err)
	}
	if oauthToken.AccessToken == "" {
		return nil, nil, fmt.Errorf("oauth/jira: token endpoint returned no access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.apiBase+"/me", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("oauth/jira: building /me request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+oauthToken.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("oauth/jira: fetching profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("oauth/jira: /me returned status %d", resp.StatusCode)
	}

	var me atlassianMe
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, nil, fmt.Errorf("oauth/jira: decoding /me response: %w", err)
	}
	if me.AccountID == "" {
		return nil, nil, fmt.Errorf("oauth/jira: provider returned no account id")
	}

	profile := &Profile{
		ID:          me.AccountID,
		Username:    me.Name,
		Email:       me.Email,
		DisplayName: me.Name,
		AvatarURL:   me.Picture,
	}
	token := &Token{
		AccessToken:  oauthToken.AccessToken,
		RefreshToken: oauthToken.RefreshToken,
	}
	return profile, token, nil
}
