package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Profile is the subset of an identity provider's userinfo the game keeps: a
// stable provider ID plus the display fields shown on territory markers.
type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// OAuthProvider runs the OAuth2 login flow for one identity provider. The
// provider name is persisted next to the provider ID, so adding a second
// provider is a matter of another constructor.
type OAuthProvider struct {
	name        string
	userinfoURL string
	config      *oauth2.Config
}

// NewGoogleOAuth creates the Google sign-in provider.
func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return &OAuthProvider{
		name:        "google",
		userinfoURL: googleUserinfoURL,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
	}
}

// LoginURL returns the OAuth2 authorization URL with a state parameter.
func (p *OAuthProvider) LoginURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for the player's profile.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}

	client := p.config.Client(ctx, token)
	resp, err := client.Get(p.userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("oauth userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("oauth userinfo status %d: %s", resp.StatusCode, body)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("oauth userinfo decode: %w", err)
	}
	return &profile, nil
}

// Name returns the provider name stored alongside the player's provider ID.
func (p *OAuthProvider) Name() string {
	return p.name
}
