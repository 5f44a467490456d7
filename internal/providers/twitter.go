package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	config "github.com/maheshrc27/postbridge/configs"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	twitterAuthURL  = "https://twitter.com/i/oauth2/authorize"
	twitterTokenURL = "https://api.twitter.com/2/oauth2/token"
	twitterAPIURL   = "https://api.twitter.com/2"
)

// TwitterProvider implements the PKCE OAuth2 handshake for Twitter/X.
type TwitterProvider struct {
	cfg        config.Config
	store      store.Store
	states     stateHelper
	authURL    string
	tokenURL   string
	apiBaseURL string
}

func NewTwitterProvider(cfg config.Config, s store.Store) *TwitterProvider {
	return &TwitterProvider{
		cfg:        cfg,
		store:      s,
		states:     stateHelper{store: s},
		authURL:    twitterAuthURL,
		tokenURL:   twitterTokenURL,
		apiBaseURL: twitterAPIURL,
	}
}

func (p *TwitterProvider) Platform() string { return models.PlatformTwitter }

func (p *TwitterProvider) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.Twitter.ClientID,
		ClientSecret: p.cfg.Twitter.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.authURL,
			TokenURL:  p.tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (p *TwitterProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error) {
	verifier := oauth2.GenerateVerifier()
	state, err := p.states.beginState(ctx, userID, verifier)
	if err != nil {
		return nil, err
	}

	authURL := p.oauthConfig(redirectURI).AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return &AuthInitiation{AuthURL: authURL, State: state}, nil
}

func (p *TwitterProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	stateData, err := p.states.consumeState(ctx, state)
	if err != nil {
		return nil, err
	}

	conf := p.oauthConfig(redirectURI)
	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(stateData.CodeVerifier))
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("twitter code exchange failed: %w", err)
	}

	user, err := p.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	expiresAt := token.Expiry
	creds := &models.OAuthCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    &expiresAt,
		AccountID:    user.Data.ID,
	}
	return saveNewConnection(ctx, p.store, stateData.UserID, models.PlatformTwitter, creds)
}

func (p *TwitterProvider) fetchUser(ctx context.Context, accessToken string) (*transfer.TwitterUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitter user lookup returned status %d", resp.StatusCode)
	}

	var user transfer.TwitterUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &user, nil
}

func (p *TwitterProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	conf := p.oauthConfig("")
	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("twitter token refresh failed: %w", err)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	expiresAt := token.Expiry
	updated := &models.OAuthCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expiresAt,
		AccountID:    creds.AccountID,
	}
	return saveRefreshedCredentials(ctx, p.store, conn, updated)
}

func (p *TwitterProvider) Disconnect(ctx context.Context, userID string) error {
	return p.store.DeleteConnection(ctx, userID, models.PlatformTwitter)
}
