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
	linkedinAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	linkedinTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	linkedinAPIURL   = "https://api.linkedin.com/v2"
)

type LinkedInProvider struct {
	cfg        config.Config
	store      store.Store
	states     stateHelper
	authURL    string
	tokenURL   string
	apiBaseURL string
}

func NewLinkedInProvider(cfg config.Config, s store.Store) *LinkedInProvider {
	return &LinkedInProvider{
		cfg:        cfg,
		store:      s,
		states:     stateHelper{store: s},
		authURL:    linkedinAuthURL,
		tokenURL:   linkedinTokenURL,
		apiBaseURL: linkedinAPIURL,
	}
}

func (p *LinkedInProvider) Platform() string { return models.PlatformLinkedIn }

func (p *LinkedInProvider) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.LinkedIn.ClientID,
		ClientSecret: p.cfg.LinkedIn.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "profile", "email", "w_member_social"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.authURL,
			TokenURL:  p.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (p *LinkedInProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error) {
	state, err := p.states.beginState(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	authURL := p.oauthConfig(redirectURI).AuthCodeURL(state)
	return &AuthInitiation{AuthURL: authURL, State: state}, nil
}

func (p *LinkedInProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	stateData, err := p.states.consumeState(ctx, state)
	if err != nil {
		return nil, err
	}

	token, err := p.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("linkedin code exchange failed: %w", err)
	}

	userInfo, err := p.fetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	expiresAt := token.Expiry
	creds := &models.OAuthCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    &expiresAt,
		AccountID:    userInfo.Sub,
	}
	return saveNewConnection(ctx, p.store, stateData.UserID, models.PlatformLinkedIn, creds)
}

func (p *LinkedInProvider) fetchUserInfo(ctx context.Context, accessToken string) (*transfer.LinkedInUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/userinfo", nil)
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
		return nil, fmt.Errorf("linkedin userinfo returned status %d", resp.StatusCode)
	}

	var userInfo transfer.LinkedInUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &userInfo, nil
}

func (p *LinkedInProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		// LinkedIn only issues refresh tokens to approved apps.
		return nil, ErrNoRefreshToken
	}

	tokenSource := p.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("linkedin token refresh failed: %w", err)
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

func (p *LinkedInProvider) Disconnect(ctx context.Context, userID string) error {
	return p.store.DeleteConnection(ctx, userID, models.PlatformLinkedIn)
}
