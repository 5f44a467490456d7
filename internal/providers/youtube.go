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
	"golang.org/x/oauth2/google"
)

var youtubeScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/youtube.upload",
}

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"

type YoutubeProvider struct {
	cfg         config.Config
	store       store.Store
	states      stateHelper
	endpoint    oauth2.Endpoint
	userInfoURL string
}

func NewYoutubeProvider(cfg config.Config, s store.Store) *YoutubeProvider {
	return &YoutubeProvider{
		cfg:         cfg,
		store:       s,
		states:      stateHelper{store: s},
		endpoint:    google.Endpoint,
		userInfoURL: googleUserInfoURL,
	}
}

func (p *YoutubeProvider) Platform() string { return models.PlatformYoutube }

func (p *YoutubeProvider) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.Google.ClientID,
		ClientSecret: p.cfg.Google.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       youtubeScopes,
		Endpoint:     p.endpoint,
	}
}

func (p *YoutubeProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error) {
	state, err := p.states.beginState(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	authURL := p.oauthConfig(redirectURI).AuthCodeURL(state,
		oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return &AuthInitiation{AuthURL: authURL, State: state}, nil
}

func (p *YoutubeProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	stateData, err := p.states.consumeState(ctx, state)
	if err != nil {
		return nil, err
	}

	conf := p.oauthConfig(redirectURI)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("google code exchange failed: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("google did not return a refresh token; revoke app access and retry")
	}

	userInfo, err := p.fetchUserInfo(ctx, conf.Client(ctx, token))
	if err != nil {
		return nil, err
	}

	expiresAt := token.Expiry
	creds := &models.OAuthCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    &expiresAt,
		AccountID:    userInfo.ID,
	}
	return saveNewConnection(ctx, p.store, stateData.UserID, models.PlatformYoutube, creds)
}

func (p *YoutubeProvider) fetchUserInfo(ctx context.Context, client *http.Client) (*transfer.GoogleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error fetching user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response status: %d", resp.StatusCode)
	}

	var userInfo transfer.GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error decoding user info: %w", err)
	}
	return &userInfo, nil
}

func (p *YoutubeProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	tokenSource := p.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("google token refresh failed: %w", err)
	}

	expiresAt := token.Expiry
	updated := &models.OAuthCredentials{
		AccessToken: token.AccessToken,
		// Google does not rotate refresh tokens
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    &expiresAt,
		AccountID:    creds.AccountID,
	}
	return saveRefreshedCredentials(ctx, p.store, conn, updated)
}

func (p *YoutubeProvider) Disconnect(ctx context.Context, userID string) error {
	return p.store.DeleteConnection(ctx, userID, models.PlatformYoutube)
}
