package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/postbridge/configs"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

const (
	tiktokAuthURL  = "https://www.tiktok.com/v2/auth/authorize"
	tiktokTokenURL = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokAPIURL   = "https://open.tiktokapis.com/v2"
)

const tiktokScopes = "user.info.basic,user.info.profile,video.publish,video.upload"

// TikTok names its client id "client_key", so the token endpoints are called
// with manual form posts instead of the oauth2 package.
type TiktokProvider struct {
	cfg        config.Config
	store      store.Store
	states     stateHelper
	authURL    string
	tokenURL   string
	apiBaseURL string
}

func NewTiktokProvider(cfg config.Config, s store.Store) *TiktokProvider {
	return &TiktokProvider{
		cfg:        cfg,
		store:      s,
		states:     stateHelper{store: s},
		authURL:    tiktokAuthURL,
		tokenURL:   tiktokTokenURL,
		apiBaseURL: tiktokAPIURL,
	}
}

func (p *TiktokProvider) Platform() string { return models.PlatformTiktok }

func (p *TiktokProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error) {
	state, err := p.states.beginState(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("client_key", p.cfg.Tiktok.ClientID)
	params.Add("scope", tiktokScopes)
	params.Add("response_type", "code")
	params.Add("redirect_uri", redirectURI)
	params.Add("state", state)

	return &AuthInitiation{
		AuthURL: fmt.Sprintf("%s?%s", p.authURL, params.Encode()),
		State:   state,
	}, nil
}

func (p *TiktokProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	stateData, err := p.states.consumeState(ctx, state)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}

	data := url.Values{}
	data.Add("client_key", p.cfg.Tiktok.ClientID)
	data.Add("client_secret", p.cfg.Tiktok.ClientSecret)
	data.Add("code", code)
	data.Add("grant_type", "authorization_code")
	data.Add("redirect_uri", redirectURI)

	tokenResponse, err := p.postTokenForm(ctx, data)
	if err != nil {
		return nil, err
	}

	user, err := p.fetchUserInfo(ctx, tokenResponse.AccessToken)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second)
	creds := &models.OAuthCredentials{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresAt:    &expiresAt,
		AccountID:    user.Data.User.OpenID,
	}
	return saveNewConnection(ctx, p.store, stateData.UserID, models.PlatformTiktok, creds)
}

func (p *TiktokProvider) postTokenForm(ctx context.Context, data url.Values) (*transfer.TiktokTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tiktok token endpoint returned status %d", resp.StatusCode)
	}

	var tokenResponse transfer.TiktokTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, errors.New("tiktok token response carried no access token")
	}
	return &tokenResponse, nil
}

func (p *TiktokProvider) fetchUserInfo(ctx context.Context, accessToken string) (*transfer.TiktokUserResponse, error) {
	reqURL := p.apiBaseURL + "/user/info/?fields=open_id,avatar_url,display_name,username"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var result transfer.TiktokUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &result, nil
}

func (p *TiktokProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	data := url.Values{}
	data.Set("client_key", p.cfg.Tiktok.ClientID)
	data.Set("client_secret", p.cfg.Tiktok.ClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", creds.RefreshToken)

	tokenResponse, err := p.postTokenForm(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("tiktok token refresh failed: %w", err)
	}

	// TikTok rotates refresh tokens on every refresh.
	refreshToken := tokenResponse.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	expiresAt := time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second)
	updated := &models.OAuthCredentials{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expiresAt,
		AccountID:    creds.AccountID,
	}
	return saveRefreshedCredentials(ctx, p.store, conn, updated)
}

func (p *TiktokProvider) Disconnect(ctx context.Context, userID string) error {
	return p.store.DeleteConnection(ctx, userID, models.PlatformTiktok)
}
