package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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
	instagramAuthURL  = "https://www.instagram.com/oauth/authorize"
	instagramTokenURL = "https://api.instagram.com/oauth/access_token"
	instagramGraphURL = "https://graph.instagram.com"
)

const instagramScopes = "instagram_business_basic,instagram_business_content_publish"

// Instagram exchanges the authorization code for a short-lived token, then
// immediately trades it for a long-lived one. The long-lived token doubles
// as the refresh credential.
type InstagramProvider struct {
	cfg      config.Config
	store    store.Store
	states   stateHelper
	authURL  string
	tokenURL string
	graphURL string
}

func NewInstagramProvider(cfg config.Config, s store.Store) *InstagramProvider {
	return &InstagramProvider{
		cfg:      cfg,
		store:    s,
		states:   stateHelper{store: s},
		authURL:  instagramAuthURL,
		tokenURL: instagramTokenURL,
		graphURL: instagramGraphURL,
	}
}

func (p *InstagramProvider) Platform() string { return models.PlatformInstagram }

func (p *InstagramProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error) {
	state, err := p.states.beginState(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("client_id", p.cfg.Instagram.ClientID)
	params.Add("scope", instagramScopes)
	params.Add("response_type", "code")
	params.Add("redirect_uri", redirectURI)
	params.Add("state", state)

	return &AuthInitiation{
		AuthURL: fmt.Sprintf("%s?%s", p.authURL, params.Encode()),
		State:   state,
	}, nil
}

func (p *InstagramProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	stateData, err := p.states.consumeState(ctx, state)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}

	token, err := p.exchangeCodeForToken(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}

	userInfo, err := p.fetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	expiresAt := token.ExpiresAt
	creds := &models.OAuthCredentials{
		AccessToken: token.AccessToken,
		// the long-lived token is also the refresh credential
		RefreshToken: token.AccessToken,
		ExpiresAt:    &expiresAt,
		AccountID:    userInfo.UserID,
	}
	return saveNewConnection(ctx, p.store, stateData.UserID, models.PlatformInstagram, creds)
}

func (p *InstagramProvider) exchangeCodeForToken(ctx context.Context, code, redirectURI string) (*transfer.InstagramToken, error) {
	data := url.Values{}
	data.Set("client_id", p.cfg.Instagram.ClientID)
	data.Set("client_secret", p.cfg.Instagram.ClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", redirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to get short-lived token: %w", err)
	}
	defer resp.Body.Close()

	var shortLived struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&shortLived); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if shortLived.AccessToken == "" {
		return nil, errors.New("instagram token response carried no access token")
	}

	return p.exchangeForLongLived(ctx, shortLived.AccessToken)
}

func (p *InstagramProvider) exchangeForLongLived(ctx context.Context, shortLivedToken string) (*transfer.InstagramToken, error) {
	reqURL := fmt.Sprintf(
		"%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		p.graphURL, p.cfg.Instagram.ClientSecret, shortLivedToken,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("error response from instagram: %s (status %d)", body, resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode long-lived token response: %w", err)
	}

	return &transfer.InstagramToken{
		AccessToken: result.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

func (p *InstagramProvider) fetchUserInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	reqURL := fmt.Sprintf(
		"%s/me?fields=id,username,name,account_type,profile_picture_url&access_token=%s",
		p.graphURL, accessToken,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var userInfo transfer.InstagramUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &userInfo, nil
}

func (p *InstagramProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	reqURL := fmt.Sprintf(
		"%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		p.graphURL, creds.RefreshToken,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("instagram token refresh failed: %s (status %d)", body, resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	updated := &models.OAuthCredentials{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    &expiresAt,
		AccountID:    creds.AccountID,
	}
	return saveRefreshedCredentials(ctx, p.store, conn, updated)
}

func (p *InstagramProvider) Disconnect(ctx context.Context, userID string) error {
	return p.store.DeleteConnection(ctx, userID, models.PlatformInstagram)
}
