package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	config "github.com/maheshrc27/postbridge/configs"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

// MastodonProvider connects with a personal access token issued from the
// user's instance settings page.
type MastodonProvider struct {
	cfg     config.Config
	store   store.Store
	baseURL string
}

func NewMastodonProvider(cfg config.Config, s store.Store) *MastodonProvider {
	return &MastodonProvider{cfg: cfg, store: s, baseURL: cfg.MastodonBaseURL}
}

func (p *MastodonProvider) Platform() string { return models.PlatformMastodon }

func (p *MastodonProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error) {
	return nil, errOAuthNotSupported(models.PlatformMastodon)
}

func (p *MastodonProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	return nil, errOAuthNotSupported(models.PlatformMastodon)
}

func (p *MastodonProvider) Connect(ctx context.Context, userID string, credential map[string]string) (*models.Connection, error) {
	token := credential["token"]
	if token == "" {
		return nil, errors.New("mastodon requires a personal access token")
	}

	// verify before persisting
	if _, err := p.verifyCredentials(ctx, token); err != nil {
		return nil, err
	}

	return saveNewConnection(ctx, p.store, userID, models.PlatformMastodon, &models.TokenCredentials{Token: token})
}

func (p *MastodonProvider) verifyCredentials(ctx context.Context, token string) (*transfer.MastodonAccount, error) {
	reqURL := p.baseURL + "/api/v1/accounts/verify_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mastodon token verification returned status %d", resp.StatusCode)
	}

	var account transfer.MastodonAccount
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (p *MastodonProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	// personal tokens have no refresh flow
	return nil, ErrNoRefreshToken
}

func (p *MastodonProvider) Disconnect(ctx context.Context, userID string) error {
	return p.store.DeleteConnection(ctx, userID, models.PlatformMastodon)
}
