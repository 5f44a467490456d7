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

const devtoAPIURL = "https://dev.to/api"

type DevtoProvider struct {
	cfg     config.Config
	store   store.Store
	baseURL string
}

func NewDevtoProvider(cfg config.Config, s store.Store) *DevtoProvider {
	return &DevtoProvider{cfg: cfg, store: s, baseURL: devtoAPIURL}
}

func (p *DevtoProvider) Platform() string { return models.PlatformDevto }

func (p *DevtoProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error) {
	return nil, errOAuthNotSupported(models.PlatformDevto)
}

func (p *DevtoProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	return nil, errOAuthNotSupported(models.PlatformDevto)
}

func (p *DevtoProvider) Connect(ctx context.Context, userID string, credential map[string]string) (*models.Connection, error) {
	apiKey := credential["api_key"]
	if apiKey == "" {
		return nil, errors.New("devto requires an api_key")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("devto api key validation returned status %d", resp.StatusCode)
	}

	var user transfer.DevtoUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}

	return saveNewConnection(ctx, p.store, userID, models.PlatformDevto, &models.APIKeyCredentials{APIKey: apiKey})
}

func (p *DevtoProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	return nil, ErrNoRefreshToken
}

func (p *DevtoProvider) Disconnect(ctx context.Context, userID string) error {
	return p.store.DeleteConnection(ctx, userID, models.PlatformDevto)
}
