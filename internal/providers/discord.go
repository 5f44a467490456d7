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

// DiscordProvider connects with a channel webhook URL. The webhook id and
// token parsed out of Discord's response are kept alongside the URL.
type DiscordProvider struct {
	cfg   config.Config
	store store.Store
}

func NewDiscordProvider(cfg config.Config, s store.Store) *DiscordProvider {
	return &DiscordProvider{cfg: cfg, store: s}
}

func (p *DiscordProvider) Platform() string { return models.PlatformDiscord }

func (p *DiscordProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error) {
	return nil, errOAuthNotSupported(models.PlatformDiscord)
}

func (p *DiscordProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	return nil, errOAuthNotSupported(models.PlatformDiscord)
}

func (p *DiscordProvider) Connect(ctx context.Context, userID string, credential map[string]string) (*models.Connection, error) {
	webhookURL := credential["webhook_url"]
	if webhookURL == "" {
		return nil, errors.New("discord requires a webhook_url")
	}

	info, err := p.fetchWebhook(ctx, webhookURL)
	if err != nil {
		return nil, err
	}

	creds := &models.WebhookCredentials{
		WebhookURL:   webhookURL,
		WebhookID:    info.ID,
		WebhookToken: info.Token,
	}
	return saveNewConnection(ctx, p.store, userID, models.PlatformDiscord, creds)
}

func (p *DiscordProvider) fetchWebhook(ctx context.Context, webhookURL string) (*transfer.DiscordWebhookInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, webhookURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discord webhook validation returned status %d", resp.StatusCode)
	}

	var info transfer.DiscordWebhookInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (p *DiscordProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	// webhooks carry no refreshable credential
	return nil, ErrNoRefreshToken
}

func (p *DiscordProvider) Disconnect(ctx context.Context, userID string) error {
	return p.store.DeleteConnection(ctx, userID, models.PlatformDiscord)
}
