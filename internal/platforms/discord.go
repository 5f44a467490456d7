package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/maheshrc27/postbridge/internal/media"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

const (
	discordContentMax      = 2000
	discordDefaultUsername = "Discord Bot"
)

// DiscordHandler posts through an incoming webhook. Media is referenced by
// URL in an embed rather than uploaded.
type DiscordHandler struct {
	store store.Store
}

func NewDiscordHandler(s store.Store) *DiscordHandler {
	return &DiscordHandler{store: s}
}

func (h *DiscordHandler) Platform() string { return models.PlatformDiscord }

func (h *DiscordHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	creds, ok := conn.Credentials.(*models.WebhookCredentials)
	if !ok {
		return nil, errors.New("discord connection does not carry webhook credentials")
	}
	if creds.WebhookURL == "" {
		return nil, errors.New("discord connection is missing a webhook url")
	}

	username := opts.ProjectName
	if username == "" {
		username = discordDefaultUsername
	}

	message := transfer.DiscordMessage{
		Content:  truncate(opts.Text, discordContentMax),
		Username: username,
	}
	if opts.MediaURL != "" {
		embed := transfer.DiscordEmbed{}
		if media.IsVideoURL(opts.MediaURL) {
			embed.Video = &transfer.DiscordEmbedImage{URL: opts.MediaURL}
		} else {
			embed.Image = &transfer.DiscordEmbedImage{URL: opts.MediaURL}
		}
		message.Embeds = []transfer.DiscordEmbed{embed}
	}

	body, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return failure(models.PlatformDiscord, err.Error()), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(models.PlatformDiscord, err.Error()), nil
	}
	// Webhooks answer 204 with no body unless ?wait=true is set.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		if isAuthError(models.PlatformDiscord, resp.StatusCode, string(respBody)) {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformDiscord)
		}
		return failure(models.PlatformDiscord, fmt.Sprintf("discord webhook returned status %d: %s", resp.StatusCode, respBody)), nil
	}

	markConnectionValid(ctx, h.store, userID, models.PlatformDiscord)
	return success(models.PlatformDiscord, map[string]string{}), nil
}
