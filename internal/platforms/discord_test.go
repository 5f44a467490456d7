package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

func discordConnection(webhookURL string) *models.Connection {
	return &models.Connection{
		UserID:      "u1",
		Platform:    models.PlatformDiscord,
		IsValid:     true,
		Credentials: &models.WebhookCredentials{WebhookURL: webhookURL, WebhookID: "wh-1"},
	}
}

func TestDiscordSendPost(t *testing.T) {
	var received transfer.DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s := store.NewMemoryStore()
	h := NewDiscordHandler(s)

	result, err := h.SendPost(context.Background(), "u1", discordConnection(server.URL), &models.PostOptions{
		Text:        "hello discord",
		ProjectName: "My Project",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.PlatformDiscord, result.Platform)

	assert.Equal(t, "hello discord", received.Content)
	assert.Equal(t, "My Project", received.Username)
}

func TestDiscordDefaultUsername(t *testing.T) {
	var received transfer.DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	h := NewDiscordHandler(store.NewMemoryStore())

	result, err := h.SendPost(context.Background(), "u1", discordConnection(server.URL), &models.PostOptions{Text: "hi"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Discord Bot", received.Username)
}

func TestDiscordTruncatesContent(t *testing.T) {
	var received transfer.DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	h := NewDiscordHandler(store.NewMemoryStore())

	long := strings.Repeat("x", 2500)
	result, err := h.SendPost(context.Background(), "u1", discordConnection(server.URL), &models.PostOptions{Text: long})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, received.Content, 2000)
}

func TestDiscordMediaGoesIntoEmbed(t *testing.T) {
	var received transfer.DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	h := NewDiscordHandler(store.NewMemoryStore())

	_, err := h.SendPost(context.Background(), "u1", discordConnection(server.URL), &models.PostOptions{
		Text:     "with media",
		MediaURL: "https://cdn.example.com/photo.png",
	})
	require.NoError(t, err)

	require.Len(t, received.Embeds, 1)
	require.NotNil(t, received.Embeds[0].Image)
	assert.Equal(t, "https://cdn.example.com/photo.png", received.Embeds[0].Image.URL)
	assert.Nil(t, received.Embeds[0].Video)
}

func TestDiscordWebhookGone(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Invalid Webhook Token"}`))
	}))
	defer server.Close()

	s := store.NewMemoryStore()
	conn := discordConnection(server.URL)
	require.NoError(t, s.SaveConnection(ctx, "u1", models.PlatformDiscord, conn))

	h := NewDiscordHandler(s)

	result, err := h.SendPost(ctx, "u1", conn, &models.PostOptions{Text: "hi"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	saved, err := s.GetConnection(ctx, "u1", models.PlatformDiscord)
	require.NoError(t, err)
	assert.False(t, saved.IsValid)
	assert.True(t, saved.NeedsReconnection)
}

func TestDiscordWrongCredentialShape(t *testing.T) {
	h := NewDiscordHandler(store.NewMemoryStore())

	conn := &models.Connection{
		UserID:      "u1",
		Platform:    models.PlatformDiscord,
		Credentials: &models.OAuthCredentials{AccessToken: "nope"},
	}
	_, err := h.SendPost(context.Background(), "u1", conn, &models.PostOptions{Text: "hi"})
	assert.Error(t, err)
}
