package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

func TestDevtoSendPost(t *testing.T) {
	var received transfer.DevtoArticleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":777,"url":"https://dev.to/tester/post"}`))
	}))
	defer server.Close()

	h := NewDevtoHandler(store.NewMemoryStore())
	h.apiURL = server.URL

	conn := &models.Connection{
		UserID:      "u1",
		Platform:    models.PlatformDevto,
		Credentials: &models.APIKeyCredentials{APIKey: "secret-key"},
	}
	opts := &models.PostOptions{
		Text:     "# Body\n\nsome markdown",
		MediaURL: "https://cdn.example.com/cover.png",
		PostData: map[string]any{
			"title":  "My Article",
			"series": "Go Notes",
			"tags":   []string{"go", "tooling"},
		},
	}

	result, err := h.SendPost(context.Background(), "u1", conn, opts)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "777", result.Result["id"])
	assert.Equal(t, "https://dev.to/tester/post", result.Result["url"])

	assert.Equal(t, "My Article", received.Article.Title)
	assert.Equal(t, opts.Text, received.Article.BodyMarkdown)
	assert.True(t, received.Article.Published)
	assert.Equal(t, "https://cdn.example.com/cover.png", received.Article.MainImage)
	assert.Equal(t, "Go Notes", received.Article.Series)
	assert.Equal(t, []string{"go", "tooling"}, received.Article.Tags)
}

func TestDevtoTitleFallsBackToFirstLine(t *testing.T) {
	var received transfer.DevtoArticleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1,"url":"https://dev.to/x"}`))
	}))
	defer server.Close()

	h := NewDevtoHandler(store.NewMemoryStore())
	h.apiURL = server.URL

	conn := &models.Connection{
		UserID:      "u1",
		Platform:    models.PlatformDevto,
		Credentials: &models.APIKeyCredentials{APIKey: "k"},
	}

	_, err := h.SendPost(context.Background(), "u1", conn, &models.PostOptions{Text: "First line\nrest of the body"})
	require.NoError(t, err)
	assert.Equal(t, "First line", received.Article.Title)
}

func TestDevtoInvalidKeyMarksReconnection(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer server.Close()

	s := store.NewMemoryStore()
	h := NewDevtoHandler(s)
	h.apiURL = server.URL

	conn := &models.Connection{
		UserID:      "u1",
		Platform:    models.PlatformDevto,
		IsValid:     true,
		Credentials: &models.APIKeyCredentials{APIKey: "revoked"},
	}
	require.NoError(t, s.SaveConnection(ctx, "u1", models.PlatformDevto, conn))

	result, err := h.SendPost(ctx, "u1", conn, &models.PostOptions{Text: "body"})
	require.NoError(t, err)
	assert.False(t, result.Success)

	saved, err := s.GetConnection(ctx, "u1", models.PlatformDevto)
	require.NoError(t, err)
	assert.True(t, saved.NeedsReconnection)
}
