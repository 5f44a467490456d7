package platforms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
)

// fakeRefresher records refresh calls and hands back a connection with fresh
// credentials.
type fakeRefresher struct {
	calls int
	err   error
	token string
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	expires := time.Now().Add(2 * time.Hour)
	refreshed := *conn
	refreshed.Credentials = &models.OAuthCredentials{
		AccessToken:  f.token,
		RefreshToken: "rt-new",
		ExpiresAt:    &expires,
	}
	return &refreshed, nil
}

func twitterConnection(token string, expiresAt *time.Time) *models.Connection {
	return &models.Connection{
		UserID:   "u1",
		Platform: models.PlatformTwitter,
		IsValid:  true,
		Credentials: &models.OAuthCredentials{
			AccessToken:  token,
			RefreshToken: "rt",
			ExpiresAt:    expiresAt,
		},
	}
}

func newTweetServer(t *testing.T, wantToken string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tweets", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+wantToken {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"title":"Unauthorized"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"tweet-1","text":"hello"}}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestTwitterSendPost(t *testing.T) {
	ctx := context.Background()
	server := newTweetServer(t, "at-valid")

	s := store.NewMemoryStore()
	refresher := &fakeRefresher{token: "at-valid"}
	h := NewTwitterHandler(s, refresher)
	h.apiURL = server.URL

	expires := time.Now().Add(2 * time.Hour)
	conn := twitterConnection("at-valid", &expires)
	require.NoError(t, s.SaveConnection(ctx, "u1", models.PlatformTwitter, conn))

	result, err := h.SendPost(ctx, "u1", conn, &models.PostOptions{Text: "hello"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "tweet-1", result.Result["id"])
	assert.Zero(t, refresher.calls)

	saved, err := s.GetConnection(ctx, "u1", models.PlatformTwitter)
	require.NoError(t, err)
	assert.True(t, saved.IsValid)
	require.NotNil(t, saved.LastValidated)
}

func TestTwitterProactiveRefreshOnExpiredToken(t *testing.T) {
	ctx := context.Background()
	server := newTweetServer(t, "at-fresh")

	s := store.NewMemoryStore()
	refresher := &fakeRefresher{token: "at-fresh"}
	h := NewTwitterHandler(s, refresher)
	h.apiURL = server.URL

	expires := time.Now().Add(time.Minute) // inside the refresh buffer
	conn := twitterConnection("at-stale", &expires)
	require.NoError(t, s.SaveConnection(ctx, "u1", models.PlatformTwitter, conn))

	result, err := h.SendPost(ctx, "u1", conn, &models.PostOptions{Text: "hello"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, refresher.calls)
}

func TestTwitterProactiveRefreshOnMissingExpiry(t *testing.T) {
	ctx := context.Background()
	server := newTweetServer(t, "at-fresh")

	s := store.NewMemoryStore()
	refresher := &fakeRefresher{token: "at-fresh"}
	h := NewTwitterHandler(s, refresher)
	h.apiURL = server.URL

	conn := twitterConnection("at-stale", nil)
	require.NoError(t, s.SaveConnection(ctx, "u1", models.PlatformTwitter, conn))

	result, err := h.SendPost(ctx, "u1", conn, &models.PostOptions{Text: "hello"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, refresher.calls)
}

func TestTwitterReactiveRefreshAndRetry(t *testing.T) {
	ctx := context.Background()
	server := newTweetServer(t, "at-fresh")

	s := store.NewMemoryStore()
	refresher := &fakeRefresher{token: "at-fresh"}
	h := NewTwitterHandler(s, refresher)
	h.apiURL = server.URL

	// not yet expired, so the first attempt goes out with the stale token
	// and comes back 401
	expires := time.Now().Add(2 * time.Hour)
	conn := twitterConnection("at-stale", &expires)
	require.NoError(t, s.SaveConnection(ctx, "u1", models.PlatformTwitter, conn))

	result, err := h.SendPost(ctx, "u1", conn, &models.PostOptions{Text: "hello"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "tweet-1", result.Result["id"])
	assert.Equal(t, 1, refresher.calls)
}

func TestTwitterRefreshFailureMarksReconnection(t *testing.T) {
	ctx := context.Background()
	server := newTweetServer(t, "at-valid")

	s := store.NewMemoryStore()
	refresher := &fakeRefresher{err: errors.New("refresh rejected")}
	h := NewTwitterHandler(s, refresher)
	h.apiURL = server.URL

	expires := time.Now().Add(2 * time.Hour)
	conn := twitterConnection("at-revoked", &expires)
	require.NoError(t, s.SaveConnection(ctx, "u1", models.PlatformTwitter, conn))

	result, err := h.SendPost(ctx, "u1", conn, &models.PostOptions{Text: "hello"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 1, refresher.calls)

	saved, err := s.GetConnection(ctx, "u1", models.PlatformTwitter)
	require.NoError(t, err)
	assert.False(t, saved.IsValid)
	assert.True(t, saved.NeedsReconnection)
}

func TestTwitterRetriesExactlyOnce(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"title":"Unauthorized"}`))
	}))
	defer server.Close()

	s := store.NewMemoryStore()
	refresher := &fakeRefresher{token: "at-still-bad"}
	h := NewTwitterHandler(s, refresher)
	h.apiURL = server.URL

	expires := time.Now().Add(2 * time.Hour)
	conn := twitterConnection("at-bad", &expires)
	require.NoError(t, s.SaveConnection(ctx, "u1", models.PlatformTwitter, conn))

	result, err := h.SendPost(ctx, "u1", conn, &models.PostOptions{Text: "hello"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, refresher.calls)

	saved, err := s.GetConnection(ctx, "u1", models.PlatformTwitter)
	require.NoError(t, err)
	assert.True(t, saved.NeedsReconnection)
}

func TestTwitterMissingAccessTokenIsConfigError(t *testing.T) {
	h := NewTwitterHandler(store.NewMemoryStore(), &fakeRefresher{})

	conn := &models.Connection{
		UserID:      "u1",
		Platform:    models.PlatformTwitter,
		Credentials: &models.OAuthCredentials{},
	}
	_, err := h.SendPost(context.Background(), "u1", conn, &models.PostOptions{Text: "hello"})
	assert.Error(t, err)
}

func TestTruncateIsRuneSafe(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 10))
	assert.Equal(t, "hél", truncate("héllo", 3))
	assert.Equal(t, "日本語", truncate("日本語のテキスト", 3))
}
