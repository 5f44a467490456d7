package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/postbridge/configs"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/pkg/utils"
)

func testTwitterConfig() config.Config {
	return config.Config{
		Twitter: config.PlatformCredentials{ClientID: "client-id", ClientSecret: "client-secret"},
	}
}

func newTestTwitterProvider(t *testing.T, s store.Store) *TwitterProvider {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"bearer","expires_in":7200}`))
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"12345","name":"Test","username":"tester"}}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	p := NewTwitterProvider(testTwitterConfig(), s)
	p.authURL = server.URL + "/oauth2/authorize"
	p.tokenURL = server.URL + "/oauth2/token"
	p.apiBaseURL = server.URL
	return p
}

func TestTwitterInitiateAuth(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestTwitterProvider(t, s)

	initiation, err := p.InitiateAuth(ctx, "u1", "https://app.example.com/callback")
	require.NoError(t, err)

	parsed, err := url.Parse(initiation.AuthURL)
	require.NoError(t, err)
	query := parsed.Query()

	assert.Equal(t, initiation.State, query.Get("state"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.NotEmpty(t, query.Get("code_challenge"))
	assert.Equal(t, "client-id", query.Get("client_id"))

	// handshake record persisted under the state token with the verifier
	// matching the challenge
	saved, err := s.GetOAuthState(ctx, initiation.State)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "u1", saved.UserID)
	assert.Equal(t, query.Get("code_challenge"), utils.CodeChallengeS256(saved.CodeVerifier))
}

func TestTwitterHandleCallback(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestTwitterProvider(t, s)

	initiation, err := p.InitiateAuth(ctx, "u1", "https://app.example.com/callback")
	require.NoError(t, err)

	conn, err := p.HandleCallback(ctx, "auth-code", initiation.State, "https://app.example.com/callback")
	require.NoError(t, err)
	require.NotNil(t, conn)

	assert.Equal(t, "u1", conn.UserID)
	assert.True(t, conn.IsValid)
	assert.False(t, conn.NeedsReconnection)

	creds, err := conn.OAuth()
	require.NoError(t, err)
	assert.Equal(t, "at-1", creds.AccessToken)
	assert.Equal(t, "rt-1", creds.RefreshToken)
	assert.Equal(t, "12345", creds.AccountID)
	require.NotNil(t, creds.ExpiresAt)

	saved, err := s.GetConnection(ctx, "u1", models.PlatformTwitter)
	require.NoError(t, err)
	require.NotNil(t, saved)
}

func TestTwitterCallbackStateSingleUse(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestTwitterProvider(t, s)

	initiation, err := p.InitiateAuth(ctx, "u1", "https://app.example.com/callback")
	require.NoError(t, err)

	_, err = p.HandleCallback(ctx, "auth-code", initiation.State, "https://app.example.com/callback")
	require.NoError(t, err)

	// replaying the same callback must fail
	_, err = p.HandleCallback(ctx, "auth-code", initiation.State, "https://app.example.com/callback")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTwitterCallbackUnknownState(t *testing.T) {
	ctx := context.Background()
	p := newTestTwitterProvider(t, store.NewMemoryStore())

	_, err := p.HandleCallback(ctx, "auth-code", "never-issued", "https://app.example.com/callback")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = p.HandleCallback(ctx, "auth-code", "", "https://app.example.com/callback")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTwitterRefreshTokenWithoutRefreshCredential(t *testing.T) {
	ctx := context.Background()
	p := newTestTwitterProvider(t, store.NewMemoryStore())

	conn := &models.Connection{
		UserID:      "u1",
		Platform:    models.PlatformTwitter,
		Credentials: &models.OAuthCredentials{AccessToken: "at"},
	}
	_, err := p.RefreshToken(ctx, conn)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestTwitterDisconnectIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestTwitterProvider(t, s)

	initiation, err := p.InitiateAuth(ctx, "u1", "https://app.example.com/callback")
	require.NoError(t, err)
	_, err = p.HandleCallback(ctx, "auth-code", initiation.State, "https://app.example.com/callback")
	require.NoError(t, err)

	require.NoError(t, p.Disconnect(ctx, "u1"))

	conn, err := s.GetConnection(ctx, "u1", models.PlatformTwitter)
	require.NoError(t, err)
	assert.Nil(t, conn)

	require.NoError(t, p.Disconnect(ctx, "u1"))
}
