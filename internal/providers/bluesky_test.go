package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/postbridge/configs"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

func newTestBlueskyProvider(t *testing.T, s store.Store) *BlueskyProvider {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var req transfer.BlueskySessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "good-password" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"AuthenticationRequired"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transfer.BlueskySession{
			DID:        "did:plc:abc123",
			Handle:     req.Identifier,
			AccessJwt:  "access-jwt",
			RefreshJwt: "refresh-jwt",
		})
	})
	mux.HandleFunc("/xrpc/com.atproto.server.refreshSession", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer refresh-jwt" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"ExpiredToken"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transfer.BlueskySession{
			AccessJwt:  "access-jwt-2",
			RefreshJwt: "refresh-jwt-2",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := config.Config{BlueskyService: server.URL}
	return NewBlueskyProvider(cfg, s)
}

func TestBlueskyConnect(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestBlueskyProvider(t, s)

	conn, err := p.Connect(ctx, "u1", map[string]string{
		"handle":       "tester.bsky.social",
		"app_password": "good-password",
	})
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.True(t, conn.IsValid)

	creds, err := conn.Session()
	require.NoError(t, err)
	assert.Equal(t, "did:plc:abc123", creds.DID)
	assert.Equal(t, "tester.bsky.social", creds.Handle)
	assert.Equal(t, "access-jwt", creds.AccessJwt)
	assert.Equal(t, "refresh-jwt", creds.RefreshJwt)

	saved, err := s.GetConnection(ctx, "u1", models.PlatformBluesky)
	require.NoError(t, err)
	require.NotNil(t, saved)
}

func TestBlueskyConnectBadPassword(t *testing.T) {
	ctx := context.Background()
	p := newTestBlueskyProvider(t, store.NewMemoryStore())

	_, err := p.Connect(ctx, "u1", map[string]string{
		"handle":       "tester.bsky.social",
		"app_password": "wrong",
	})
	assert.Error(t, err)
}

func TestBlueskyConnectMissingCredential(t *testing.T) {
	ctx := context.Background()
	p := newTestBlueskyProvider(t, store.NewMemoryStore())

	_, err := p.Connect(ctx, "u1", map[string]string{"handle": "tester.bsky.social"})
	assert.Error(t, err)
}

func TestBlueskyRefreshRotatesBothJWTs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestBlueskyProvider(t, s)

	conn, err := p.Connect(ctx, "u1", map[string]string{
		"handle":       "tester.bsky.social",
		"app_password": "good-password",
	})
	require.NoError(t, err)

	refreshed, err := p.RefreshToken(ctx, conn)
	require.NoError(t, err)

	creds, err := refreshed.Session()
	require.NoError(t, err)
	assert.Equal(t, "access-jwt-2", creds.AccessJwt)
	assert.Equal(t, "refresh-jwt-2", creds.RefreshJwt)
	// DID and handle survive a response that omits them
	assert.Equal(t, "did:plc:abc123", creds.DID)
	assert.Equal(t, "tester.bsky.social", creds.Handle)
}

func TestBlueskyOAuthFlowNotSupported(t *testing.T) {
	ctx := context.Background()
	p := newTestBlueskyProvider(t, store.NewMemoryStore())

	_, err := p.InitiateAuth(ctx, "u1", "")
	assert.Error(t, err)

	_, err = p.HandleCallback(ctx, "code", "state", "")
	assert.Error(t, err)
}
