package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/providers"
	"github.com/maheshrc27/postbridge/internal/store"
)

// stubHandler gives each test full control over one platform's behavior.
type stubHandler struct {
	platform string
	result   *models.PostResult
	err      error
	panics   bool
}

func (h *stubHandler) Platform() string { return h.platform }

func (h *stubHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	if h.panics {
		panic("handler exploded")
	}
	if h.err != nil {
		return nil, h.err
	}
	return h.result, nil
}

func seedConnection(t *testing.T, s store.Store, platform string) {
	t.Helper()
	err := s.SaveConnection(context.Background(), "u1", platform, &models.Connection{
		UserID:      "u1",
		Platform:    platform,
		IsValid:     true,
		Credentials: &models.OAuthCredentials{AccessToken: "at"},
	})
	require.NoError(t, err)
}

func TestPostToPlatformUnsupported(t *testing.T) {
	d := New(store.NewMemoryStore())

	_, err := d.PostToPlatform(context.Background(), "u1", "myspace", &models.PostOptions{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported platform")
}

func TestPostToPlatformNotConnected(t *testing.T) {
	d := New(store.NewMemoryStore())
	d.RegisterHandler(&stubHandler{platform: models.PlatformTwitter})

	_, err := d.PostToPlatform(context.Background(), "u1", models.PlatformTwitter, &models.PostOptions{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no twitter connection")
}

func TestPostToPlatformNeedsReconnection(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.SaveConnection(ctx, "u1", models.PlatformTwitter, &models.Connection{
		UserID:            "u1",
		Platform:          models.PlatformTwitter,
		NeedsReconnection: true,
		Credentials:       &models.OAuthCredentials{},
	}))

	d := New(s)
	d.RegisterHandler(&stubHandler{platform: models.PlatformTwitter})

	result, err := d.PostToPlatform(ctx, "u1", models.PlatformTwitter, &models.PostOptions{Text: "hi"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "reconnected")
}

func TestPostToPlatformHandlerErrorBecomesResult(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedConnection(t, s, models.PlatformTwitter)

	d := New(s)
	d.RegisterHandler(&stubHandler{platform: models.PlatformTwitter, err: errors.New("missing credential field")})

	result, err := d.PostToPlatform(ctx, "u1", models.PlatformTwitter, &models.PostOptions{Text: "hi"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "missing credential field", result.Error)
}

func TestPostToAllPreservesOrderAndNeverAborts(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedConnection(t, s, models.PlatformTwitter)
	seedConnection(t, s, models.PlatformMastodon)
	seedConnection(t, s, models.PlatformDevto)

	d := New(s)
	d.RegisterHandler(&stubHandler{
		platform: models.PlatformTwitter,
		result:   &models.PostResult{Platform: models.PlatformTwitter, Success: true, Result: map[string]string{"id": "1"}},
	})
	d.RegisterHandler(&stubHandler{platform: models.PlatformMastodon, panics: true})
	d.RegisterHandler(&stubHandler{
		platform: models.PlatformDevto,
		result:   &models.PostResult{Platform: models.PlatformDevto, Success: false, Error: "api down"},
	})

	targets := []string{models.PlatformTwitter, models.PlatformMastodon, "myspace", models.PlatformDevto}
	results := d.PostToAll(ctx, "u1", targets, &models.PostOptions{Text: "hi"})

	require.Len(t, results, len(targets))
	for i, result := range results {
		assert.Equal(t, targets[i], result.Platform, "slot %d", i)
	}

	assert.True(t, results[0].Success)
	assert.Equal(t, "1", results[0].Result["id"])

	// the panicking handler fails only its own slot
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "internal error")

	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "unsupported platform")

	assert.False(t, results[3].Success)
	assert.Equal(t, "api down", results[3].Error)
}

func TestPostToAllDefaultsToEveryPlatform(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedConnection(t, s, models.PlatformTwitter)
	seedConnection(t, s, models.PlatformDevto)

	d := New(s)
	d.RegisterHandler(&stubHandler{
		platform: models.PlatformTwitter,
		result:   &models.PostResult{Platform: models.PlatformTwitter, Success: true},
	})
	d.RegisterHandler(&stubHandler{
		platform: models.PlatformDevto,
		result:   &models.PostResult{Platform: models.PlatformDevto, Success: true},
	})

	results := d.PostToAll(ctx, "u1", nil, &models.PostOptions{Text: "hi"})

	require.Len(t, results, 2)
	assert.Equal(t, models.PlatformDevto, results[0].Platform)
	assert.Equal(t, models.PlatformTwitter, results[1].Platform)
	for _, result := range results {
		assert.True(t, result.Success)
	}
}

func TestPlatformsListsRegisteredHandlers(t *testing.T) {
	d := New(store.NewMemoryStore())
	d.RegisterHandler(&stubHandler{platform: models.PlatformTwitter})
	d.RegisterHandler(&stubHandler{platform: models.PlatformDevto})

	assert.Equal(t, []string{models.PlatformDevto, models.PlatformTwitter}, d.Platforms())
}

// stubProvider records refresh calls for one platform.
type stubProvider struct {
	platform  string
	refreshed int
	err       error
}

func (p *stubProvider) Platform() string { return p.platform }

func (p *stubProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*providers.AuthInitiation, error) {
	return &providers.AuthInitiation{AuthURL: "https://example.com/auth"}, nil
}

func (p *stubProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	p.refreshed++
	if p.err != nil {
		return nil, p.err
	}
	return conn, nil
}

func (p *stubProvider) Disconnect(ctx context.Context, userID string) error { return nil }

func TestRefreshTokenLoadsConnection(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedConnection(t, s, models.PlatformTwitter)

	d := New(s)
	provider := &stubProvider{platform: models.PlatformTwitter}
	d.RegisterProvider(provider)

	conn, err := d.RefreshToken(ctx, "u1", models.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, models.PlatformTwitter, conn.Platform)
	assert.Equal(t, 1, provider.refreshed)
}

func TestRefreshTokenNotConnected(t *testing.T) {
	d := New(store.NewMemoryStore())
	provider := &stubProvider{platform: models.PlatformTwitter}
	d.RegisterProvider(provider)

	_, err := d.RefreshToken(context.Background(), "u1", models.PlatformTwitter)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no twitter connection")
	assert.Zero(t, provider.refreshed)
}

func TestRefreshTokenUnsupportedPlatform(t *testing.T) {
	d := New(store.NewMemoryStore())

	_, err := d.RefreshToken(context.Background(), "u1", "myspace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported platform")
}
