package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/postbridge/configs"
	"github.com/maheshrc27/postbridge/internal/dispatcher"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/providers"
	"github.com/maheshrc27/postbridge/internal/store"
)

// refreshOnlyProvider satisfies providers.Provider for refresh tests.
type refreshOnlyProvider struct {
	platform  string
	refreshed int
}

func (p *refreshOnlyProvider) Platform() string { return p.platform }

func (p *refreshOnlyProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*providers.AuthInitiation, error) {
	return nil, errors.New("not implemented")
}

func (p *refreshOnlyProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	return nil, errors.New("not implemented")
}

func (p *refreshOnlyProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	p.refreshed++
	return conn, nil
}

func (p *refreshOnlyProvider) Disconnect(ctx context.Context, userID string) error { return nil }

func newRefreshApp(t *testing.T, d *dispatcher.Dispatcher) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "u1")
		return c.Next()
	})
	h := NewConnectionHandler(config.Config{}, d)
	app.Post("/api/connections/:platform/refresh", h.RefreshConnection)
	return app
}

func TestRefreshConnectionRoute(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.SaveConnection(context.Background(), "u1", models.PlatformTwitter, &models.Connection{
		UserID:      "u1",
		Platform:    models.PlatformTwitter,
		IsValid:     true,
		Credentials: &models.OAuthCredentials{AccessToken: "at", RefreshToken: "rt"},
	}))

	d := dispatcher.New(s)
	provider := &refreshOnlyProvider{platform: models.PlatformTwitter}
	d.RegisterProvider(provider)

	app := newRefreshApp(t, d)
	req := httptest.NewRequest(http.MethodPost, "/api/connections/twitter/refresh", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, provider.refreshed)

	var conn models.Connection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conn))
	assert.Equal(t, models.PlatformTwitter, conn.Platform)
}

func TestRefreshConnectionRouteNotConnected(t *testing.T) {
	d := dispatcher.New(store.NewMemoryStore())
	d.RegisterProvider(&refreshOnlyProvider{platform: models.PlatformTwitter})

	app := newRefreshApp(t, d)
	req := httptest.NewRequest(http.MethodPost, "/api/connections/twitter/refresh", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
