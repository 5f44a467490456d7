package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/platforms"
	"github.com/maheshrc27/postbridge/internal/providers"
	"github.com/maheshrc27/postbridge/internal/store"
)

// Dispatcher routes lifecycle and publish operations to per-platform
// providers and handlers. Platforms register at startup; an unregistered
// platform is a client error, not a publish failure.
type Dispatcher struct {
	store     store.Store
	providers map[string]providers.Provider
	handlers  map[string]platforms.Handler
}

func New(s store.Store) *Dispatcher {
	return &Dispatcher{
		store:     s,
		providers: make(map[string]providers.Provider),
		handlers:  make(map[string]platforms.Handler),
	}
}

func (d *Dispatcher) RegisterProvider(p providers.Provider) {
	d.providers[p.Platform()] = p
}

func (d *Dispatcher) RegisterHandler(h platforms.Handler) {
	d.handlers[h.Platform()] = h
}

// Platforms lists every platform with a registered publish handler, in
// alphabetical order.
func (d *Dispatcher) Platforms() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) provider(platform string) (providers.Provider, error) {
	p, ok := d.providers[platform]
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
	return p, nil
}

// InitiateAuth starts the OAuth handshake for platforms that use one.
func (d *Dispatcher) InitiateAuth(ctx context.Context, userID, platform, redirectURI string) (*providers.AuthInitiation, error) {
	p, err := d.provider(platform)
	if err != nil {
		return nil, err
	}
	return p.InitiateAuth(ctx, userID, redirectURI)
}

// HandleCallback completes the handshake and persists the connection.
func (d *Dispatcher) HandleCallback(ctx context.Context, platform, code, state, redirectURI string) (*models.Connection, error) {
	p, err := d.provider(platform)
	if err != nil {
		return nil, err
	}
	return p.HandleCallback(ctx, code, state, redirectURI)
}

// ConnectWithCredentials connects platforms that take a user-supplied
// credential (app password, access token, api key, webhook url) instead of
// an OAuth handshake.
func (d *Dispatcher) ConnectWithCredentials(ctx context.Context, userID, platform string, credential map[string]string) (*models.Connection, error) {
	p, err := d.provider(platform)
	if err != nil {
		return nil, err
	}
	connector, ok := p.(providers.CredentialConnector)
	if !ok {
		return nil, fmt.Errorf("%s connects through an OAuth authorization flow", platform)
	}
	return connector.Connect(ctx, userID, credential)
}

func (d *Dispatcher) Disconnect(ctx context.Context, userID, platform string) error {
	p, err := d.provider(platform)
	if err != nil {
		return err
	}
	return p.Disconnect(ctx, userID)
}

func (d *Dispatcher) RefreshConnection(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	p, err := d.provider(conn.Platform)
	if err != nil {
		return nil, err
	}
	return p.RefreshToken(ctx, conn)
}

// RefreshToken refreshes a user's connection by platform name. An
// unsupported platform or an absent connection fails fast.
func (d *Dispatcher) RefreshToken(ctx context.Context, userID, platform string) (*models.Connection, error) {
	p, err := d.provider(platform)
	if err != nil {
		return nil, err
	}

	conn, err := d.store.GetConnection(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("no %s connection found for this user", platform)
	}
	return p.RefreshToken(ctx, conn)
}

func (d *Dispatcher) GetConnection(ctx context.Context, userID, platform string) (*models.Connection, error) {
	return d.store.GetConnection(ctx, userID, platform)
}

func (d *Dispatcher) GetConnections(ctx context.Context, userID string) ([]*models.Connection, error) {
	return d.store.GetConnections(ctx, userID)
}

// PostToPlatform publishes to a single platform. An unsupported platform or
// an absent connection fails fast with an error; everything downstream of
// that is reported inside the PostResult.
func (d *Dispatcher) PostToPlatform(ctx context.Context, userID, platform string, opts *models.PostOptions) (*models.PostResult, error) {
	handler, ok := d.handlers[platform]
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}

	conn, err := d.store.GetConnection(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("no %s connection found for this user", platform)
	}
	if conn.NeedsReconnection {
		return &models.PostResult{
			Platform: platform,
			Success:  false,
			Error:    fmt.Sprintf("%s connection needs to be reconnected", platform),
		}, nil
	}

	result, err := handler.SendPost(ctx, userID, conn, opts)
	if err != nil {
		// Handler errors are configuration problems; surface them as a
		// failed result so multi-platform publishes keep going.
		slog.Error("send post failed",
			slog.String("platform", platform),
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return &models.PostResult{Platform: platform, Success: false, Error: err.Error()}, nil
	}
	return result, nil
}

// PostToAll publishes to every requested platform concurrently. An empty
// target list means every registered platform. Results come back in request
// order and a failure on one platform never aborts the others; even a
// panicking handler only fails its own slot.
func (d *Dispatcher) PostToAll(ctx context.Context, userID string, targets []string, opts *models.PostOptions) []*models.PostResult {
	if len(targets) == 0 {
		targets = d.Platforms()
	}

	results := make([]*models.PostResult, len(targets))

	var wg sync.WaitGroup
	for i, platform := range targets {
		wg.Add(1)
		go func(i int, platform string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("send post panicked",
						slog.String("platform", platform),
						slog.Any("panic", r))
					results[i] = &models.PostResult{
						Platform: platform,
						Success:  false,
						Error:    fmt.Sprintf("internal error: %v", r),
					}
				}
			}()

			result, err := d.PostToPlatform(ctx, userID, platform, opts)
			if err != nil {
				results[i] = &models.PostResult{Platform: platform, Success: false, Error: err.Error()}
				return
			}
			results[i] = result
		}(i, platform)
	}
	wg.Wait()

	return results
}
