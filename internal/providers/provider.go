package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/pkg/utils"
)

var (
	// ErrInvalidState is returned when a callback carries a state token that
	// was never issued or was already consumed.
	ErrInvalidState = errors.New("invalid or expired state")

	// ErrNoRefreshToken means the connection cannot be refreshed and needs a
	// full reconnect.
	ErrNoRefreshToken = errors.New("no refresh credential available, reconnection required")
)

// AuthInitiation is the result of starting an OAuth handshake.
type AuthInitiation struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// Provider owns one platform's authentication state machine.
type Provider interface {
	Platform() string
	InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error)
	HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error)
	RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error)
	Disconnect(ctx context.Context, userID string) error
}

// CredentialConnector is implemented by platforms that connect with a
// user-supplied credential instead of an OAuth handshake.
type CredentialConnector interface {
	Connect(ctx context.Context, userID string, credential map[string]string) (*models.Connection, error)
}

func errOAuthNotSupported(platform string) error {
	return fmt.Errorf("%s does not use an OAuth authorization flow; connect with credentials instead", platform)
}

// stateHelper is the shared handshake-state plumbing providers compose.
type stateHelper struct {
	store store.Store
}

// beginState issues a fresh random state token and persists the handshake
// record keyed by it.
func (h stateHelper) beginState(ctx context.Context, userID, codeVerifier string) (string, error) {
	state, err := utils.GenerateRandomKey(32)
	if err != nil {
		return "", err
	}
	err = h.store.SaveOAuthState(ctx, state, &models.OAuthState{
		UserID:       userID,
		State:        state,
		CodeVerifier: codeVerifier,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return "", err
	}
	return state, nil
}

// consumeState looks up a state record and deletes it before returning, so
// a replayed callback observes it absent.
func (h stateHelper) consumeState(ctx context.Context, state string) (*models.OAuthState, error) {
	if state == "" {
		return nil, ErrInvalidState
	}
	data, err := h.store.GetOAuthState(ctx, state)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrInvalidState
	}
	if err := h.store.DeleteOAuthState(ctx, state); err != nil {
		return nil, err
	}
	return data, nil
}

// newConnection builds and persists a fresh valid connection.
func saveNewConnection(ctx context.Context, s store.Store, userID, platform string, creds models.Credentials) (*models.Connection, error) {
	now := time.Now()
	conn := &models.Connection{
		UserID:            userID,
		Platform:          platform,
		IsValid:           true,
		NeedsReconnection: false,
		LastValidated:     &now,
		Credentials:       creds,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.SaveConnection(ctx, userID, platform, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// saveRefreshedCredentials writes rotated credentials back and returns the
// updated connection value.
func saveRefreshedCredentials(ctx context.Context, s store.Store, conn *models.Connection, creds models.Credentials) (*models.Connection, error) {
	now := time.Now()
	valid := true
	update := models.ConnectionUpdate{
		IsValid:       &valid,
		LastValidated: &now,
		Credentials:   creds,
	}
	if err := s.UpdateConnection(ctx, conn.UserID, conn.Platform, update); err != nil {
		return nil, err
	}
	updated := *conn
	updated.IsValid = true
	updated.LastValidated = &now
	updated.Credentials = creds
	return &updated, nil
}
