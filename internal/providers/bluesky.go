package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	config "github.com/maheshrc27/postbridge/configs"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

// BlueskyProvider connects with a handle/app-password pair and maintains an
// AT Protocol session (access + refresh JWTs). There is no OAuth handshake.
type BlueskyProvider struct {
	cfg     config.Config
	store   store.Store
	service string
}

func NewBlueskyProvider(cfg config.Config, s store.Store) *BlueskyProvider {
	return &BlueskyProvider{cfg: cfg, store: s, service: cfg.BlueskyService}
}

func (p *BlueskyProvider) Platform() string { return models.PlatformBluesky }

func (p *BlueskyProvider) InitiateAuth(ctx context.Context, userID, redirectURI string) (*AuthInitiation, error) {
	return nil, errOAuthNotSupported(models.PlatformBluesky)
}

func (p *BlueskyProvider) HandleCallback(ctx context.Context, code, state, redirectURI string) (*models.Connection, error) {
	return nil, errOAuthNotSupported(models.PlatformBluesky)
}

// Connect creates a session from identifier + app password and persists the
// resulting JWT pair.
func (p *BlueskyProvider) Connect(ctx context.Context, userID string, credential map[string]string) (*models.Connection, error) {
	identifier := credential["handle"]
	password := credential["app_password"]
	if identifier == "" || password == "" {
		return nil, errors.New("bluesky requires handle and app_password")
	}

	session, err := p.createSession(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	creds := &models.SessionCredentials{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		DID:        session.DID,
		Handle:     session.Handle,
	}
	return saveNewConnection(ctx, p.store, userID, models.PlatformBluesky, creds)
}

func (p *BlueskyProvider) createSession(ctx context.Context, identifier, password string) (*transfer.BlueskySession, error) {
	body, err := json.Marshal(transfer.BlueskySessionRequest{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		return nil, err
	}

	reqURL := p.service + "/xrpc/com.atproto.server.createSession"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bluesky authentication failed (status %d): %s", resp.StatusCode, respBody)
	}

	var session transfer.BlueskySession
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RefreshToken resumes the session with the refresh JWT. Both JWTs rotate.
func (p *BlueskyProvider) RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	creds, err := conn.Session()
	if err != nil {
		return nil, err
	}
	if creds.RefreshJwt == "" {
		return nil, ErrNoRefreshToken
	}

	reqURL := p.service + "/xrpc/com.atproto.server.refreshSession"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.RefreshJwt)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bluesky session refresh failed (status %d): %s", resp.StatusCode, respBody)
	}

	var session transfer.BlueskySession
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, err
	}

	updated := &models.SessionCredentials{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		DID:        session.DID,
		Handle:     creds.Handle,
	}
	if updated.DID == "" {
		updated.DID = creds.DID
	}
	return saveRefreshedCredentials(ctx, p.store, conn, updated)
}

func (p *BlueskyProvider) Disconnect(ctx context.Context, userID string) error {
	return p.store.DeleteConnection(ctx, userID, models.PlatformBluesky)
}
