package platforms

import (
	"context"
	"time"

	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
)

// refreshBuffer is the safety window for proactive refresh: an OAuth2
// credential expiring within it is refreshed before use.
const refreshBuffer = 5 * time.Minute

// Handler owns one platform's publish protocol. A returned error signals a
// configuration or programmer error (missing credential fields, wrong
// credential shape); platform API failures come back as a PostResult with
// Success=false.
type Handler interface {
	Platform() string
	SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error)
}

// TokenRefresher is the slice of the provider contract handlers need for
// proactive and reactive refresh.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, conn *models.Connection) (*models.Connection, error)
}

// needsProactiveRefresh reports whether an OAuth2 credential should be
// refreshed before use. An absent expiry is always treated as needing
// refresh.
func needsProactiveRefresh(creds *models.OAuthCredentials) bool {
	if creds.ExpiresAt == nil {
		return true
	}
	return creds.ExpiresAt.Before(time.Now().Add(refreshBuffer))
}

// markConnectionValid records a successful publish on the stored connection.
func markConnectionValid(ctx context.Context, s store.Store, userID, platform string) {
	valid := true
	reconnect := false
	now := time.Now()
	_ = s.UpdateConnection(ctx, userID, platform, models.ConnectionUpdate{
		IsValid:           &valid,
		NeedsReconnection: &reconnect,
		LastValidated:     &now,
	})
}

// markConnectionInvalid flags the stored connection for reconnection after a
// classified auth failure.
func markConnectionInvalid(ctx context.Context, s store.Store, userID, platform string) {
	valid := false
	reconnect := true
	_ = s.UpdateConnection(ctx, userID, platform, models.ConnectionUpdate{
		IsValid:           &valid,
		NeedsReconnection: &reconnect,
	})
}

func failure(platform, message string) *models.PostResult {
	return &models.PostResult{Platform: platform, Success: false, Error: message}
}

func success(platform string, result map[string]string) *models.PostResult {
	return &models.PostResult{Platform: platform, Success: true, Result: result}
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
