package store

import (
	"context"
	"time"

	"github.com/maheshrc27/postbridge/internal/models"
)

// Store is the credential persistence contract the publish engine consumes.
// Absent records are returned as (nil, nil). Implementations must keep at
// most one connection per (userID, platform) and one OAuth state per state
// token.
type Store interface {
	SaveConnection(ctx context.Context, userID, platform string, conn *models.Connection) error
	GetConnection(ctx context.Context, userID, platform string) (*models.Connection, error)
	UpdateConnection(ctx context.Context, userID, platform string, update models.ConnectionUpdate) error
	DeleteConnection(ctx context.Context, userID, platform string) error
	GetConnections(ctx context.Context, userID string) ([]*models.Connection, error)

	SaveOAuthState(ctx context.Context, state string, data *models.OAuthState) error
	GetOAuthState(ctx context.Context, state string) (*models.OAuthState, error)
	DeleteOAuthState(ctx context.Context, state string) error
}

// ScheduleStore persists scheduled-post bookkeeping rows. The engine never
// reads these; only the HTTP surface and the queue worker do.
type ScheduleStore interface {
	SaveScheduledPost(ctx context.Context, post *models.ScheduledPost) error
	GetScheduledPost(ctx context.Context, id string) (*models.ScheduledPost, error)
	SetScheduledPostStatus(ctx context.Context, id, status string) error
	ListScheduledPosts(ctx context.Context, userID string) ([]*models.ScheduledPost, error)
}

// ExpiringLister exposes connections whose OAuth2 expiry falls inside a
// window, for the proactive refresh sweep.
type ExpiringLister interface {
	ListExpiring(ctx context.Context, until time.Time) ([]*models.Connection, error)
}
