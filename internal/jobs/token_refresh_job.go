package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postbridge/internal/dispatcher"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
)

// TokenRefreshJob sweeps connections whose credentials expire soon and
// refreshes them ahead of time, so publishes rarely hit the reactive retry
// path.
type TokenRefreshJob struct {
	connections store.ExpiringLister
	dispatcher  *dispatcher.Dispatcher
}

func NewTokenRefreshJob(connections store.ExpiringLister, d *dispatcher.Dispatcher) *TokenRefreshJob {
	return &TokenRefreshJob{connections: connections, dispatcher: d}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	connections, err := j.connections.ListExpiring(ctx, time.Now().Add(30*time.Minute))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, conn := range connections {
		if conn.NeedsReconnection {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(conn *models.Connection) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := j.dispatcher.RefreshConnection(ctx, conn); err != nil {
				slog.Info("Unable to refresh token",
					slog.String("platform", conn.Platform),
					slog.String("user_id", conn.UserID),
					slog.String("error", err.Error()))
			}
		}(conn)
	}

	wg.Wait()
}
