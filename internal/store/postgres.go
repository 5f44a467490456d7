package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/pkg/utils"
)

// PostgresStore persists connections, OAuth states and scheduled posts.
// Credential payloads are AES-GCM encrypted with the app secret before they
// touch the database; in-memory copies handed to the engine are plaintext.
type PostgresStore struct {
	db        *sql.DB
	secretKey []byte
}

func NewPostgresStore(db *sql.DB, secretKey []byte) *PostgresStore {
	return &PostgresStore{db: db, secretKey: secretKey}
}

func (s *PostgresStore) encodeCredentials(creds models.Credentials) (string, error) {
	if creds == nil {
		return "", nil
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	return utils.Encrypt(raw, s.secretKey)
}

func (s *PostgresStore) decodeCredentials(platform, encoded string) (models.Credentials, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := utils.Decrypt(encoded, s.secretKey)
	if err != nil {
		return nil, err
	}
	creds, err := models.NewCredentialsFor(platform)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *PostgresStore) SaveConnection(ctx context.Context, userID, platform string, conn *models.Connection) error {
	encoded, err := s.encodeCredentials(conn.Credentials)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		INSERT INTO connections (
			user_id,
			platform,
			is_valid,
			needs_reconnection,
			last_validated,
			credentials
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			is_valid = EXCLUDED.is_valid,
			needs_reconnection = EXCLUDED.needs_reconnection,
			last_validated = EXCLUDED.last_validated,
			credentials = EXCLUDED.credentials,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.ExecContext(ctx, query,
		userID,
		platform,
		conn.IsValid,
		conn.NeedsReconnection,
		conn.LastValidated,
		encoded,
	)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *PostgresStore) GetConnection(ctx context.Context, userID, platform string) (*models.Connection, error) {
	query := `
		SELECT user_id, platform, is_valid, needs_reconnection, last_validated, credentials, created_at, updated_at
		FROM connections
		WHERE user_id = $1 AND platform = $2
	`
	row := s.db.QueryRowContext(ctx, query, userID, platform)
	return s.scanConnection(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanConnection(row rowScanner) (*models.Connection, error) {
	var conn models.Connection
	var lastValidated sql.NullTime
	var encoded string
	err := row.Scan(&conn.UserID, &conn.Platform, &conn.IsValid, &conn.NeedsReconnection,
		&lastValidated, &encoded, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	if lastValidated.Valid {
		t := lastValidated.Time
		conn.LastValidated = &t
	}
	conn.Credentials, err = s.decodeCredentials(conn.Platform, encoded)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &conn, nil
}

func (s *PostgresStore) UpdateConnection(ctx context.Context, userID, platform string, update models.ConnectionUpdate) error {
	var encoded sql.NullString
	if update.Credentials != nil {
		value, err := s.encodeCredentials(update.Credentials)
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		encoded = sql.NullString{String: value, Valid: true}
	}

	var isValid, needsReconnection sql.NullBool
	if update.IsValid != nil {
		isValid = sql.NullBool{Bool: *update.IsValid, Valid: true}
	}
	if update.NeedsReconnection != nil {
		needsReconnection = sql.NullBool{Bool: *update.NeedsReconnection, Valid: true}
	}
	var lastValidated sql.NullTime
	if update.LastValidated != nil {
		lastValidated = sql.NullTime{Time: *update.LastValidated, Valid: true}
	}

	query := `
		UPDATE connections
		SET
			is_valid = COALESCE($3, is_valid),
			needs_reconnection = COALESCE($4, needs_reconnection),
			last_validated = COALESCE($5, last_validated),
			credentials = COALESCE($6, credentials),
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND platform = $2
	`
	_, err := s.db.ExecContext(ctx, query, userID, platform, isValid, needsReconnection, lastValidated, encoded)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *PostgresStore) DeleteConnection(ctx context.Context, userID, platform string) error {
	query := `DELETE FROM connections WHERE user_id = $1 AND platform = $2`
	if _, err := s.db.ExecContext(ctx, query, userID, platform); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *PostgresStore) GetConnections(ctx context.Context, userID string) ([]*models.Connection, error) {
	query := `
		SELECT user_id, platform, is_valid, needs_reconnection, last_validated, credentials, created_at, updated_at
		FROM connections
		WHERE user_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := s.scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return connections, nil
}

func (s *PostgresStore) SaveOAuthState(ctx context.Context, state string, data *models.OAuthState) error {
	query := `
		INSERT INTO oauth_states (state, user_id, code_verifier, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, state, data.UserID, data.CodeVerifier, data.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *PostgresStore) GetOAuthState(ctx context.Context, state string) (*models.OAuthState, error) {
	query := `SELECT state, user_id, code_verifier, created_at FROM oauth_states WHERE state = $1`
	row := s.db.QueryRowContext(ctx, query, state)

	var data models.OAuthState
	err := row.Scan(&data.State, &data.UserID, &data.CodeVerifier, &data.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &data, nil
}

func (s *PostgresStore) DeleteOAuthState(ctx context.Context, state string) error {
	query := `DELETE FROM oauth_states WHERE state = $1`
	if _, err := s.db.ExecContext(ctx, query, state); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *PostgresStore) SaveScheduledPost(ctx context.Context, post *models.ScheduledPost) error {
	options, err := json.Marshal(post.Options)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO scheduled_posts (id, user_id, options, platforms, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query, post.ID, post.UserID, options,
		pq.Array(post.Platforms), post.ScheduledAt, post.Status)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *PostgresStore) GetScheduledPost(ctx context.Context, id string) (*models.ScheduledPost, error) {
	query := `
		SELECT id, user_id, options, platforms, scheduled_at, status, created_at
		FROM scheduled_posts
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)

	var post models.ScheduledPost
	var options []byte
	err := row.Scan(&post.ID, &post.UserID, &options, pq.Array(&post.Platforms),
		&post.ScheduledAt, &post.Status, &post.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	if err := json.Unmarshal(options, &post.Options); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *PostgresStore) SetScheduledPostStatus(ctx context.Context, id, status string) error {
	query := `UPDATE scheduled_posts SET status = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, status); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *PostgresStore) ListScheduledPosts(ctx context.Context, userID string) ([]*models.ScheduledPost, error) {
	query := `
		SELECT id, user_id, options, platforms, scheduled_at, status, created_at
		FROM scheduled_posts
		WHERE user_id = $1
		ORDER BY scheduled_at
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		var post models.ScheduledPost
		var options []byte
		err := rows.Scan(&post.ID, &post.UserID, &options, pq.Array(&post.Platforms),
			&post.ScheduledAt, &post.Status, &post.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		if err := json.Unmarshal(options, &post.Options); err != nil {
			return nil, err
		}
		posts = append(posts, &post)
	}
	return posts, rows.Err()
}

// ListExpiring returns OAuth2 connections whose access token expires before
// the given time, for the refresh sweep.
func (s *PostgresStore) ListExpiring(ctx context.Context, until time.Time) ([]*models.Connection, error) {
	connections := []*models.Connection{}
	query := `
		SELECT user_id, platform, is_valid, needs_reconnection, last_validated, credentials, created_at, updated_at
		FROM connections
		WHERE platform IN ('twitter', 'linkedin', 'tiktok', 'instagram', 'youtube')
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		conn, err := s.scanConnection(rows)
		if err != nil {
			return nil, err
		}
		creds, ok := conn.Credentials.(*models.OAuthCredentials)
		if !ok || creds.ExpiresAt == nil {
			continue
		}
		if creds.ExpiresAt.Before(until) {
			connections = append(connections, conn)
		}
	}
	return connections, rows.Err()
}
