package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/maheshrc27/postbridge/internal/models"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu          sync.Mutex
	connections map[string]*models.Connection
	states      map[string]*models.OAuthState
	scheduled   map[string]*models.ScheduledPost
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		connections: make(map[string]*models.Connection),
		states:      make(map[string]*models.OAuthState),
		scheduled:   make(map[string]*models.ScheduledPost),
	}
}

func connKey(userID, platform string) string {
	return userID + "/" + platform
}

func cloneConnection(conn *models.Connection) (*models.Connection, error) {
	raw, err := json.Marshal(conn)
	if err != nil {
		return nil, err
	}
	var out models.Connection
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) SaveConnection(ctx context.Context, userID, platform string, conn *models.Connection) error {
	copied, err := cloneConnection(conn)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[connKey(userID, platform)] = copied
	return nil
}

func (s *MemoryStore) GetConnection(ctx context.Context, userID, platform string) (*models.Connection, error) {
	s.mu.Lock()
	conn, ok := s.connections[connKey(userID, platform)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return cloneConnection(conn)
}

func (s *MemoryStore) UpdateConnection(ctx context.Context, userID, platform string, update models.ConnectionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[connKey(userID, platform)]
	if !ok {
		return nil
	}
	if update.IsValid != nil {
		conn.IsValid = *update.IsValid
	}
	if update.NeedsReconnection != nil {
		conn.NeedsReconnection = *update.NeedsReconnection
	}
	if update.LastValidated != nil {
		conn.LastValidated = update.LastValidated
	}
	if update.Credentials != nil {
		conn.Credentials = update.Credentials
	}
	conn.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteConnection(ctx context.Context, userID, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, connKey(userID, platform))
	return nil
}

func (s *MemoryStore) GetConnections(ctx context.Context, userID string) ([]*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Connection
	for _, conn := range s.connections {
		if conn.UserID != userID {
			continue
		}
		copied, err := cloneConnection(conn)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	return out, nil
}

func (s *MemoryStore) SaveOAuthState(ctx context.Context, state string, data *models.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *data
	s.states[state] = &copied
	return nil
}

func (s *MemoryStore) GetOAuthState(ctx context.Context, state string) (*models.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.states[state]
	if !ok {
		return nil, nil
	}
	copied := *data
	return &copied, nil
}

func (s *MemoryStore) DeleteOAuthState(ctx context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, state)
	return nil
}

func (s *MemoryStore) SaveScheduledPost(ctx context.Context, post *models.ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *post
	s.scheduled[post.ID] = &copied
	return nil
}

func (s *MemoryStore) GetScheduledPost(ctx context.Context, id string) (*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.scheduled[id]
	if !ok {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (s *MemoryStore) SetScheduledPostStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post, ok := s.scheduled[id]; ok {
		post.Status = status
	}
	return nil
}

func (s *MemoryStore) ListScheduledPosts(ctx context.Context, userID string) ([]*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledPost
	for _, post := range s.scheduled {
		if post.UserID != userID {
			continue
		}
		copied := *post
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MemoryStore) ListExpiring(ctx context.Context, until time.Time) ([]*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Connection
	for _, conn := range s.connections {
		creds, ok := conn.Credentials.(*models.OAuthCredentials)
		if !ok || creds.ExpiresAt == nil {
			continue
		}
		if creds.ExpiresAt.Before(until) {
			copied, err := cloneConnection(conn)
			if err != nil {
				return nil, err
			}
			out = append(out, copied)
		}
	}
	return out, nil
}
