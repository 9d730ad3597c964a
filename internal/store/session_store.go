// Package store persists upload-session state in Redis and validated
// lead records in Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/leadstream/internal/mapping"
)

// SessionTTL bounds how long an abandoned upload session survives.
const SessionTTL = 24 * time.Hour

var ErrSessionNotFound = errors.New("store: upload session not found")

// SessionSnapshot is the persisted view of a mapping session, written
// whenever column state changes so the UI can re-render after a
// reconnect.
type SessionSnapshot struct {
	ID        string                  `json:"id"`
	FileName  string                  `json:"file_name"`
	FilePath  string                  `json:"file_path"`
	CreatedAt time.Time               `json:"created_at"`
	Finalized bool                    `json:"finalized"`
	Columns   []mapping.ColumnMapping `json:"columns"`
}

// Progress tracks a running ingestion for polling clients.
type Progress struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"` // mapping, ingesting, completed, failed
	RowsRead  int       `json:"rows_read"`
	Imported  int       `json:"imported"`
	Malformed int       `json:"malformed"`
	Errors    int       `json:"errors"`
	Warnings  int       `json:"warnings"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore keeps session snapshots and ingestion progress in Redis.
type SessionStore struct {
	redis *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{redis: client}
}

func (s *SessionStore) sessionKey(id string) string {
	return fmt.Sprintf("leadstream:session:%s", id)
}

func (s *SessionStore) progressKey(id string) string {
	return fmt.Sprintf("leadstream:progress:%s", id)
}

// SaveSession writes a snapshot with the standard TTL.
func (s *SessionStore) SaveSession(ctx context.Context, snap *SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", snap.ID, err)
	}
	if err := s.redis.Set(ctx, s.sessionKey(snap.ID), data, SessionTTL).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", snap.ID, err)
	}
	return nil
}

// GetSession loads a snapshot by id.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*SessionSnapshot, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var snap SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &snap, nil
}

// SaveProgress stamps and writes the current ingestion progress.
func (s *SessionStore) SaveProgress(ctx context.Context, p *Progress) error {
	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress %s: %w", p.SessionID, err)
	}
	if err := s.redis.Set(ctx, s.progressKey(p.SessionID), data, SessionTTL).Err(); err != nil {
		return fmt.Errorf("store progress %s: %w", p.SessionID, err)
	}
	return nil
}

// GetProgress loads the latest progress for a session.
func (s *SessionStore) GetProgress(ctx context.Context, id string) (*Progress, error) {
	data, err := s.redis.Get(ctx, s.progressKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load progress %s: %w", id, err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", id, err)
	}
	return &p, nil
}

// DeleteSession removes both keys once an upload is fully processed
// and acknowledged.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	return s.redis.Del(ctx, s.sessionKey(id), s.progressKey(id)).Err()
}
