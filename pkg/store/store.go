// Package store persists dialog sessions and their conversation history.
// Three backends implement the same contract: PostgreSQL for durable
// deployments, Redis for lightweight shared state, and an in-memory map
// for development and as the degraded-mode fallback when the configured
// backend errors.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/models"
)

// ErrSessionNotFound is returned by lookups and writes against a session
// id that was never created.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the persistence contract the connection handler and the
// state machine drive. All implementations guarantee: GetOrCreate is
// idempotent and loads full history; Save replaces the mutable session
// fields (last writer wins); AppendHistory is append-only and idempotent
// by message id.
type SessionStore interface {
	GetOrCreate(ctx context.Context, sessionID, userID string) (*models.Session, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	AppendHistory(ctx context.Context, sessionID string, entry models.ConversationEntry) error
	Ping(ctx context.Context) error
	Close() error
}

// New selects and connects the backend named by SESSION_STORE_BACKEND.
func New(ctx context.Context, settings *config.Settings) (SessionStore, error) {
	switch settings.StoreBackend {
	case config.StoreBackendPostgres:
		return NewPostgresStore(ctx, settings.DatabaseURL)
	case config.StoreBackendRedis:
		return NewRedisStore(ctx, settings.RedisURL)
	case config.StoreBackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store backend %q", settings.StoreBackend)
	}
}
