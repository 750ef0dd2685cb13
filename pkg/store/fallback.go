package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/deckhand-io/deckhand/pkg/models"
)

// Fallback wraps the configured backend with a degraded mode: the first
// failing operation flips the connection to an in-memory store for the
// rest of its life. The handler keeps working and the user keeps their
// conversation; durability resumes on the next connect if the backend
// recovered. One Fallback serves one connection.
type Fallback struct {
	primary SessionStore
	memory  *MemoryStore
	logger  *slog.Logger

	mu       sync.Mutex
	degraded bool
	// lastSession seeds the memory store when degradation happens after
	// the initial load.
	lastSession *models.Session
}

// NewFallback wraps a backend for one connection's lifetime.
func NewFallback(primary SessionStore) *Fallback {
	return &Fallback{
		primary: primary,
		memory:  NewMemoryStore(),
		logger:  slog.Default(),
	}
}

// Degraded reports whether the connection has fallen back to memory.
func (f *Fallback) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

// degrade flips to the in-memory store, seeding it with the last known
// session so later Save/AppendHistory calls find their row.
func (f *Fallback) degrade(op string, err error) {
	if f.degraded {
		return
	}
	f.degraded = true
	f.logger.Warn("Session store failed, continuing in memory for this connection",
		"op", op,
		"error", err)
	if f.lastSession != nil {
		f.seed(f.lastSession)
	}
}

func (f *Fallback) seed(session *models.Session) {
	ctx := context.Background()
	if _, err := f.memory.GetOrCreate(ctx, session.SessionID, session.UserID); err != nil {
		return
	}
	_ = f.memory.Save(ctx, session)
	for _, entry := range session.ConversationHistory {
		_ = f.memory.AppendHistory(ctx, session.SessionID, entry)
	}
}

func (f *Fallback) GetOrCreate(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.degraded {
		session, err := f.primary.GetOrCreate(ctx, sessionID, userID)
		if err == nil {
			f.lastSession = session.Clone()
			return session, nil
		}
		f.degrade("get_or_create", err)
	}
	return f.memory.GetOrCreate(ctx, sessionID, userID)
}

func (f *Fallback) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.degraded {
		session, err := f.primary.Get(ctx, sessionID)
		if err == nil || errors.Is(err, ErrSessionNotFound) {
			return session, err
		}
		f.degrade("get", err)
	}
	return f.memory.Get(ctx, sessionID)
}

func (f *Fallback) Save(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.degraded {
		err := f.primary.Save(ctx, session)
		if err == nil {
			f.lastSession = session.Clone()
			return nil
		}
		f.degrade("save", err)
	}
	f.seed(session)
	return f.memory.Save(ctx, session)
}

func (f *Fallback) AppendHistory(ctx context.Context, sessionID string, entry models.ConversationEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.degraded {
		err := f.primary.AppendHistory(ctx, sessionID, entry)
		if err == nil {
			if f.lastSession != nil && f.lastSession.SessionID == sessionID {
				f.lastSession.AppendEntry(entry)
			}
			return nil
		}
		f.degrade("append_history", err)
	}
	return f.memory.AppendHistory(ctx, sessionID, entry)
}

// Ping always probes the real backend; degraded mode must show up in
// health checks, not hide behind the memory store.
func (f *Fallback) Ping(ctx context.Context) error {
	return f.primary.Ping(ctx)
}

// Close is a no-op: the primary is shared across connections and owned
// by main.
func (f *Fallback) Close() error { return nil }
