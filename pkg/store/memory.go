package store

import (
	"context"
	"sync"
	"time"

	"github.com/deckhand-io/deckhand/pkg/models"
)

// MemoryStore keeps sessions in a mutex-guarded map. Reads and writes
// exchange deep copies, so callers never share mutable state with the
// store or each other.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

// GetOrCreate returns the stored session or creates a fresh one in the
// greeting state.
func (m *MemoryStore) GetOrCreate(_ context.Context, sessionID, userID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[sessionID]; ok {
		return session.Clone(), nil
	}
	session := models.NewSession(sessionID, userID)
	m.sessions[sessionID] = session
	return session.Clone(), nil
}

// Get returns the stored session without creating one.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Save replaces the mutable session fields. History is append-only and
// only changes through AppendHistory, so a stale caller copy can never
// clobber entries written since it was read.
func (m *MemoryStore) Save(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[session.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	stored.UserID = session.UserID
	stored.CurrentState = session.CurrentState
	stored.Strawman = session.Strawman.Clone()
	stored.FinalPresentationURL = session.FinalPresentationURL
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendHistory appends one conversation entry, idempotent by message id.
func (m *MemoryStore) AppendHistory(_ context.Context, sessionID string, entry models.ConversationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	stored.AppendEntry(entry)
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
