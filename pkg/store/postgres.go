package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for the migration runner

	"github.com/deckhand-io/deckhand/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pgForeignKeyViolation is the PostgreSQL error code raised when a history
// entry references a session that does not exist.
const pgForeignKeyViolation = "23503"

// PostgresStore persists sessions in two tables: one row per session with
// the strawman as JSONB, and one row per conversation entry keyed by
// (session_id, sequence) with a unique (session_id, message_id) guard.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore applies pending migrations and opens the connection
// pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required for the postgres store")
	}

	if err := runMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{pool: pool, logger: slog.Default()}, nil
}

// runMigrations applies the embedded migration files through a dedicated
// database/sql connection, closed when migration finishes.
func runMigrations(databaseURL string) error {
	db, err := stdsql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "deckhand", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_, _ = m.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}

	// The connection is dedicated to migrations, so closing the migrator
	// (which closes the underlying database/sql handle) is safe here.
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return fmt.Errorf("close migration source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migration connection: %w", dbErr)
	}
	return nil
}

// GetOrCreate inserts the session row if absent, then loads it with its
// full history.
func (p *PostgresStore) GetOrCreate(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	now := time.Now().UTC()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions (session_id, user_id, current_state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, userID, string(models.StateProvideGreeting), now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return p.Get(ctx, sessionID)
}

// Get loads one session and its history.
func (p *PostgresStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	session := &models.Session{}
	var state string
	var strawmanJSON []byte
	err := p.pool.QueryRow(ctx,
		`SELECT session_id, user_id, current_state, strawman, final_presentation_url, created_at, updated_at
		 FROM sessions WHERE session_id = $1`,
		sessionID).Scan(
		&session.SessionID, &session.UserID, &state, &strawmanJSON,
		&session.FinalPresentationURL, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	session.CurrentState = models.SessionState(state)
	if len(strawmanJSON) > 0 {
		session.Strawman = &models.PresentationStrawman{}
		if err := json.Unmarshal(strawmanJSON, session.Strawman); err != nil {
			return nil, fmt.Errorf("decode strawman: %w", err)
		}
	}

	history, err := p.loadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.ConversationHistory = history
	return session, nil
}

func (p *PostgresStore) loadHistory(ctx context.Context, sessionID string) ([]models.ConversationEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT message_id, role, state, content_variant, content, created_at, sequence
		 FROM conversation_entries WHERE session_id = $1 ORDER BY sequence`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var history []models.ConversationEntry
	for rows.Next() {
		var entry models.ConversationEntry
		var role, state, variant string
		if err := rows.Scan(&entry.MessageID, &role, &state, &variant, &entry.Content, &entry.Timestamp, &entry.Sequence); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Role = models.Role(role)
		entry.State = models.SessionState(state)
		entry.ContentVariant = models.ContentVariant(variant)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return history, nil
}

// Save replaces the mutable session fields. History rows are untouched;
// they only grow through AppendHistory.
func (p *PostgresStore) Save(ctx context.Context, session *models.Session) error {
	var strawmanJSON []byte
	if session.Strawman != nil {
		data, err := json.Marshal(session.Strawman)
		if err != nil {
			return fmt.Errorf("encode strawman: %w", err)
		}
		strawmanJSON = data
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE sessions
		 SET user_id = $2, current_state = $3, strawman = $4, final_presentation_url = $5, updated_at = $6
		 WHERE session_id = $1`,
		session.SessionID, session.UserID, string(session.CurrentState),
		strawmanJSON, session.FinalPresentationURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendHistory inserts one conversation entry. Conflicts on either the
// sequence key or the message-id guard are silently ignored, which makes
// replays of the same entry harmless.
func (p *PostgresStore) AppendHistory(ctx context.Context, sessionID string, entry models.ConversationEntry) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO conversation_entries
		 (session_id, sequence, message_id, role, state, content_variant, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT DO NOTHING`,
		sessionID, entry.Sequence, entry.MessageID, string(entry.Role),
		string(entry.State), string(entry.ContentVariant), entry.Content, entry.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrSessionNotFound
		}
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Ping checks pool connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
