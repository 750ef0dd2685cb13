package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deckhand-io/deckhand/pkg/models"
)

// Key layout: the session record (without history) as JSON, the history
// as a list in insertion order, and a set of message ids guarding
// against duplicate appends.
const (
	sessionKeyPrefix    = "deckhand:session:"
	historyKeyPrefix    = "deckhand:history:"
	historyIDsKeyPrefix = "deckhand:history_ids:"
)

// RedisStore persists sessions in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis named by REDIS_URL. Both full
// redis:// URLs and bare host:port addresses are accepted.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required for the redis store")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// GetOrCreate returns the stored session or creates a fresh one. SETNX
// keeps concurrent first connects from clobbering each other.
func (r *RedisStore) GetOrCreate(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	session := models.NewSession(sessionID, userID)
	data, err := marshalSession(session)
	if err != nil {
		return nil, err
	}
	if err := r.client.SetNX(ctx, sessionKeyPrefix+sessionID, data, 0).Err(); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return r.Get(ctx, sessionID)
}

// Get loads one session and its history.
func (r *RedisStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	session := &models.Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	items, err := r.client.LRange(ctx, historyKeyPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	for _, item := range items {
		var entry models.ConversationEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		session.ConversationHistory = append(session.ConversationHistory, entry)
	}
	return session, nil
}

// Save replaces the session record. The history list is untouched.
func (r *RedisStore) Save(ctx context.Context, session *models.Session) error {
	key := sessionKeyPrefix + session.SessionID
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return ErrSessionNotFound
	}

	clone := session.Clone()
	clone.UpdatedAt = time.Now().UTC()
	data, err := marshalSession(clone)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// AppendHistory pushes one entry onto the history list. The message-id
// set makes the append idempotent.
func (r *RedisStore) AppendHistory(ctx context.Context, sessionID string, entry models.ConversationEntry) error {
	exists, err := r.client.Exists(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return ErrSessionNotFound
	}

	idsKey := historyIDsKeyPrefix + sessionID
	added, err := r.client.SAdd(ctx, idsKey, entry.MessageID).Result()
	if err != nil {
		return fmt.Errorf("guard history entry: %w", err)
	}
	if added == 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	if err := r.client.RPush(ctx, historyKeyPrefix+sessionID, data).Err(); err != nil {
		// Release the id so a retry can re-append the entry.
		_ = r.client.SRem(ctx, idsKey, entry.MessageID).Err()
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// marshalSession encodes the session record without its history, which
// lives in its own list.
func marshalSession(session *models.Session) ([]byte, error) {
	clone := session.Clone()
	clone.ConversationHistory = nil
	data, err := json.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}
