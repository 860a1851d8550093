// Package session implements the TTL-bounded per-session conversation
// state store (C10): a Redis-backed key-value store with per-key TTL,
// adapted from the teacher's checkpoint-store pipeline/prefix/TTL idiom
// to the Session shape of spec §3.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smallnest/graphrag/model"
)

// Store is the Session Store contract (C10, spec §4.7).
type Store interface {
	Create(ctx context.Context) (*model.Session, error)
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Update(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, sessionID string) error
	Extend(ctx context.Context, sessionID string) error
	Reset(ctx context.Context, sessionID string) (*model.Session, error)
	AddMessage(ctx context.Context, sessionID, role, content string) (*model.Session, error)
	List(ctx context.Context) ([]*model.Session, error)
}

// RedisStore implements Store over go-redis, keying sessions under
// "conv_session:<id>" the way the original Python service's dedicated
// session-store db does, using SETEX for TTL refresh-on-write (spec I6).
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configures a RedisStore.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // default "conv_session:"
	TTL      time.Duration
}

// New constructs a RedisStore.
func New(opts Options) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "conv_session:"
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// NewWithClient wires an existing client, letting tests substitute a
// miniredis-backed client (spec §2.4 test tooling).
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "conv_session:"
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Create initializes a new session with empty slots/history and the full
// TTL (spec §4.7, session lifecycle from §3).
func (s *RedisStore) Create(ctx context.Context) (*model.Session, error) {
	now := time.Now()
	sess := &model.Session{
		SessionID:           uuid.NewString(),
		CollectedValues:     make(map[string]any),
		ConversationHistory: nil,
		CreatedAt:           now,
		UpdatedAt:           now,
		ExpiresAt:           now.Add(s.ttl),
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session, returning model.ErrNotFound if it has expired or
// never existed — a session absent from Redis simply does not exist,
// which is how TTL expiry (I6, P7) is observed.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("session: get: %w", err)
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &sess, nil
}

// Update persists s and refreshes its TTL to the full window (I6).
func (s *RedisStore) Update(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = time.Now()
	sess.ExpiresAt = sess.UpdatedAt.Add(s.ttl)
	return s.save(ctx, sess)
}

func (s *RedisStore) save(ctx context.Context, sess *model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: set: %w", err)
	}
	return nil
}

// Delete removes a session immediately, ahead of its TTL.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// Extend refreshes a session's TTL without otherwise modifying it.
func (s *RedisStore) Extend(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.Update(ctx, sess)
}

// Reset zeros intent/current_node/collected_values while preserving
// history (spec §4.7).
func (s *RedisStore) Reset(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Reset()
	if err := s.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AddMessage appends a message, trimming history to the most recent 50
// (spec §4.7, model.MaxHistoryMessages).
func (s *RedisStore) AddMessage(ctx context.Context, sessionID, role, content string) (*model.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.AddMessage(role, content)
	if err := s.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// List enumerates every live session via key scan — used by the
// /conversation/sessions listing endpoint; unbounded by design since
// session counts are small relative to a single conversational deployment.
func (s *RedisStore) List(ctx context.Context) ([]*model.Session, error) {
	var out []*model.Session
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue // expired between scan and get
		}
		var sess model.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("session: scan: %w", err)
	}
	return out, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
