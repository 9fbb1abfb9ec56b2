// Package session keeps login sessions in Redis. A session is the
// server-side half of a token pair: access tokens are only honoured while the
// session they name still exists.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound session expired, logged out or never existed
var ErrNotFound = errors.New("session not found")

// Session persisted login
type Session struct {
	ID          string    `json:"id"`
	UserID      uint64    `json:"user_id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	RefreshHash string    `json:"refresh_hash"`
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store session storage
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Rotate replaces the refresh hash when oldHash still matches and
	// extends the TTL. It returns ErrNotFound on a mismatch.
	Rotate(ctx context.Context, id, oldHash, newHash string) error
	Delete(ctx context.Context, id string) error
	// DeleteOthers removes every session of userID except keepID
	DeleteOthers(ctx context.Context, userID uint64, keepID string) (int, error)
}

// HashToken fingerprint stored instead of the raw refresh token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RedisStore Store on Redis. Each session is a JSON string under
// session:<id>; user_sessions:<uid> is a set indexing them per user.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a store whose sessions live for ttl
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func sessionKey(id string) string {
	return "session:" + id
}

func userKey(userID uint64) string {
	return fmt.Sprintf("user_sessions:%d", userID)
}

// Create stores s and indexes it under its user
func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	s.ExpiresAt = r.now().Add(r.ttl)

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, r.ttl)
	pipe.SAdd(ctx, userKey(s.UserID), s.ID)
	pipe.Expire(ctx, userKey(s.UserID), r.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Get loads a session
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// rotateScript swaps the stored session JSON only if it still matches what
// the caller read, compare and set in one round trip.
var rotateScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// Rotate replaces the refresh hash of a live session
func (r *RedisStore) Rotate(ctx context.Context, id, oldHash, newHash string) error {
	key := sessionKey(id)
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return fmt.Errorf("unmarshal session: %w", err)
	}
	if s.RefreshHash != oldHash {
		return ErrNotFound
	}

	s.RefreshHash = newHash
	s.ExpiresAt = r.now().Add(r.ttl)
	data, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	swapped, err := rotateScript.Run(ctx, r.client, []string{key}, raw, string(data), r.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if swapped == 0 {
		return ErrNotFound
	}
	return r.client.Expire(ctx, userKey(s.UserID), r.ttl).Err()
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, userKey(s.UserID), id)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteOthers removes every session of userID except keepID
func (r *RedisStore) DeleteOthers(ctx context.Context, userID uint64, keepID string) (int, error) {
	ids, err := r.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return 0, err
	}

	var n int
	pipe := r.client.TxPipeline()
	for _, id := range ids {
		if id == keepID {
			continue
		}
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, userKey(userID), id)
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return n, nil
}
