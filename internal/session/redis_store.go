package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no live session exists for a key.
var ErrNotFound = errors.New("vote session not found")

// RedisStore keeps vote sessions as JSON blobs with a sliding TTL. Every Save
// refreshes the expiry, so an abandoned session disappears ttl after the
// user's last click.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed vote session store.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "vote_session:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(pollID, userID string) string {
	return s.prefix + pollID + ":" + userID
}

// Get loads the session for (pollID, userID), or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, pollID, userID string) (*VoteSession, error) {
	raw, err := s.client.Get(ctx, s.key(pollID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vote session: %w", err)
	}

	var vs VoteSession
	if err := json.Unmarshal(raw, &vs); err != nil {
		return nil, fmt.Errorf("unmarshal vote session: %w", err)
	}
	vs.normalize()
	return &vs, nil
}

// Save writes vs and refreshes its expiry.
func (s *RedisStore) Save(ctx context.Context, vs *VoteSession) error {
	vs.normalize()
	vs.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("marshal vote session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(vs.PollID, vs.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save vote session: %w", err)
	}
	return nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *RedisStore) Delete(ctx context.Context, pollID, userID string) error {
	if err := s.client.Del(ctx, s.key(pollID, userID)).Err(); err != nil {
		return fmt.Errorf("delete vote session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
