package handshake

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"tg-amnesia/internal/models"
)

// RedisStore shares pending requests between bot instances. Entries carry a TTL
// equal to the retention window, so Redis does the sweeping.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) key(requesterID string) string {
	return s.prefix + requesterID
}

func (s *RedisStore) Get(ctx context.Context, requesterID string) (*models.PendingErasure, error) {
	raw, err := s.client.Get(ctx, s.key(requesterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis get %s", s.key(requesterID))
	}

	var p models.PendingErasure
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrapf(err, "decode pending erasure for %s", requesterID)
	}
	return &p, nil
}

func (s *RedisStore) Create(ctx context.Context, p *models.PendingErasure) (bool, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return false, errors.Wrap(err, "encode pending erasure")
	}
	ok, err := s.client.SetNX(ctx, s.key(p.RequesterID), raw, s.retention).Result()
	if err != nil {
		return false, errors.Wrapf(err, "redis setnx %s", s.key(p.RequesterID))
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, requesterID string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(requesterID)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "redis del %s", s.key(requesterID))
	}
	return n == 1, nil
}

// Sweep is a no-op; keys expire on their own.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
