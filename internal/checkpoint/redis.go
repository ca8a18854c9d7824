package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pdftables:checkpoint:"

// RedisStore keeps checkpoints under pdftables:checkpoint:<documentID>.
// A zero TTL keeps keys until they are cleared.
type RedisStore struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{rdb: rdb, ttl: ttl, logger: logger}
}

func redisKey(documentID string) string {
	return redisKeyPrefix + documentID
}

func (s *RedisStore) Save(ctx context.Context, documentID string, cp Checkpoint) error {
	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKey(documentID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	s.logger.Debug("checkpoint.redis.saved", "document_id", documentID, "rows", cp.TotalRows, "last_page", cp.LastPage)
	return nil
}

func (s *RedisStore) Load(ctx context.Context, documentID string) (Checkpoint, error) {
	b, err := s.rdb.Get(ctx, redisKey(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("redis get: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", redisKey(documentID), err)
	}
	return cp, nil
}

func (s *RedisStore) Clear(ctx context.Context, documentID string) error {
	if err := s.rdb.Del(ctx, redisKey(documentID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
