package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bugbridge/internal/bridge/models"
	platformredis "bugbridge/internal/platform/redis"
	"bugbridge/pkg/platform/sentinel"
)

const redisKeyPrefix = "bugbridge:correlation:"

// RedisStore persists correlations in redis. SET NX carries the atomic
// get-or-create contract: exactly one concurrent writer wins the key and
// every loser reads the winner's record back.
type RedisStore struct {
	client *platformredis.Client
}

func NewRedisStore(client *platformredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, sourceID string) (models.CorrelationRecord, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+sourceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.CorrelationRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.CorrelationRecord{}, fmt.Errorf("redis get correlation: %w", err)
	}
	return decode(raw)
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, sourceID, targetID string) (models.CorrelationRecord, bool, error) {
	rec := models.CorrelationRecord{
		SourceID:  sourceID,
		TargetID:  targetID,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return models.CorrelationRecord{}, false, fmt.Errorf("marshal correlation: %w", err)
	}

	created, err := s.client.SetNX(ctx, redisKeyPrefix+sourceID, raw, 0).Result()
	if err != nil {
		return models.CorrelationRecord{}, false, fmt.Errorf("redis setnx correlation: %w", err)
	}
	if created {
		return rec, true, nil
	}

	existing, err := s.Get(ctx, sourceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		// The winning record vanished between SETNX and GET; correlations
		// are never deleted in normal operation, so surface it loudly.
		return models.CorrelationRecord{}, false, fmt.Errorf("correlation for %s disappeared after lost create race: %w", sourceID, sentinel.ErrConflict)
	}
	if err != nil {
		return models.CorrelationRecord{}, false, err
	}
	return existing, false, nil
}

func decode(raw []byte) (models.CorrelationRecord, error) {
	var rec models.CorrelationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.CorrelationRecord{}, fmt.Errorf("decode correlation: %w", err)
	}
	return rec, nil
}
