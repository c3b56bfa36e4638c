package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
)

// LessonCacheKey is the Redis key holding an owner's lesson list.
func LessonCacheKey(ownerID string) string {
	return "lessons:" + ownerID
}

// CacheRepository keeps owners' lesson lists in Redis. A nil client turns it
// into a permanent miss.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// GetLessons returns the cached lessons or appErrors.ErrCacheMiss.
func (r *CacheRepository) GetLessons(ctx context.Context, ownerID string) ([]models.Lesson, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	key := LessonCacheKey(ownerID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var lessons []models.Lesson
	if err := json.Unmarshal(raw, &lessons); err != nil {
		return nil, fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return lessons, nil
}

// SetLessons stores the owner's lessons with the given TTL.
func (r *CacheRepository) SetLessons(ctx context.Context, ownerID string, lessons []models.Lesson, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	key := LessonCacheKey(ownerID)
	payload, err := json.Marshal(lessons)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidateLessons drops the owner's cached list.
func (r *CacheRepository) InvalidateLessons(ctx context.Context, ownerID string) error {
	if r.client == nil {
		return nil
	}
	key := LessonCacheKey(ownerID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
