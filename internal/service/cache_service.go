package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
)

type lessonCacheRepository interface {
	GetLessons(ctx context.Context, ownerID string) ([]models.Lesson, error)
	SetLessons(ctx context.Context, ownerID string, lessons []models.Lesson, ttl time.Duration) error
	InvalidateLessons(ctx context.Context, ownerID string) error
}

// CacheService fronts the lesson cache. Cache failures are logged and
// treated as misses; the database stays the source of truth.
type CacheService struct {
	repo    lessonCacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo lessonCacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Lessons returns the cached lesson list and whether it was a hit.
func (s *CacheService) Lessons(ctx context.Context, ownerID string) ([]models.Lesson, bool) {
	if !s.Enabled() {
		return nil, false
	}
	lessons, err := s.repo.GetLessons(ctx, ownerID)
	if err != nil {
		s.metrics.RecordCacheOperation(false)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("owner_id", ownerID), zap.Error(err))
		}
		return nil, false
	}
	s.metrics.RecordCacheOperation(true)
	return lessons, true
}

// StoreLessons caches the owner's lesson list.
func (s *CacheService) StoreLessons(ctx context.Context, ownerID string, lessons []models.Lesson) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.SetLessons(ctx, ownerID, lessons, s.ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}

// Invalidate drops the owner's cached lesson list.
func (s *CacheService) Invalidate(ctx context.Context, ownerID string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.InvalidateLessons(ctx, ownerID); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}
