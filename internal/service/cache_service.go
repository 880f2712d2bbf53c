package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

const (
	calendarCachePrefix   = "calendar"
	calendarGenerationKey = "calendar-generation"
	defaultCacheTTL       = 2 * time.Minute
)

// CalendarCachePattern matches every cached calendar view.
const CalendarCachePattern = calendarCachePrefix + ":*"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// CalendarKey names the cache entry of one calendar view within a generation. Empty filters stay
// as empty segments.
func CalendarKey(generation int64, granularity, from, clientID, driverID string) string {
	return fmt.Sprintf("%s:%d:%s:%s:%s:%s", calendarCachePrefix, generation, granularity, from, clientID, driverID)
}

// CacheService fronts the calendar cache. Any write to series or capacity starts a new calendar
// generation and drops every cached view; a view stored under an older generation is never read.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service. A nil repo disables caching.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get decodes the entry under key into dest and reports whether it was found. Misses are not
// errors.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	hit := err == nil
	s.metrics.RecordCacheOperation(hit, time.Since(start))
	switch {
	case hit:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value under key. A non-positive ttl uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes every entry matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// CalendarGeneration returns the generation calendar views are currently keyed by.
func (s *CacheService) CalendarGeneration(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	return s.repo.Counter(ctx, calendarGenerationKey)
}

// InvalidateCalendar starts a new calendar generation and drops every cached view. Failures are
// only logged; stale views then expire with their TTL.
func (s *CacheService) InvalidateCalendar(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if _, err := s.repo.Incr(ctx, calendarGenerationKey); err != nil {
		s.logger.Warn("calendar generation not bumped", zap.Error(err))
	}
	_ = s.Invalidate(ctx, CalendarCachePattern)
}
