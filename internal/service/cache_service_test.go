package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

type cacheRepoFake struct {
	items    map[string][]byte
	ttls     map[string]time.Duration
	counters map[string]int64
	patterns []string
	getErr   error
}

func newCacheRepoFake() *cacheRepoFake {
	return &cacheRepoFake{items: map[string][]byte{}, ttls: map[string]time.Duration{}, counters: map[string]int64{}}
}

func (f *cacheRepoFake) Counter(ctx context.Context, key string) (int64, error) {
	return f.counters[key], nil
}

func (f *cacheRepoFake) Incr(ctx context.Context, key string) (int64, error) {
	f.counters[key]++
	return f.counters[key], nil
}

func (f *cacheRepoFake) Get(ctx context.Context, key string, dest interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	raw, ok := f.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *cacheRepoFake) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.items[key] = raw
	f.ttls[key] = ttl
	return nil
}

func (f *cacheRepoFake) DeleteByPattern(ctx context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	return nil
}

func TestCacheServiceRoundTripAndMetrics(t *testing.T) {
	repo := newCacheRepoFake()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, 0, nil, true)
	ctx := context.Background()

	var dest map[string]int
	hit, err := svc.Get(ctx, "calendar:0:DAY:2025-03-10::", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "calendar:0:DAY:2025-03-10::", map[string]int{"events": 3}, 0))
	assert.Equal(t, 2*time.Minute, repo.ttls["calendar:0:DAY:2025-03-10::"])

	hit, err = svc.Get(ctx, "calendar:0:DAY:2025-03-10::", &dest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, dest["events"])

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
}

func TestCalendarKeyKeepsEmptyFilters(t *testing.T) {
	assert.Equal(t, "calendar:0:DAY:2025-03-10::", CalendarKey(0, "DAY", "2025-03-10", "", ""))
	assert.Equal(t, "calendar:4:MONTH:2025-03-01:client-1:", CalendarKey(4, "MONTH", "2025-03-01", "client-1", ""))
}

func TestCacheServiceInvalidateCalendarStartsNewGeneration(t *testing.T) {
	repo := newCacheRepoFake()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()

	gen, err := svc.CalendarGeneration(ctx)
	require.NoError(t, err)
	assert.Zero(t, gen)

	svc.InvalidateCalendar(ctx)
	assert.Equal(t, []string{CalendarCachePattern}, repo.patterns)
	gen, err = svc.CalendarGeneration(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, gen)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newCacheRepoFake()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	ctx := context.Background()

	assert.False(t, svc.Enabled())
	require.NoError(t, svc.Set(ctx, "calendar:x", 1, 0))
	assert.Empty(t, repo.items)
	svc.InvalidateCalendar(ctx)
	assert.Empty(t, repo.patterns)
	assert.Empty(t, repo.counters)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	hit, err := nilSvc.Get(ctx, "calendar:x", new(int))
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceGetFailureIsReported(t *testing.T) {
	repo := newCacheRepoFake()
	repo.getErr = errors.New("connection reset")
	hit, err := NewCacheService(repo, nil, time.Minute, nil, true).Get(context.Background(), "calendar:x", new(int))
	assert.Error(t, err)
	assert.False(t, hit)
}
