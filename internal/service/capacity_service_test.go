package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodforall-dc/delivery-api/internal/dto"
	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

var seedLimits = [7]int{60, 60, 60, 60, 90, 90, 60}

type capacityRepoStub struct {
	daily  map[string]int
	weekly *models.WeeklyLimits
	err    error
	writes int
}

func newCapacityRepoStub() *capacityRepoStub {
	return &capacityRepoStub{daily: map[string]int{}}
}

func (s *capacityRepoStub) GetDailyLimit(ctx context.Context, date time.Time) (*models.DailyLimit, error) {
	if s.err != nil {
		return nil, s.err
	}
	limit, ok := s.daily[dates.Format(date)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.DailyLimit{Date: date, Limit: limit}, nil
}

func (s *capacityRepoStub) ListDailyLimits(ctx context.Context, from, to time.Time) ([]models.DailyLimit, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.DailyLimit
	for _, day := range dates.Range(from, to) {
		if limit, ok := s.daily[dates.Format(day)]; ok {
			out = append(out, models.DailyLimit{Date: day, Limit: limit})
		}
	}
	return out, nil
}

func (s *capacityRepoStub) UpsertDailyLimit(ctx context.Context, exec sqlx.ExtContext, limit *models.DailyLimit) error {
	if s.err != nil {
		return s.err
	}
	s.writes++
	s.daily[dates.Format(limit.Date)] = limit.Limit
	return nil
}

func (s *capacityRepoStub) BulkUpsertDailyLimits(ctx context.Context, days []time.Time, limit int) error {
	if s.err != nil {
		return s.err
	}
	for _, d := range days {
		s.writes++
		s.daily[dates.Format(d)] = limit
	}
	return nil
}

func (s *capacityRepoStub) GetWeeklyLimits(ctx context.Context) (*models.WeeklyLimits, error) {
	if s.weekly == nil {
		return nil, sql.ErrNoRows
	}
	weekly := *s.weekly
	return &weekly, nil
}

func (s *capacityRepoStub) UpsertWeekday(ctx context.Context, exec sqlx.ExtContext, day time.Weekday, limit int, seed models.WeeklyLimits) error {
	if s.err != nil {
		return s.err
	}
	s.writes++
	base := seed
	if s.weekly != nil {
		base = *s.weekly
	}
	updated := base.With(day, limit)
	s.weekly = &updated
	return nil
}

type eventCounterStub map[string]int

func (s eventCounterStub) CountByDate(ctx context.Context, from, to time.Time) (map[string]int, error) {
	return s, nil
}

type invalidatorStub struct{ calls int }

func (s *invalidatorStub) InvalidateCalendar(ctx context.Context) { s.calls++ }

func newCapacityServiceForTest(t *testing.T, repo *capacityRepoStub, counts eventCounterStub) (*CapacityService, *CapacityHub, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	hub := NewCapacityHub(nil, nil)
	t.Cleanup(hub.Close)
	svc := NewCapacityService(repo, counts, sqlx.NewDb(db, "sqlmock"), hub, &invalidatorStub{}, nil, nil, nil,
		CapacityServiceConfig{WeeklySeed: seedLimits, InstanceID: "node-a"})
	return svc, hub, mock
}

func TestCapacityResolveOverrideThenDefault(t *testing.T) {
	repo := newCapacityRepoStub()
	repo.daily["2025-03-10"] = 40
	svc, _, _ := newCapacityServiceForTest(t, repo, nil)

	got, err := svc.Resolve(context.Background(), dates.Date(2025, time.March, 10))
	require.NoError(t, err)
	assert.Equal(t, 40, got.Limit)
	assert.Equal(t, models.CapacitySourceOverride, got.Source)

	got, err = svc.Resolve(context.Background(), dates.Date(2025, time.March, 17))
	require.NoError(t, err)
	assert.Equal(t, 60, got.Limit)
	assert.Equal(t, models.CapacitySourceDefault, got.Source)
}

func TestCapacityResolveOverrideBeatsZeroDefault(t *testing.T) {
	repo := newCapacityRepoStub()
	weekly := models.WeeklyLimitsFromSlots([7]int{0, 0, 0, 0, 0, 0, 0})
	repo.weekly = &weekly
	repo.daily["2025-03-09"] = 5
	svc, _, _ := newCapacityServiceForTest(t, repo, nil)

	got, err := svc.Resolve(context.Background(), dates.Date(2025, time.March, 9))
	require.NoError(t, err)
	assert.Equal(t, 5, got.Limit)
}

func TestCapacityResolveRepositoryFailure(t *testing.T) {
	repo := newCapacityRepoStub()
	repo.err = errors.New("connection refused")
	svc, _, _ := newCapacityServiceForTest(t, repo, nil)

	_, err := svc.Resolve(context.Background(), dates.Date(2025, time.March, 9))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		count, limit int
		want         models.CapacityStatus
	}{
		{0, 0, models.CapacityNormal},
		{1, 0, models.CapacityOver},
		{10, 60, models.CapacityNormal},
		{48, 60, models.CapacityNear},
		{60, 60, models.CapacityAt},
		{61, 60, models.CapacityOver},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.count, tc.limit, 0.8), "count %d limit %d", tc.count, tc.limit)
	}
}

func TestCapacityDayCapacities(t *testing.T) {
	repo := newCapacityRepoStub()
	repo.daily["2025-03-11"] = 10
	svc, _, _ := newCapacityServiceForTest(t, repo, eventCounterStub{"2025-03-10": 59, "2025-03-11": 10})

	days, err := svc.DayCapacities(context.Background(), dates.Date(2025, time.March, 10), dates.Date(2025, time.March, 12))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, models.DayCapacity{Date: "2025-03-10", Count: 59, Limit: 60, Source: models.CapacitySourceDefault, Status: models.CapacityNear}, days[0])
	assert.Equal(t, models.CapacityAt, days[1].Status)
	assert.Equal(t, models.CapacityNormal, days[2].Status)
}

func TestCapacityProjectWarningsSortedByDate(t *testing.T) {
	repo := newCapacityRepoStub()
	repo.daily["2025-03-03"] = 1
	svc, _, _ := newCapacityServiceForTest(t, repo, eventCounterStub{"2025-03-17": 60, "2025-03-10": 10})

	warnings, err := svc.ProjectWarnings(context.Background(), []time.Time{
		dates.Date(2025, time.March, 17),
		dates.Date(2025, time.March, 10),
		dates.Date(2025, time.March, 3),
	})
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, "2025-03-03", warnings[0].Date)
	assert.Equal(t, models.CapacityAt, warnings[0].Status)
	assert.Equal(t, "2025-03-17", warnings[1].Date)
	assert.Equal(t, 61, warnings[1].ProjectedCount)
	assert.Equal(t, models.CapacityOver, warnings[1].Status)
}

func TestCapacitySetOverridePublishesChange(t *testing.T) {
	repo := newCapacityRepoStub()
	svc, hub, _ := newCapacityServiceForTest(t, repo, nil)
	sub, err := hub.Subscribe(1)
	require.NoError(t, err)

	_, err = svc.SetOverride(context.Background(), dates.Date(2025, time.March, 10), 40)
	require.NoError(t, err)
	assert.Equal(t, 40, repo.daily["2025-03-10"])

	change := <-sub.C
	assert.Equal(t, models.CapacityChangeOverride, change.Kind)
	assert.Equal(t, []string{"2025-03-10"}, change.Dates)
	assert.Equal(t, "node-a", change.Origin)
	require.NotNil(t, change.Limit)
	assert.Equal(t, 40, *change.Limit)
}

func TestCapacitySetOverrideRejectsNegative(t *testing.T) {
	repo := newCapacityRepoStub()
	svc, _, _ := newCapacityServiceForTest(t, repo, nil)

	_, err := svc.SetOverride(context.Background(), dates.Date(2025, time.March, 10), -1)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, repo.writes)
}

func TestCapacityApplyOverridesLeavesDefaults(t *testing.T) {
	repo := newCapacityRepoStub()
	svc, _, _ := newCapacityServiceForTest(t, repo, nil)

	applied, err := svc.ApplyOverrides(context.Background(), []time.Time{
		dates.Date(2025, time.March, 12), dates.Date(2025, time.March, 10), dates.Date(2025, time.March, 10),
	}, 25)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-10", "2025-03-12"}, applied)
	assert.Nil(t, repo.weekly)

	got, err := svc.Resolve(context.Background(), dates.Date(2025, time.March, 17))
	require.NoError(t, err)
	assert.Equal(t, 60, got.Limit)
}

func TestCapacitySetWeekdayDefaultCreatesTable(t *testing.T) {
	repo := newCapacityRepoStub()
	svc, _, _ := newCapacityServiceForTest(t, repo, nil)

	weekly, err := svc.SetWeekdayDefault(context.Background(), time.Monday, 45)
	require.NoError(t, err)
	assert.Equal(t, 45, weekly.Monday)
	assert.Equal(t, 90, weekly.Thursday)
	require.NotNil(t, repo.weekly)
	assert.Equal(t, 45, repo.weekly.Monday)
}

func TestCapacityRewriteWeekdayDefaultsRequiresConfirm(t *testing.T) {
	repo := newCapacityRepoStub()
	svc, _, _ := newCapacityServiceForTest(t, repo, nil)

	_, weekdays, err := svc.RewriteWeekdayDefaults(context.Background(), []time.Time{dates.Date(2025, time.March, 10)}, 30, false)
	assert.ErrorIs(t, err, appErrors.ErrNotConfirmed)
	assert.Equal(t, []time.Weekday{time.Monday}, weekdays)
	assert.Zero(t, repo.writes)
}

func TestCapacityRewriteWeekdayDefaultsInTransaction(t *testing.T) {
	repo := newCapacityRepoStub()
	svc, _, mock := newCapacityServiceForTest(t, repo, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	weekly, weekdays, err := svc.RewriteWeekdayDefaults(context.Background(), []time.Time{
		dates.Date(2025, time.March, 14), dates.Date(2025, time.March, 10), dates.Date(2025, time.March, 17),
	}, 30, true)
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, weekdays)
	assert.Equal(t, 30, weekly.Monday)
	assert.Equal(t, 30, weekly.Friday)
	assert.Equal(t, 60, weekly.Tuesday)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityRewriteWeekdayDefaultsRollsBack(t *testing.T) {
	repo := newCapacityRepoStub()
	svc, _, mock := newCapacityServiceForTest(t, repo, nil)
	repo.err = errors.New("deadlock")
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, _, err := svc.RewriteWeekdayDefaults(context.Background(), []time.Time{dates.Date(2025, time.March, 10)}, 30, true)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.True(t, appErr.Retryable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func intPtr(v int) *int { return &v }

func TestSetCapacityModes(t *testing.T) {
	repo := newCapacityRepoStub()
	svc, _, _ := newCapacityServiceForTest(t, repo, nil)
	ctx := context.Background()

	result, err := svc.SetCapacity(ctx, dto.SetCapacityRequest{Mode: dto.CapacityModeDateOverride, Date: "2025-03-10", Limit: intPtr(40)})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-10"}, result.Dates)

	result, err = svc.SetCapacity(ctx, dto.SetCapacityRequest{Mode: dto.CapacityModeDateOverride, Dates: []string{"2025-03-11", "2025-03-12"}, Limit: intPtr(20)})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-11", "2025-03-12"}, result.Dates)
	assert.Nil(t, repo.weekly)

	result, err = svc.SetCapacity(ctx, dto.SetCapacityRequest{Mode: dto.CapacityModeWeekdayDefault, Weekday: "saturday", Limit: intPtr(15)})
	require.NoError(t, err)
	assert.Equal(t, []string{"saturday"}, result.Weekdays)
	assert.Equal(t, 15, result.Weekly.Saturday)

	_, err = svc.SetCapacity(ctx, dto.SetCapacityRequest{Mode: dto.CapacityModeWeekdayDefault, Dates: []string{"2025-03-10"}, Limit: intPtr(15)})
	assert.ErrorIs(t, err, appErrors.ErrNotConfirmed)
}

func TestSetCapacityValidation(t *testing.T) {
	repo := newCapacityRepoStub()
	svc, _, _ := newCapacityServiceForTest(t, repo, nil)

	_, err := svc.SetCapacity(context.Background(), dto.SetCapacityRequest{Mode: "SOMETIMES", Limit: intPtr(1)})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "mode")

	_, err = svc.SetCapacity(context.Background(), dto.SetCapacityRequest{Mode: dto.CapacityModeDateOverride, Date: "2025-13-01", Limit: intPtr(1)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.SetCapacity(context.Background(), dto.SetCapacityRequest{Mode: dto.CapacityModeDateOverride, Date: "2025-03-01"})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Fields, "limit")
	assert.Zero(t, repo.writes)
}
