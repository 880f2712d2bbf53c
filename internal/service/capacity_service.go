package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/foodforall-dc/delivery-api/internal/dto"
	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/pkg/database"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

const defaultNearRatio = 0.8

type capacityRepository interface {
	GetDailyLimit(ctx context.Context, date time.Time) (*models.DailyLimit, error)
	ListDailyLimits(ctx context.Context, from, to time.Time) ([]models.DailyLimit, error)
	UpsertDailyLimit(ctx context.Context, exec sqlx.ExtContext, limit *models.DailyLimit) error
	BulkUpsertDailyLimits(ctx context.Context, days []time.Time, limit int) error
	GetWeeklyLimits(ctx context.Context) (*models.WeeklyLimits, error)
	UpsertWeekday(ctx context.Context, exec sqlx.ExtContext, day time.Weekday, limit int, seed models.WeeklyLimits) error
}

type eventCounter interface {
	CountByDate(ctx context.Context, from, to time.Time) (map[string]int, error)
}

type capacityPublisher interface {
	Publish(change models.CapacityChange) int
}

type calendarInvalidator interface {
	InvalidateCalendar(ctx context.Context)
}

// CapacityServiceConfig tunes limit resolution.
type CapacityServiceConfig struct {
	// WeeklySeed is used until the weekday table is written, indexed Sunday..Saturday.
	WeeklySeed [7]int
	NearRatio  float64
	InstanceID string
}

// CapacityService resolves effective daily capacity and applies limit writes.
type CapacityService struct {
	repo      capacityRepository
	counts    eventCounter
	tx        database.TxBeginner
	hub       capacityPublisher
	cache     calendarInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       CapacityServiceConfig
}

// NewCapacityService constructs the service.
func NewCapacityService(
	repo capacityRepository,
	counts eventCounter,
	tx database.TxBeginner,
	hub capacityPublisher,
	cache calendarInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg CapacityServiceConfig,
) *CapacityService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NearRatio <= 0 || cfg.NearRatio > 1 {
		cfg.NearRatio = defaultNearRatio
	}
	return &CapacityService{
		repo:      repo,
		counts:    counts,
		tx:        tx,
		hub:       hub,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// StatusFor classifies count against limit using ratio as the "near" threshold. A zero limit means
// any booking at all is over capacity.
func StatusFor(count, limit int, ratio float64) models.CapacityStatus {
	switch {
	case limit <= 0:
		if count > 0 {
			return models.CapacityOver
		}
		return models.CapacityNormal
	case count > limit:
		return models.CapacityOver
	case count == limit:
		return models.CapacityAt
	case float64(count)/float64(limit) >= ratio:
		return models.CapacityNear
	default:
		return models.CapacityNormal
	}
}

// Status classifies count against limit with the configured near ratio.
func (s *CapacityService) Status(count, limit int) models.CapacityStatus {
	return StatusFor(count, limit, s.cfg.NearRatio)
}

// WeeklyDefaults returns the weekday default table, or the seed when it was never written.
func (s *CapacityService) WeeklyDefaults(ctx context.Context) (models.WeeklyLimits, error) {
	weekly, err := s.repo.GetWeeklyLimits(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WeeklyLimitsFromSlots(s.cfg.WeeklySeed), nil
		}
		return models.WeeklyLimits{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly limits")
	}
	return *weekly, nil
}

// Resolve returns the effective limit of date: its override when present, else its weekday default.
func (s *CapacityService) Resolve(ctx context.Context, date time.Time) (models.ResolvedLimit, error) {
	day := dates.Normalize(date)
	override, err := s.repo.GetDailyLimit(ctx, day)
	switch {
	case err == nil:
		return models.ResolvedLimit{Date: day, Limit: override.Limit, Source: models.CapacitySourceOverride}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.ResolvedLimit{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load daily limit")
	}

	weekly, err := s.WeeklyDefaults(ctx)
	if err != nil {
		return models.ResolvedLimit{}, err
	}
	return models.ResolvedLimit{Date: day, Limit: weekly.For(day.Weekday()), Source: models.CapacitySourceDefault}, nil
}

// ResolveRange resolves every date from from to to inclusive, keyed by YYYY-MM-DD.
func (s *CapacityService) ResolveRange(ctx context.Context, from, to time.Time) (map[string]models.ResolvedLimit, error) {
	days := dates.Range(from, to)
	if len(days) == 0 {
		return map[string]models.ResolvedLimit{}, nil
	}
	overrides, err := s.repo.ListDailyLimits(ctx, days[0], days[len(days)-1])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load daily limits")
	}
	weekly, err := s.WeeklyDefaults(ctx)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]int, len(overrides))
	for _, o := range overrides {
		byDate[dates.Format(o.Date)] = o.Limit
	}
	out := make(map[string]models.ResolvedLimit, len(days))
	for _, day := range days {
		key := dates.Format(day)
		if limit, ok := byDate[key]; ok {
			out[key] = models.ResolvedLimit{Date: day, Limit: limit, Source: models.CapacitySourceOverride}
			continue
		}
		out[key] = models.ResolvedLimit{Date: day, Limit: weekly.For(day.Weekday()), Source: models.CapacitySourceDefault}
	}
	return out, nil
}

// DayCapacities returns occupancy against the resolved limit for every date of the range.
func (s *CapacityService) DayCapacities(ctx context.Context, from, to time.Time) ([]models.DayCapacity, error) {
	limits, err := s.ResolveRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	counts, err := s.counts.CountByDate(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count deliveries")
	}

	days := dates.Range(from, to)
	out := make([]models.DayCapacity, 0, len(days))
	for _, day := range days {
		key := dates.Format(day)
		resolved := limits[key]
		count := counts[key]
		out = append(out, models.DayCapacity{
			Date:   key,
			Count:  count,
			Limit:  resolved.Limit,
			Source: resolved.Source,
			Status: s.Status(count, resolved.Limit),
		})
	}
	return out, nil
}

// ProjectWarnings checks what occupancy would be if one delivery were added on each of the given
// dates and returns every date that would not be normal, ordered by date.
func (s *CapacityService) ProjectWarnings(ctx context.Context, additions []time.Time) ([]models.CapacityWarning, error) {
	days := dates.SortUnique(additions)
	if len(days) == 0 {
		return nil, nil
	}
	extra := make(map[string]int, len(additions))
	for _, d := range additions {
		extra[dates.Format(dates.Normalize(d))]++
	}

	capacity, err := s.DayCapacities(ctx, days[0], days[len(days)-1])
	if err != nil {
		return nil, err
	}
	var warnings []models.CapacityWarning
	for _, day := range capacity {
		add, ok := extra[day.Date]
		if !ok {
			continue
		}
		projected := day.Count + add
		status := s.Status(projected, day.Limit)
		if status == models.CapacityNormal {
			continue
		}
		warnings = append(warnings, models.CapacityWarning{
			Date:           day.Date,
			ProjectedCount: projected,
			Limit:          day.Limit,
			Status:         status,
			Message:        fmt.Sprintf("%d of %d deliveries booked", projected, day.Limit),
		})
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Date < warnings[j].Date })
	return warnings, nil
}

// SetOverride upserts the limit of a single date.
func (s *CapacityService) SetOverride(ctx context.Context, date time.Time, limit int) (*models.DailyLimit, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	row := &models.DailyLimit{Date: dates.Normalize(date), Limit: limit}
	if err := s.repo.UpsertDailyLimit(ctx, nil, row); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save daily limit")
	}
	s.changed(ctx, string(dto.CapacityModeDateOverride), models.CapacityChange{
		Kind:  models.CapacityChangeOverride,
		Dates: []string{dates.Format(row.Date)},
		Limit: &limit,
	})
	return row, nil
}

// ApplyOverrides sets the same limit on every date in one transaction. Weekday defaults are not
// touched.
func (s *CapacityService) ApplyOverrides(ctx context.Context, days []time.Time, limit int) ([]string, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	days = dates.SortUnique(days)
	if len(days) == 0 {
		return nil, appErrors.Validation("at least one date is required", map[string]string{"dates": "required"})
	}
	if err := s.repo.BulkUpsertDailyLimits(ctx, days, limit); err != nil {
		return nil, appErrors.Retryable(appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save daily limits"))
	}
	applied := formatDates(days)
	s.changed(ctx, string(dto.CapacityModeDateOverride), models.CapacityChange{
		Kind:  models.CapacityChangeOverride,
		Dates: applied,
		Limit: &limit,
	})
	return applied, nil
}

// SetWeekdayDefault updates one weekday slot of the default table.
func (s *CapacityService) SetWeekdayDefault(ctx context.Context, day time.Weekday, limit int) (models.WeeklyLimits, error) {
	if err := validateLimit(limit); err != nil {
		return models.WeeklyLimits{}, err
	}
	current, err := s.WeeklyDefaults(ctx)
	if err != nil {
		return models.WeeklyLimits{}, err
	}
	if err := s.repo.UpsertWeekday(ctx, nil, day, limit, current); err != nil {
		return models.WeeklyLimits{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save weekly limit")
	}
	updated := current.With(day, limit)
	updated.UpdatedAt = time.Now().UTC()
	s.changed(ctx, string(dto.CapacityModeWeekdayDefault), models.CapacityChange{
		Kind:   models.CapacityChangeWeekly,
		Limit:  &limit,
		Weekly: &updated,
	})
	return updated, nil
}

// RewriteWeekdayDefaults sets the weekday default of every weekday that occurs in days. It affects
// all future dates of those weekdays, so it refuses to run unless confirm is true.
func (s *CapacityService) RewriteWeekdayDefaults(ctx context.Context, days []time.Time, limit int, confirm bool) (models.WeeklyLimits, []time.Weekday, error) {
	if err := validateLimit(limit); err != nil {
		return models.WeeklyLimits{}, nil, err
	}
	weekdays := weekdaysOf(days)
	if len(weekdays) == 0 {
		return models.WeeklyLimits{}, nil, appErrors.Validation("at least one date is required", map[string]string{"dates": "required"})
	}
	if !confirm {
		return models.WeeklyLimits{}, weekdays, appErrors.Clone(appErrors.ErrNotConfirmed, "rewriting weekday defaults requires confirm=true")
	}

	current, err := s.WeeklyDefaults(ctx)
	if err != nil {
		return models.WeeklyLimits{}, nil, err
	}
	updated := current
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		for _, day := range weekdays {
			if err := s.repo.UpsertWeekday(ctx, tx, day, limit, current); err != nil {
				return err
			}
			updated = updated.With(day, limit)
		}
		return nil
	})
	if err != nil {
		return models.WeeklyLimits{}, nil, appErrors.Retryable(appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rewrite weekday defaults"))
	}
	updated.UpdatedAt = time.Now().UTC()
	s.changed(ctx, string(dto.CapacityModeWeekdayDefault), models.CapacityChange{
		Kind:   models.CapacityChangeWeekly,
		Limit:  &limit,
		Weekly: &updated,
	})
	return updated, weekdays, nil
}

// SetCapacity applies a capacity write described by req.
func (s *CapacityService) SetCapacity(ctx context.Context, req dto.SetCapacityRequest) (*dto.CapacityWriteResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	limit := *req.Limit
	result := &dto.CapacityWriteResult{Mode: req.Mode, Limit: limit}

	switch req.Mode {
	case dto.CapacityModeDateOverride:
		raw := req.Dates
		if req.Date != "" {
			raw = append([]string{req.Date}, raw...)
		}
		days, err := parseDateList("dates", raw)
		if err != nil {
			return nil, err
		}
		if len(days) == 1 {
			row, err := s.SetOverride(ctx, days[0], limit)
			if err != nil {
				return nil, err
			}
			result.Dates = []string{dates.Format(row.Date)}
			return result, nil
		}
		applied, err := s.ApplyOverrides(ctx, days, limit)
		if err != nil {
			return nil, err
		}
		result.Dates = applied
		return result, nil

	case dto.CapacityModeWeekdayDefault:
		if req.Weekday != "" {
			day, err := dates.ParseWeekday(req.Weekday)
			if err != nil {
				return nil, appErrors.Validation("invalid weekday", map[string]string{"weekday": err.Error()})
			}
			weekly, err := s.SetWeekdayDefault(ctx, day, limit)
			if err != nil {
				return nil, err
			}
			result.Weekdays = []string{dates.WeekdayName(day)}
			result.Weekly = &weekly
			return result, nil
		}
		days, err := parseDateList("dates", req.Dates)
		if err != nil {
			return nil, err
		}
		weekly, weekdays, err := s.RewriteWeekdayDefaults(ctx, days, limit, req.Confirm)
		if err != nil {
			return nil, err
		}
		for _, day := range weekdays {
			result.Weekdays = append(result.Weekdays, dates.WeekdayName(day))
		}
		result.Weekly = &weekly
		return result, nil
	}
	return nil, appErrors.Validation("unsupported mode", map[string]string{"mode": string(req.Mode)})
}

// changed runs after a committed capacity write.
func (s *CapacityService) changed(ctx context.Context, mode string, change models.CapacityChange) {
	change.Origin = s.cfg.InstanceID
	change.At = time.Now().UTC()
	if s.cache != nil {
		s.cache.InvalidateCalendar(ctx)
	}
	if s.hub != nil {
		s.hub.Publish(change)
	}
	s.metrics.RecordCapacityWrite(mode)
	s.logger.Info("capacity updated", zap.String("kind", string(change.Kind)), zap.Strings("dates", change.Dates))
}

func validateLimit(limit int) error {
	if limit < 0 {
		return appErrors.Validation("limit must not be negative", map[string]string{"limit": "must be >= 0"})
	}
	return nil
}

func weekdaysOf(days []time.Time) []time.Weekday {
	var seen [7]bool
	var out []time.Weekday
	for _, d := range days {
		w := d.Weekday()
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func formatDates(days []time.Time) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = dates.Format(d)
	}
	return out
}
