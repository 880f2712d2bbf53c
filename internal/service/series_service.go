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
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/foodforall-dc/delivery-api/internal/dto"
	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/internal/repository"
	"github.com/foodforall-dc/delivery-api/pkg/database"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
	"github.com/foodforall-dc/delivery-api/pkg/middleware/requestid"
)

const (
	operationCreate = "create"
	operationEdit   = "edit"
	operationDelete = "delete"
)

type seriesStore interface {
	FindByID(ctx context.Context, id string) (*models.DeliverySeries, error)
	Lock(ctx context.Context, exec sqlx.ExtContext, id string) (*models.DeliverySeries, error)
	LockLineage(ctx context.Context, exec sqlx.ExtContext, rootID string) ([]models.DeliverySeries, error)
	Create(ctx context.Context, exec sqlx.ExtContext, series *models.DeliverySeries) error
	Update(ctx context.Context, exec sqlx.ExtContext, series *models.DeliverySeries, expectedVersion int) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type eventStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.DeliveryEvent, error)
	ListBySeries(ctx context.Context, exec sqlx.ExtContext, seriesID string) ([]models.DeliveryEvent, error)
	ClientDates(ctx context.Context, exec sqlx.ExtContext, clientID, excludeSeriesID string) ([]time.Time, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, events []models.DeliveryEvent) ([]models.DeliveryEvent, []time.Time, error)
	UpdateDate(ctx context.Context, exec sqlx.ExtContext, id string, date time.Time) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) (int64, error)
	DeleteFollowing(ctx context.Context, exec sqlx.ExtContext, seriesIDs []string, eventID string, after time.Time) (int64, error)
	DeleteFrom(ctx context.Context, exec sqlx.ExtContext, seriesIDs []string, from time.Time) (int64, error)
	DeleteBySeries(ctx context.Context, exec sqlx.ExtContext, seriesIDs []string) (int64, error)
	CountBySeries(ctx context.Context, exec sqlx.ExtContext, seriesID string) (int, error)
}

type warningProjector interface {
	ProjectWarnings(ctx context.Context, additions []time.Time) ([]models.CapacityWarning, error)
}

// SeriesServiceConfig governs series writes.
type SeriesServiceConfig struct {
	WriteTimeout time.Duration
}

// SeriesService creates, edits and deletes delivery series under a propagation scope. Every
// mutation runs in one transaction and bumps the series version.
type SeriesService struct {
	series    seriesStore
	events    eventStore
	tx        database.TxBeginner
	engine    *RecurrenceEngine
	capacity  warningProjector
	cache     calendarInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SeriesServiceConfig
}

// NewSeriesService constructs the service.
func NewSeriesService(
	series seriesStore,
	events eventStore,
	tx database.TxBeginner,
	engine *RecurrenceEngine,
	capacity warningProjector,
	cache calendarInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg SeriesServiceConfig,
) *SeriesService {
	if engine == nil {
		engine = NewRecurrenceEngine(0)
	}
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeriesService{
		series:    series,
		events:    events,
		tx:        tx,
		engine:    engine,
		capacity:  capacity,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// GetSeries returns a series with its events.
func (s *SeriesService) GetSeries(ctx context.Context, id string) (*dto.SeriesDetail, error) {
	series, err := s.series.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "series not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load series")
	}
	events, err := s.events.ListBySeries(ctx, nil, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load series events")
	}
	if events == nil {
		events = []models.DeliveryEvent{}
	}
	return &dto.SeriesDetail{Series: *series, Pattern: PatternLabel(series.Recurrence, seriesAnchor(series)), Events: events}, nil
}

// CreateSeries expands the request into dates and books them. Dates on which the client already
// has a delivery are skipped and reported, which makes the result PARTIAL.
func (s *SeriesService) CreateSeries(ctx context.Context, req dto.CreateSeriesRequest) (*dto.MutationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	kind, err := parseKind(req.Recurrence)
	if err != nil {
		return nil, err
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		return nil, err
	}
	rule, err := buildRule(kind, start, req.RepeatsEndDate, req.CustomDates)
	if err != nil {
		return nil, err
	}
	occurrences, err := s.engine.Expand(rule)
	if err != nil {
		return nil, err
	}
	occurrences = dates.SortUnique(occurrences)

	series := &models.DeliverySeries{
		ClientID:       req.ClientID,
		ClientName:     req.ClientName,
		Recurrence:     kind,
		StartDate:      start,
		AnchorDate:     start,
		RepeatsEndDate: rule.EndDate,
		CustomDates:    customDateArray(kind, rule.CustomDates),
	}
	template := models.DeliveryEvent{
		ClientID:           req.ClientID,
		ClientName:         req.ClientName,
		AssignedDriverID:   req.AssignedDriverID,
		AssignedDriverName: req.AssignedDriverName,
		Recurrence:         kind,
		RepeatsEndDate:     rule.EndDate,
		Time:               req.Time,
		Cluster:            req.Cluster,
	}
	result := &dto.MutationResult{Operation: operationCreate, Created: []string{}}
	var warnings []models.CapacityWarning

	ctx, cancel := s.writeContext(ctx)
	defer cancel()
	err = s.inTx(ctx, "series.create", func(tx *sqlx.Tx) error {
		booked, err := s.events.ClientDates(ctx, tx, req.ClientID, "")
		if err != nil {
			return err
		}
		wanted, skipped := excludeDates(occurrences, booked)
		if len(wanted) == 0 {
			return appErrors.Clone(appErrors.ErrConflict, "client already has a delivery on every requested date")
		}
		warnings = s.projectWarnings(ctx, wanted)
		if err := s.series.Create(ctx, tx, series); err != nil {
			return err
		}
		template.SeriesID = series.ID
		inserted, raced, err := s.events.InsertBatch(ctx, tx, eventsFor(template, wanted))
		if err != nil {
			return err
		}
		result.Created = eventDates(inserted)
		result.Skipped = formatDates(dates.SortUnique(append(skipped, raced...)))
		return nil
	})
	if err != nil {
		return s.failed(ctx, result, err)
	}

	result.SeriesID = series.ID
	result.SeriesVersion = series.Version
	result.Series = series
	result.Warnings = warnings
	return s.committed(ctx, result)
}

// EditSeries changes the event eventID. THIS moves only that event. FOLLOWING replaces the
// event and every later event of its series with dates regenerated from the request. When the
// request keeps the kind and the date of the event the series pattern is reused; otherwise the
// earlier events keep their series, which is closed the day before.
func (s *SeriesService) EditSeries(ctx context.Context, eventID string, scope models.MutationScope, req dto.EditSeriesRequest) (*dto.MutationResult, error) {
	if scope != models.ScopeThis && scope != models.ScopeFollowing {
		return nil, appErrors.Validation("invalid edit scope", map[string]string{"scope": "edit supports this or following"})
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	newDate, err := parseDate("deliveryDate", req.DeliveryDate)
	if err != nil {
		return nil, err
	}
	target, err := s.findEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if scope == models.ScopeThis {
		return s.moveEvent(ctx, target, newDate, req.ExpectedVersion)
	}
	return s.regenerateFollowing(ctx, target, newDate, req)
}

func (s *SeriesService) moveEvent(ctx context.Context, target *models.DeliveryEvent, newDate time.Time, expectedVersion int) (*dto.MutationResult, error) {
	result := &dto.MutationResult{Operation: operationEdit, Scope: models.ScopeThis, SeriesID: target.SeriesID, Created: []string{}}

	ctx, cancel := s.writeContext(ctx)
	defer cancel()
	err := s.inTx(ctx, "series.move", func(tx *sqlx.Tx) error {
		series, err := s.lockSeries(ctx, tx, target.SeriesID, expectedVersion)
		if err != nil {
			return err
		}
		persisted, err := s.events.FindByID(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		if err := s.events.UpdateDate(ctx, tx, target.ID, newDate); err != nil {
			if database.IsUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("client already has a delivery on %s", dates.Format(newDate)))
			}
			return err
		}
		moveOccurrence(series, persisted.DeliveryDate, newDate)
		if err := s.series.Update(ctx, tx, series, 0); err != nil {
			return err
		}
		result.SeriesVersion = series.Version
		return nil
	})
	if err != nil {
		return s.failed(ctx, result, err)
	}
	result.Created = []string{dates.Format(newDate)}
	result.Deleted = 0
	return s.committed(ctx, result)
}

func (s *SeriesService) regenerateFollowing(ctx context.Context, target *models.DeliveryEvent, newDate time.Time, req dto.EditSeriesRequest) (*dto.MutationResult, error) {
	result := &dto.MutationResult{Operation: operationEdit, Scope: models.ScopeFollowing, Created: []string{}}

	current, err := s.series.FindByID(ctx, target.SeriesID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "series not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load series")
	}

	kind := current.Recurrence
	if req.Recurrence != "" {
		if kind, err = parseKind(req.Recurrence); err != nil {
			return nil, err
		}
	}
	original := dates.Normalize(target.DeliveryDate)
	samePattern := kind == current.Recurrence && dates.Equal(newDate, original)

	endRaw := req.RepeatsEndDate
	if endRaw == "" && current.RepeatsEndDate != nil && kind.RequiresEndDate() {
		endRaw = dates.Format(*current.RepeatsEndDate)
	}
	customRaw := req.CustomDates
	if kind == models.RecurrenceCustom && len(customRaw) == 0 && current.Recurrence == models.RecurrenceCustom {
		customRaw = remainingCustomDates(current.CustomDates, original, newDate)
	}
	rule, err := buildRule(kind, newDate, endRaw, customRaw)
	if err != nil {
		return nil, err
	}
	if samePattern && kind.RequiresEndDate() {
		rule.Anchor = seriesAnchor(current)
		rule.Exclude = storedDates(current.ExcludedDates)
		rule.Include = storedDates(current.AddedDates)
		if req.RepeatsEndDate != "" {
			rule.Include = onOrBefore(rule.Include, *rule.EndDate)
		}
	}
	occurrences, err := s.engine.Expand(rule)
	if err != nil {
		return nil, err
	}
	occurrences = dates.SortUnique(occurrences)

	ctx, cancel := s.writeContext(ctx)
	defer cancel()
	err = s.inTx(ctx, "series.regenerate", func(tx *sqlx.Tx) error {
		series, err := s.lockSeries(ctx, tx, target.SeriesID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		// The dates above were computed from this version.
		if series.Version != current.Version {
			return repository.ErrVersionMismatch
		}
		// Bound the range by the stored date, not any value from the request.
		persisted, err := s.events.FindByID(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		if persisted.SeriesID != series.ID || !dates.Equal(persisted.DeliveryDate, original) {
			return repository.ErrVersionMismatch
		}

		lineage, err := s.series.LockLineage(ctx, tx, series.RootID)
		if err != nil {
			return err
		}
		deleted, err := s.events.DeleteFrom(ctx, tx, lineageIDs(lineage, series.ID), original)
		if err != nil {
			return err
		}
		result.Deleted = int(deleted)
		if err := s.closeLineage(ctx, tx, lineage, series.ID, original); err != nil {
			return err
		}

		remaining, err := s.events.CountBySeries(ctx, tx, series.ID)
		if err != nil {
			return err
		}
		next := series
		split := remaining > 0 && (kind != series.Recurrence || (kind.RequiresEndDate() && !samePattern))
		if split {
			closeSeriesBefore(series, original)
			if err := s.series.Update(ctx, tx, series, 0); err != nil {
				return err
			}
			next = &models.DeliverySeries{ClientID: series.ClientID, ClientName: series.ClientName, StartDate: newDate}
			if kind == series.Recurrence {
				next.RootID = series.RootID
			}
		} else {
			if remaining == 0 {
				next.StartDate = newDate
			}
			if kind != series.Recurrence {
				next.RootID = series.ID
			}
		}

		keptCustom := pq.StringArray(nil)
		if !split && series.Recurrence == models.RecurrenceCustom {
			keptCustom = datesBefore(series.CustomDates, original)
		}
		if !samePattern {
			next.AnchorDate = newDate
			next.ExcludedDates = nil
			next.AddedDates = nil
		} else if req.RepeatsEndDate != "" && rule.EndDate != nil {
			next.AddedDates = pq.StringArray(formatDates(onOrBefore(storedDates(next.AddedDates), *rule.EndDate)))
		}
		next.Recurrence = kind
		next.RepeatsEndDate = rule.EndDate
		next.CustomDates = nil
		if kind == models.RecurrenceCustom {
			next.CustomDates = mergeDates(keptCustom, rule.CustomDates)
		}
		if split {
			err = s.series.Create(ctx, tx, next)
		} else {
			err = s.series.Update(ctx, tx, next, 0)
		}
		if err != nil {
			return err
		}

		booked, err := s.events.ClientDates(ctx, tx, next.ClientID, "")
		if err != nil {
			return err
		}
		wanted, skipped := excludeDates(occurrences, booked)
		template := eventTemplate(persisted, next, req)
		inserted, raced, err := s.events.InsertBatch(ctx, tx, eventsFor(template, wanted))
		if err != nil {
			return err
		}
		result.SeriesID = next.ID
		result.SeriesVersion = next.Version
		result.Series = next
		result.Created = eventDates(inserted)
		result.Skipped = formatDates(dates.SortUnique(append(skipped, raced...)))
		return nil
	})
	if err != nil {
		return s.failed(ctx, result, err)
	}
	return s.committed(ctx, result)
}

// closeLineage removes the parts of a lineage other than keepID that were left without events and
// ends the others before cutoff.
func (s *SeriesService) closeLineage(ctx context.Context, tx sqlx.ExtContext, lineage []models.DeliverySeries, keepID string, cutoff time.Time) error {
	for i := range lineage {
		part := &lineage[i]
		if part.ID == keepID {
			continue
		}
		remaining, err := s.events.CountBySeries(ctx, tx, part.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := s.series.Delete(ctx, tx, part.ID); err != nil {
				return err
			}
			continue
		}
		closeSeriesBefore(part, cutoff)
		if err := s.series.Update(ctx, tx, part, 0); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSeries removes events of a series. THIS removes the targeted event, FOLLOWING also removes
// every later event, ALL removes the whole series. FOLLOWING and ALL reach every part of a split
// series. A part left without events is removed too.
func (s *SeriesService) DeleteSeries(ctx context.Context, eventID string, scope models.MutationScope, expectedVersion int) (*dto.MutationResult, error) {
	switch scope {
	case models.ScopeThis, models.ScopeFollowing, models.ScopeAll:
	default:
		return nil, appErrors.Validation("invalid delete scope", map[string]string{"scope": "must be this, following or all"})
	}
	target, err := s.findEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	result := &dto.MutationResult{Operation: operationDelete, Scope: scope, SeriesID: target.SeriesID, Created: []string{}}

	ctx, cancel := s.writeContext(ctx)
	defer cancel()
	err = s.inTx(ctx, "series.delete", func(tx *sqlx.Tx) error {
		series, err := s.lockSeries(ctx, tx, target.SeriesID, expectedVersion)
		if err != nil {
			return err
		}
		persisted, err := s.events.FindByID(ctx, tx, target.ID)
		if err != nil {
			return err
		}

		parts := []models.DeliverySeries{*series}
		if scope != models.ScopeThis {
			if parts, err = s.series.LockLineage(ctx, tx, series.RootID); err != nil {
				return err
			}
		}
		ids := lineageIDs(parts, series.ID)

		var deleted int64
		switch scope {
		case models.ScopeThis:
			deleted, err = s.events.Delete(ctx, tx, persisted.ID)
		case models.ScopeFollowing:
			deleted, err = s.events.DeleteFollowing(ctx, tx, ids, persisted.ID, persisted.DeliveryDate)
		case models.ScopeAll:
			deleted, err = s.events.DeleteBySeries(ctx, tx, ids)
		}
		if err != nil {
			return err
		}
		result.Deleted = int(deleted)

		result.SeriesVersion = 0
		for i := range parts {
			part := &parts[i]
			remaining, err := s.events.CountBySeries(ctx, tx, part.ID)
			if err != nil {
				return err
			}
			if remaining == 0 {
				if err := s.series.Delete(ctx, tx, part.ID); err != nil {
					return err
				}
				continue
			}
			switch scope {
			case models.ScopeThis:
				dropOccurrence(part, persisted.DeliveryDate)
			case models.ScopeFollowing:
				closeSeriesBefore(part, persisted.DeliveryDate)
			}
			if err := s.series.Update(ctx, tx, part, 0); err != nil {
				return err
			}
			if part.ID == series.ID {
				result.SeriesVersion = part.Version
			}
		}
		return nil
	})
	if err != nil {
		return s.failed(ctx, result, err)
	}
	return s.committed(ctx, result)
}

func (s *SeriesService) findEvent(ctx context.Context, id string) (*models.DeliveryEvent, error) {
	event, err := s.events.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "delivery event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load delivery event")
	}
	return event, nil
}

// lockSeries takes the series row lock and enforces expectedVersion when it is set.
func (s *SeriesService) lockSeries(ctx context.Context, tx sqlx.ExtContext, id string, expectedVersion int) (*models.DeliverySeries, error) {
	series, err := s.series.Lock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion > 0 && series.Version != expectedVersion {
		return nil, repository.ErrVersionMismatch
	}
	return series, nil
}

// inTx runs fn in a transaction and records its duration under label.
func (s *SeriesService) inTx(ctx context.Context, label string, fn func(tx *sqlx.Tx) error) error {
	start := time.Now()
	err := database.WithTx(ctx, s.tx, fn)
	s.metrics.ObserveDBQuery(label, time.Since(start))
	return err
}

func (s *SeriesService) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.WriteTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.WriteTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *SeriesService) projectWarnings(ctx context.Context, occurrences []time.Time) []models.CapacityWarning {
	if s.capacity == nil {
		return nil
	}
	warnings, err := s.capacity.ProjectWarnings(ctx, occurrences)
	if err != nil {
		s.logger.Warn("capacity projection failed", zap.Error(err))
		return nil
	}
	return warnings
}

// committed finalises a successful mutation. Skipped dates turn the result into PARTIAL, returned
// together with ErrPartialBatch.
func (s *SeriesService) committed(ctx context.Context, result *dto.MutationResult) (*dto.MutationResult, error) {
	result.Status = dto.MutationCompleted
	if len(result.Skipped) > 0 {
		result.Status = dto.MutationPartial
	}
	if s.cache != nil {
		s.cache.InvalidateCalendar(context.WithoutCancel(ctx))
	}
	s.metrics.RecordSeriesMutation(result.Operation, string(result.Scope), string(result.Status), len(result.Skipped))
	s.logger.Info("delivery series mutated",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("operation", result.Operation),
		zap.String("scope", string(result.Scope)),
		zap.String("series_id", result.SeriesID),
		zap.Int("created", len(result.Created)),
		zap.Int("deleted", result.Deleted),
		zap.Int("skipped", len(result.Skipped)),
	)
	if result.Status == dto.MutationPartial {
		return result, appErrors.Clone(appErrors.ErrPartialBatch,
			fmt.Sprintf("%d dates were skipped because the client already has a delivery on them", len(result.Skipped)))
	}
	return result, nil
}

// failed reports a rolled back mutation. Nothing was persisted.
func (s *SeriesService) failed(ctx context.Context, result *dto.MutationResult, err error) (*dto.MutationResult, error) {
	mapped := mapWriteError(err)
	result.Status = dto.MutationFailed
	result.Created = []string{}
	result.Skipped = nil
	result.Deleted = 0
	result.Series = nil
	s.metrics.RecordSeriesMutation(result.Operation, string(result.Scope), string(result.Status), 0)
	s.logger.Warn("delivery series mutation rolled back",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("operation", result.Operation),
		zap.String("scope", string(result.Scope)),
		zap.String("series_id", result.SeriesID),
		zap.String("code", mapped.Code),
		zap.Error(err),
	)
	return result, mapped
}

func mapWriteError(err error) *appErrors.Error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "delivery event not found")
	case errors.Is(err, repository.ErrVersionMismatch):
		return appErrors.Wrap(err, appErrors.ErrVersionChanged.Code, appErrors.ErrVersionChanged.Status, appErrors.ErrVersionChanged.Message)
	case database.IsUniqueViolation(err):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "client already has a delivery on that date")
	case database.IsSerializationFailure(err):
		return appErrors.Retryable(appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "concurrent update, retry"))
	case errors.Is(err, context.DeadlineExceeded):
		return appErrors.Retryable(appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, "series write timed out, nothing was saved"))
	case errors.Is(err, context.Canceled):
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "series write cancelled, nothing was saved")
	default:
		return appErrors.Retryable(appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "series write failed, nothing was saved"))
	}
}

func parseKind(raw string) (models.RecurrenceKind, error) {
	kind, ok := models.ParseRecurrenceKind(raw)
	if !ok {
		return "", appErrors.Validation("invalid recurrence", map[string]string{"recurrence": fmt.Sprintf("unknown kind %q", raw)})
	}
	return kind, nil
}

func buildRule(kind models.RecurrenceKind, start time.Time, endRaw string, customRaw []string) (RecurrenceRule, error) {
	rule := RecurrenceRule{StartDate: start, Kind: kind}
	switch {
	case kind.RequiresEndDate():
		end, err := parseOptionalDate("repeatsEndDate", endRaw)
		if err != nil {
			return rule, err
		}
		rule.EndDate = end
	case kind == models.RecurrenceCustom:
		custom, err := parseDateList("customDates", customRaw)
		if err != nil {
			return rule, err
		}
		rule.CustomDates = custom
	}
	return rule, nil
}

// closeSeriesBefore ends a series on the day before cutoff. It never extends a series.
func closeSeriesBefore(series *models.DeliverySeries, cutoff time.Time) {
	cutoff = dates.Normalize(cutoff)
	series.ExcludedDates = datesBefore(series.ExcludedDates, cutoff)
	series.AddedDates = datesBefore(series.AddedDates, cutoff)
	if series.Recurrence == models.RecurrenceCustom {
		series.CustomDates = datesBefore(series.CustomDates, cutoff)
		return
	}
	if series.Recurrence.RequiresEndDate() && (series.RepeatsEndDate == nil || !series.RepeatsEndDate.Before(cutoff)) {
		end := dates.AddDays(cutoff, -1)
		series.RepeatsEndDate = &end
	}
}

// moveOccurrence records that the event on from now falls on to.
func moveOccurrence(series *models.DeliverySeries, from, to time.Time) {
	dropOccurrence(series, from)
	switch key := dates.Format(to); {
	case series.Recurrence == models.RecurrenceCustom:
		series.CustomDates = withDate(series.CustomDates, key)
	case series.Recurrence.RequiresEndDate():
		if hasDate(series.ExcludedDates, key) {
			series.ExcludedDates = withoutDate(series.ExcludedDates, key)
		} else {
			series.AddedDates = withDate(series.AddedDates, key)
		}
	default:
		series.StartDate = dates.Normalize(to)
		series.AnchorDate = series.StartDate
	}
}

// dropOccurrence records that the series no longer has an event on day.
func dropOccurrence(series *models.DeliverySeries, day time.Time) {
	switch key := dates.Format(day); {
	case series.Recurrence == models.RecurrenceCustom:
		series.CustomDates = withoutDate(series.CustomDates, key)
	case series.Recurrence.RequiresEndDate():
		if hasDate(series.AddedDates, key) {
			series.AddedDates = withoutDate(series.AddedDates, key)
		} else {
			series.ExcludedDates = withDate(series.ExcludedDates, key)
		}
	}
}

// seriesAnchor is the date the series pattern is generated from.
func seriesAnchor(series *models.DeliverySeries) time.Time {
	if series.AnchorDate.IsZero() {
		return series.StartDate
	}
	return series.AnchorDate
}

// lineageIDs lists the series ids of a lineage, always including id.
func lineageIDs(lineage []models.DeliverySeries, id string) []string {
	out := []string{id}
	for _, part := range lineage {
		if part.ID != id {
			out = append(out, part.ID)
		}
	}
	return out
}

// remainingCustomDates keeps the custom dates after from and replaces from itself with moved.
func remainingCustomDates(custom pq.StringArray, from, moved time.Time) []string {
	from = dates.Normalize(from)
	out := []string{dates.Format(moved)}
	for _, raw := range custom {
		if d, err := dates.Parse(raw); err == nil && d.After(from) {
			out = append(out, raw)
		}
	}
	return out
}

func storedDates(raw pq.StringArray) []time.Time {
	out := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		if d, err := dates.Parse(r); err == nil {
			out = append(out, d)
		}
	}
	return out
}

func datesBefore(raw pq.StringArray, cutoff time.Time) pq.StringArray {
	kept := pq.StringArray{}
	for _, d := range storedDates(raw) {
		if d.Before(cutoff) {
			kept = append(kept, dates.Format(d))
		}
	}
	return kept
}

func onOrBefore(in []time.Time, end time.Time) []time.Time {
	var out []time.Time
	for _, d := range in {
		if !d.After(end) {
			out = append(out, d)
		}
	}
	return out
}

func mergeDates(kept pq.StringArray, added []time.Time) pq.StringArray {
	return pq.StringArray(formatDates(dates.SortUnique(append(storedDates(kept), added...))))
}

func hasDate(list pq.StringArray, key string) bool {
	for _, v := range list {
		if v == key {
			return true
		}
	}
	return false
}

func withDate(list pq.StringArray, key string) pq.StringArray {
	if hasDate(list, key) {
		return list
	}
	out := append(pq.StringArray{}, list...)
	out = append(out, key)
	sort.Strings(out)
	return out
}

func withoutDate(list pq.StringArray, key string) pq.StringArray {
	out := pq.StringArray{}
	for _, v := range list {
		if v != key {
			out = append(out, v)
		}
	}
	return out
}

func customDateArray(kind models.RecurrenceKind, custom []time.Time) pq.StringArray {
	if kind != models.RecurrenceCustom {
		return nil
	}
	return pq.StringArray(formatDates(dates.SortUnique(custom)))
}

func eventTemplate(from *models.DeliveryEvent, series *models.DeliverySeries, req dto.EditSeriesRequest) models.DeliveryEvent {
	template := models.DeliveryEvent{
		SeriesID:           series.ID,
		ClientID:           series.ClientID,
		ClientName:         from.ClientName,
		AssignedDriverID:   from.AssignedDriverID,
		AssignedDriverName: from.AssignedDriverName,
		Recurrence:         series.Recurrence,
		RepeatsEndDate:     series.RepeatsEndDate,
		Time:               from.Time,
		Cluster:            from.Cluster,
	}
	if req.Time != nil {
		template.Time = *req.Time
	}
	if req.Cluster != nil {
		template.Cluster = *req.Cluster
	}
	if req.AssignedDriverID != nil {
		template.AssignedDriverID = req.AssignedDriverID
		template.AssignedDriverName = req.AssignedDriverName
	}
	return template
}

func eventsFor(template models.DeliveryEvent, days []time.Time) []models.DeliveryEvent {
	out := make([]models.DeliveryEvent, len(days))
	for i, day := range days {
		event := template
		event.DeliveryDate = day
		out[i] = event
	}
	return out
}

// excludeDates splits candidates into dates not yet booked and dates already booked.
func excludeDates(candidates, booked []time.Time) (wanted, skipped []time.Time) {
	taken := make(map[time.Time]struct{}, len(booked))
	for _, d := range booked {
		taken[dates.Normalize(d)] = struct{}{}
	}
	for _, d := range candidates {
		if _, ok := taken[d]; ok {
			skipped = append(skipped, d)
			continue
		}
		wanted = append(wanted, d)
	}
	return wanted, skipped
}

func eventDates(events []models.DeliveryEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = dates.Format(e.DeliveryDate)
	}
	return out
}
