package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/foodforall-dc/delivery-api/internal/models"
)

// ErrVersionMismatch is returned when a series was modified after the caller read it.
var ErrVersionMismatch = errors.New("delivery series version mismatch")

const seriesColumns = `id, root_id, client_id, client_name, recurrence, start_date, anchor_date,
repeats_end_date, custom_dates, excluded_dates, added_dates, version, created_at, updated_at`

// SeriesRepository persists delivery series.
type SeriesRepository struct {
	db *sqlx.DB
}

// NewSeriesRepository constructs the repository.
func NewSeriesRepository(db *sqlx.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

func (r *SeriesRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID fetches a series. sql.ErrNoRows is returned untouched when it does not exist.
func (r *SeriesRepository) FindByID(ctx context.Context, id string) (*models.DeliverySeries, error) {
	query := `SELECT ` + seriesColumns + ` FROM delivery_series WHERE id = $1`
	var series models.DeliverySeries
	if err := r.db.GetContext(ctx, &series, query, id); err != nil {
		return nil, err
	}
	return &series, nil
}

// Lock reads a series inside a transaction and holds its row lock until commit.
func (r *SeriesRepository) Lock(ctx context.Context, exec sqlx.ExtContext, id string) (*models.DeliverySeries, error) {
	query := `SELECT ` + seriesColumns + ` FROM delivery_series WHERE id = $1 FOR UPDATE`
	var series models.DeliverySeries
	if err := sqlx.GetContext(ctx, r.exec(exec), &series, query, id); err != nil {
		return nil, err
	}
	return &series, nil
}

// LockLineage locks every series sharing rootID, oldest first.
func (r *SeriesRepository) LockLineage(ctx context.Context, exec sqlx.ExtContext, rootID string) ([]models.DeliverySeries, error) {
	query := `SELECT ` + seriesColumns + ` FROM delivery_series WHERE root_id = $1
ORDER BY start_date ASC, created_at ASC FOR UPDATE`
	var lineage []models.DeliverySeries
	if err := sqlx.SelectContext(ctx, r.exec(exec), &lineage, query, rootID); err != nil {
		return nil, fmt.Errorf("lock delivery series lineage: %w", err)
	}
	return lineage, nil
}

// Create inserts a new series at version 1. A series without a root starts its own lineage.
func (r *SeriesRepository) Create(ctx context.Context, exec sqlx.ExtContext, series *models.DeliverySeries) error {
	if series.ID == "" {
		series.ID = uuid.NewString()
	}
	if series.RootID == "" {
		series.RootID = series.ID
	}
	if series.AnchorDate.IsZero() {
		series.AnchorDate = series.StartDate
	}
	ensureExceptionLists(series)
	now := time.Now().UTC()
	series.Version = 1
	series.CreatedAt = now
	series.UpdatedAt = now

	const query = `INSERT INTO delivery_series (id, root_id, client_id, client_name, recurrence, start_date,
anchor_date, repeats_end_date, custom_dates, excluded_dates, added_dates, version, created_at, updated_at)
VALUES (:id, :root_id, :client_id, :client_name, :recurrence, :start_date, :anchor_date, :repeats_end_date,
:custom_dates, :excluded_dates, :added_dates, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, series); err != nil {
		return fmt.Errorf("create delivery series: %w", err)
	}
	return nil
}

// Update rewrites the recurrence parameters of a series and bumps its version. A positive
// expectedVersion must match the stored version or ErrVersionMismatch is returned.
func (r *SeriesRepository) Update(ctx context.Context, exec sqlx.ExtContext, series *models.DeliverySeries, expectedVersion int) error {
	const query = `UPDATE delivery_series
SET client_name = $2, recurrence = $3, start_date = $4, anchor_date = $5, repeats_end_date = $6,
    custom_dates = $7, excluded_dates = $8, added_dates = $9, root_id = $10, version = version + 1, updated_at = $11
WHERE id = $1 AND ($12 = 0 OR version = $12)
RETURNING version, updated_at`
	if series.RootID == "" {
		series.RootID = series.ID
	}
	if series.AnchorDate.IsZero() {
		series.AnchorDate = series.StartDate
	}
	ensureExceptionLists(series)
	now := time.Now().UTC()
	row := r.exec(exec).QueryRowxContext(ctx, query,
		series.ID, series.ClientName, series.Recurrence, series.StartDate, series.AnchorDate, series.RepeatsEndDate,
		series.CustomDates, series.ExcludedDates, series.AddedDates, series.RootID, now, expectedVersion,
	)
	if err := row.Scan(&series.Version, &series.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVersionMismatch
		}
		return fmt.Errorf("update delivery series: %w", err)
	}
	return nil
}

// Delete removes a series. Its events are removed by the foreign key cascade.
func (r *SeriesRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM delivery_series WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete delivery series: %w", err)
	}
	return nil
}

// ensureExceptionLists replaces nil exception lists with empty ones for the NOT NULL columns.
func ensureExceptionLists(series *models.DeliverySeries) {
	if series.ExcludedDates == nil {
		series.ExcludedDates = pq.StringArray{}
	}
	if series.AddedDates == nil {
		series.AddedDates = pq.StringArray{}
	}
}
