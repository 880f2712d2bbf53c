package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
)

const weeklyLimitsID = "weekly"

// CapacityRepository persists daily limit overrides and the weekday default table.
type CapacityRepository struct {
	db *sqlx.DB
}

// NewCapacityRepository constructs the repository.
func NewCapacityRepository(db *sqlx.DB) *CapacityRepository {
	return &CapacityRepository{db: db}
}

func (r *CapacityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetDailyLimit fetches the override for a date. sql.ErrNoRows means no override exists.
func (r *CapacityRepository) GetDailyLimit(ctx context.Context, date time.Time) (*models.DailyLimit, error) {
	const query = `SELECT date, "limit", updated_at FROM daily_limits WHERE date = $1`
	var limit models.DailyLimit
	if err := r.db.GetContext(ctx, &limit, query, dates.Normalize(date)); err != nil {
		return nil, err
	}
	return &limit, nil
}

// ListDailyLimits returns the overrides within the range, both ends inclusive.
func (r *CapacityRepository) ListDailyLimits(ctx context.Context, from, to time.Time) ([]models.DailyLimit, error) {
	const query = `SELECT date, "limit", updated_at FROM daily_limits WHERE date >= $1 AND date <= $2 ORDER BY date ASC`
	var limits []models.DailyLimit
	if err := r.db.SelectContext(ctx, &limits, query, dates.Normalize(from), dates.Normalize(to)); err != nil {
		return nil, fmt.Errorf("list daily limits: %w", err)
	}
	return limits, nil
}

const upsertDailyLimitQuery = `INSERT INTO daily_limits (date, "limit", updated_at)
VALUES (:date, :limit, :updated_at)
ON CONFLICT (date)
DO UPDATE SET "limit" = EXCLUDED."limit", updated_at = EXCLUDED.updated_at`

// UpsertDailyLimit inserts or replaces the override of one date.
func (r *CapacityRepository) UpsertDailyLimit(ctx context.Context, exec sqlx.ExtContext, limit *models.DailyLimit) error {
	limit.Date = dates.Normalize(limit.Date)
	limit.UpdatedAt = time.Now().UTC()
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), upsertDailyLimitQuery, limit); err != nil {
		return fmt.Errorf("upsert daily limit: %w", err)
	}
	return nil
}

// BulkUpsertDailyLimits applies one limit to every date within a transaction.
func (r *CapacityRepository) BulkUpsertDailyLimits(ctx context.Context, days []time.Time, limit int) error {
	if len(days) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk daily limit tx: %w", err)
	}
	now := time.Now().UTC()
	for _, day := range days {
		row := models.DailyLimit{Date: dates.Normalize(day), Limit: limit, UpdatedAt: now}
		if _, err := tx.NamedExecContext(ctx, upsertDailyLimitQuery, row); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bulk upsert daily limit %s: %w", dates.Format(day), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk daily limit tx: %w", err)
	}
	return nil
}

// GetWeeklyLimits fetches the weekday default table. sql.ErrNoRows means it was never written.
func (r *CapacityRepository) GetWeeklyLimits(ctx context.Context) (*models.WeeklyLimits, error) {
	const query = `SELECT sunday, monday, tuesday, wednesday, thursday, friday, saturday, updated_at
FROM weekly_limits WHERE id = $1`
	var weekly models.WeeklyLimits
	if err := r.db.GetContext(ctx, &weekly, query, weeklyLimitsID); err != nil {
		return nil, err
	}
	return &weekly, nil
}

// UpsertWeekday writes one weekday slot. When the table does not exist yet it is created from
// seed with the slot applied.
func (r *CapacityRepository) UpsertWeekday(ctx context.Context, exec sqlx.ExtContext, day time.Weekday, limit int, seed models.WeeklyLimits) error {
	column := dates.WeekdayName(day)
	row := seed.With(day, limit)
	query := fmt.Sprintf(`INSERT INTO weekly_limits (id, sunday, monday, tuesday, wednesday, thursday, friday, saturday, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id)
DO UPDATE SET %[1]s = EXCLUDED.%[1]s, updated_at = EXCLUDED.updated_at`, column)
	_, err := r.exec(exec).ExecContext(ctx, query, weeklyLimitsID,
		row.Sunday, row.Monday, row.Tuesday, row.Wednesday, row.Thursday, row.Friday, row.Saturday,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert weekly limit %s: %w", column, err)
	}
	return nil
}
