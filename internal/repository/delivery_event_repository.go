package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
)

const deliveryEventColumns = `id, series_id, client_id, client_name, assigned_driver_id, assigned_driver_name,
delivery_date, recurrence, repeats_end_date, time, cluster, created_at, updated_at`

// DeliveryEventRepository persists dated delivery events.
type DeliveryEventRepository struct {
	db *sqlx.DB
}

// NewDeliveryEventRepository constructs the repository.
func NewDeliveryEventRepository(db *sqlx.DB) *DeliveryEventRepository {
	return &DeliveryEventRepository{db: db}
}

func (r *DeliveryEventRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID fetches one event. sql.ErrNoRows is returned untouched when it does not exist.
func (r *DeliveryEventRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.DeliveryEvent, error) {
	query := `SELECT ` + deliveryEventColumns + ` FROM delivery_events WHERE id = $1`
	var event models.DeliveryEvent
	if err := sqlx.GetContext(ctx, r.exec(exec), &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListBySeries returns every event of a series ordered by date.
func (r *DeliveryEventRepository) ListBySeries(ctx context.Context, exec sqlx.ExtContext, seriesID string) ([]models.DeliveryEvent, error) {
	query := `SELECT ` + deliveryEventColumns + ` FROM delivery_events WHERE series_id = $1 ORDER BY delivery_date ASC`
	var events []models.DeliveryEvent
	if err := sqlx.SelectContext(ctx, r.exec(exec), &events, query, seriesID); err != nil {
		return nil, fmt.Errorf("list delivery events by series: %w", err)
	}
	return events, nil
}

// List returns events whose delivery date falls within the filter range, both ends inclusive.
func (r *DeliveryEventRepository) List(ctx context.Context, filter models.DeliveryEventFilter) ([]models.DeliveryEvent, error) {
	conditions := []string{"delivery_date >= $1", "delivery_date <= $2"}
	args := []interface{}{dates.Normalize(filter.From), dates.Normalize(filter.To)}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.DriverID != "" {
		args = append(args, filter.DriverID)
		conditions = append(conditions, fmt.Sprintf("assigned_driver_id = $%d", len(args)))
	}
	query := `SELECT ` + deliveryEventColumns + ` FROM delivery_events WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY delivery_date ASC, client_name ASC`

	var events []models.DeliveryEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list delivery events: %w", err)
	}
	return events, nil
}

// CountByDate returns the number of events booked on each date of the range, keyed by YYYY-MM-DD.
func (r *DeliveryEventRepository) CountByDate(ctx context.Context, from, to time.Time) (map[string]int, error) {
	const query = `SELECT delivery_date, COUNT(*) AS total FROM delivery_events
WHERE delivery_date >= $1 AND delivery_date <= $2 GROUP BY delivery_date`
	var rows []struct {
		Date  time.Time `db:"delivery_date"`
		Total int       `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, dates.Normalize(from), dates.Normalize(to)); err != nil {
		return nil, fmt.Errorf("count delivery events by date: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[dates.Format(row.Date)] = row.Total
	}
	return counts, nil
}

// ClientDates returns the dates on which the client already has a delivery, optionally ignoring
// one series.
func (r *DeliveryEventRepository) ClientDates(ctx context.Context, exec sqlx.ExtContext, clientID, excludeSeriesID string) ([]time.Time, error) {
	query := `SELECT delivery_date FROM delivery_events WHERE client_id = $1`
	args := []interface{}{clientID}
	if excludeSeriesID != "" {
		query += ` AND series_id <> $2`
		args = append(args, excludeSeriesID)
	}
	query += ` ORDER BY delivery_date ASC`

	var out []time.Time
	if err := sqlx.SelectContext(ctx, r.exec(exec), &out, query, args...); err != nil {
		return nil, fmt.Errorf("list client delivery dates: %w", err)
	}
	return out, nil
}

// InsertBatch inserts events, skipping any whose (client, date) pair is already booked. It returns
// the inserted events and the dates that were skipped.
func (r *DeliveryEventRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, events []models.DeliveryEvent) ([]models.DeliveryEvent, []time.Time, error) {
	if len(events) == 0 {
		return nil, nil, nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `INSERT INTO delivery_events (id, series_id, client_id, client_name, assigned_driver_id,
assigned_driver_name, delivery_date, recurrence, repeats_end_date, time, cluster, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
ON CONFLICT (client_id, delivery_date) DO NOTHING
RETURNING id`

	inserted := make([]models.DeliveryEvent, 0, len(events))
	var skipped []time.Time
	for i := range events {
		event := events[i]
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		event.DeliveryDate = dates.Normalize(event.DeliveryDate)
		event.CreatedAt = now
		event.UpdatedAt = now

		var id string
		err := target.QueryRowxContext(ctx, query,
			event.ID, event.SeriesID, event.ClientID, event.ClientName, event.AssignedDriverID,
			event.AssignedDriverName, event.DeliveryDate, event.Recurrence, event.RepeatsEndDate,
			event.Time, event.Cluster, now,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			skipped = append(skipped, event.DeliveryDate)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("insert delivery event %s: %w", dates.Format(event.DeliveryDate), err)
		}
		inserted = append(inserted, event)
	}
	return inserted, skipped, nil
}

// UpdateDate moves a single event to another date.
func (r *DeliveryEventRepository) UpdateDate(ctx context.Context, exec sqlx.ExtContext, id string, date time.Time) error {
	const query = `UPDATE delivery_events SET delivery_date = $2, updated_at = $3 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, dates.Normalize(date), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update delivery event date: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a single event.
func (r *DeliveryEventRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) (int64, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM delivery_events WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete delivery event: %w", err)
	}
	return res.RowsAffected()
}

// DeleteFollowing removes the target event and every event of the given series dated strictly
// after it.
func (r *DeliveryEventRepository) DeleteFollowing(ctx context.Context, exec sqlx.ExtContext, seriesIDs []string, eventID string, after time.Time) (int64, error) {
	const query = `DELETE FROM delivery_events WHERE series_id = ANY($1) AND (id = $2 OR delivery_date > $3)`
	res, err := r.exec(exec).ExecContext(ctx, query, pq.StringArray(seriesIDs), eventID, dates.Normalize(after))
	if err != nil {
		return 0, fmt.Errorf("delete following delivery events: %w", err)
	}
	return res.RowsAffected()
}

// DeleteFrom removes every event of the given series dated on or after from.
func (r *DeliveryEventRepository) DeleteFrom(ctx context.Context, exec sqlx.ExtContext, seriesIDs []string, from time.Time) (int64, error) {
	const query = `DELETE FROM delivery_events WHERE series_id = ANY($1) AND delivery_date >= $2`
	res, err := r.exec(exec).ExecContext(ctx, query, pq.StringArray(seriesIDs), dates.Normalize(from))
	if err != nil {
		return 0, fmt.Errorf("delete delivery events from date: %w", err)
	}
	return res.RowsAffected()
}

// DeleteBySeries removes every event of the given series.
func (r *DeliveryEventRepository) DeleteBySeries(ctx context.Context, exec sqlx.ExtContext, seriesIDs []string) (int64, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM delivery_events WHERE series_id = ANY($1)`, pq.StringArray(seriesIDs))
	if err != nil {
		return 0, fmt.Errorf("delete delivery events by series: %w", err)
	}
	return res.RowsAffected()
}

// CountBySeries returns how many events reference the series.
func (r *DeliveryEventRepository) CountBySeries(ctx context.Context, exec sqlx.ExtContext, seriesID string) (int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.exec(exec), &total, `SELECT COUNT(*) FROM delivery_events WHERE series_id = $1`, seriesID); err != nil {
		return 0, fmt.Errorf("count delivery events by series: %w", err)
	}
	return total, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
