package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/foodforall-dc/delivery-api/internal/dto"
	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

type calendarEventLister interface {
	List(ctx context.Context, filter models.DeliveryEventFilter) ([]models.DeliveryEvent, error)
}

type dayCapacityReader interface {
	DayCapacities(ctx context.Context, from, to time.Time) ([]models.DayCapacity, error)
}

type calendarCache interface {
	CalendarGeneration(ctx context.Context) (int64, error)
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CalendarService assembles the day and month calendar views: the events in range together with
// per-day capacity.
type CalendarService struct {
	events   calendarEventLister
	capacity dayCapacityReader
	cache    calendarCache
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewCalendarService constructs the service. cache may be nil.
func NewCalendarService(events calendarEventLister, capacity dayCapacityReader, cache calendarCache, ttl time.Duration, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{events: events, capacity: capacity, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// View returns the calendar for the requested day or month. The boolean reports a cache hit.
func (s *CalendarService) View(ctx context.Context, q dto.CalendarQuery) (*dto.CalendarView, bool, error) {
	granularity, err := parseGranularity(q.View)
	if err != nil {
		return nil, false, err
	}
	start := dates.Normalize(s.now())
	if strings.TrimSpace(q.Start) != "" {
		if start, err = parseDate("start", q.Start); err != nil {
			return nil, false, err
		}
	}
	from, to := start, start
	if granularity == dto.CalendarMonth {
		from, to = dates.MonthBounds(start)
	}

	// The generation is read before loading so a write landing mid-load retires this key.
	var key string
	if s.cache != nil {
		if gen, err := s.cache.CalendarGeneration(ctx); err != nil {
			s.logger.Debug("calendar cache skipped", zap.Error(err))
		} else {
			key = CalendarKey(gen, string(granularity), dates.Format(from), q.ClientID, q.DriverID)
			var cached dto.CalendarView
			if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
				return &cached, true, nil
			}
		}
	}

	var (
		events []models.DeliveryEvent
		days   []models.DayCapacity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.events.List(gctx, models.DeliveryEventFilter{From: from, To: to, ClientID: q.ClientID, DriverID: q.DriverID})
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliveries")
		}
		events = list
		return nil
	})
	g.Go(func() error {
		var err error
		days, err = s.capacity.DayCapacities(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	if events == nil {
		events = []models.DeliveryEvent{}
	}

	view := &dto.CalendarView{
		Granularity: granularity,
		From:        dates.Format(from),
		To:          dates.Format(to),
		Events:      events,
		Days:        days,
		GeneratedAt: s.now().UTC(),
	}
	if key != "" {
		if err := s.cache.Set(ctx, key, view, s.ttl); err != nil {
			s.logger.Debug("calendar view not cached", zap.String("key", key), zap.Error(err))
		}
	}
	return view, false, nil
}

func parseGranularity(raw string) (dto.CalendarGranularity, error) {
	switch dto.CalendarGranularity(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", dto.CalendarDay:
		return dto.CalendarDay, nil
	case dto.CalendarMonth:
		return dto.CalendarMonth, nil
	default:
		return "", appErrors.Validation("invalid calendar view", map[string]string{"view": "must be DAY or MONTH"})
	}
}
