package service

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/foodforall-dc/delivery-api/internal/models"
)

const defaultSubscriberBuffer = 16

// ErrHubClosed is returned when subscribing to a closed hub.
var ErrHubClosed = errors.New("capacity hub closed")

// CapacitySubscription receives capacity changes until it is closed.
type CapacitySubscription struct {
	// C delivers changes in publish order. It is closed when the subscription or the hub closes.
	C <-chan models.CapacityChange

	ch     chan models.CapacityChange
	id     uint64
	hub    *CapacityHub
	lagged atomic.Bool
	once   sync.Once
}

// Lagged reports whether changes were dropped since the previous call. A lagged consumer should
// re-read capacity instead of relying on the changes it saw.
func (s *CapacitySubscription) Lagged() bool {
	return s.lagged.Swap(false)
}

// Close unsubscribes. It is safe to call more than once.
func (s *CapacitySubscription) Close() {
	s.once.Do(func() { s.hub.remove(s.id) })
}

// CapacityHub fans capacity changes out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the change and is flagged as lagged.
type CapacityHub struct {
	mu      sync.RWMutex
	subs    map[uint64]*CapacitySubscription
	nextID  uint64
	closed  bool
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCapacityHub constructs an empty hub.
func NewCapacityHub(metrics *MetricsService, logger *zap.Logger) *CapacityHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityHub{subs: make(map[uint64]*CapacitySubscription), metrics: metrics, logger: logger}
}

// Subscribe registers a subscriber with the given buffer size.
func (h *CapacityHub) Subscribe(buffer int) (*CapacitySubscription, error) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	h.nextID++
	ch := make(chan models.CapacityChange, buffer)
	sub := &CapacitySubscription{C: ch, ch: ch, id: h.nextID, hub: h}
	h.subs[sub.id] = sub
	h.metrics.SetCapacitySubscribers(len(h.subs))
	return sub, nil
}

// Publish delivers change to every subscriber and returns how many received it.
func (h *CapacityHub) Publish(change models.CapacityChange) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}
	delivered := 0
	for _, sub := range h.subs {
		select {
		case sub.ch <- change:
			delivered++
		default:
			sub.lagged.Store(true)
			h.metrics.RecordCapacityDrop()
			h.logger.Warn("capacity subscriber lagging, change dropped", zap.Uint64("subscriber", sub.id), zap.String("kind", string(change.Kind)))
		}
	}
	return delivered
}

// Subscribers returns the number of open subscriptions.
func (h *CapacityHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription. Further publishes are ignored.
func (h *CapacityHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	h.metrics.SetCapacitySubscribers(0)
}

func (h *CapacityHub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	close(sub.ch)
	delete(h.subs, id)
	h.metrics.SetCapacitySubscribers(len(h.subs))
}
