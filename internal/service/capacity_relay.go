package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/pkg/jobs"
)

const (
	capacityPublishJob    = "capacity.publish"
	defaultListenBackoff  = time.Second
	defaultResyncDeadline = 10 * time.Second
)

type capacityChannel interface {
	Enabled() bool
	Publish(ctx context.Context, change models.CapacityChange) error
	Listen(ctx context.Context, fn func(models.CapacityChange)) error
}

type weeklyDefaultsReader interface {
	WeeklyDefaults(ctx context.Context) (models.WeeklyLimits, error)
}

// CapacityRelayConfig configures the relay.
type CapacityRelayConfig struct {
	InstanceID       string
	ResyncSpec       string
	Workers          int
	MaxRetries       int
	RetryDelay       time.Duration
	SubscriberBuffer int
	ListenBackoff    time.Duration
}

// CapacityRelay connects the local hub to other instances. Changes made here are published on the
// shared channel, changes from other instances are replayed into the local hub, and a periodic
// RESYNC lets consumers that missed changes catch up.
type CapacityRelay struct {
	hub      *CapacityHub
	channel  capacityChannel
	defaults weeklyDefaultsReader
	queue    *jobs.Queue
	cron     *cron.Cron
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      CapacityRelayConfig

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	sub     *CapacitySubscription
	wg      sync.WaitGroup
	stopped bool
}

// NewCapacityRelay validates the resync schedule and builds the relay.
func NewCapacityRelay(hub *CapacityHub, channel capacityChannel, defaults weeklyDefaultsReader, metrics *MetricsService, logger *zap.Logger, cfg CapacityRelayConfig) (*CapacityRelay, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ListenBackoff <= 0 {
		cfg.ListenBackoff = defaultListenBackoff
	}
	r := &CapacityRelay{
		hub:      hub,
		channel:  channel,
		defaults: defaults,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(),
	}
	if cfg.ResyncSpec != "" {
		if _, err := r.cron.AddFunc(cfg.ResyncSpec, r.scheduledResync); err != nil {
			return nil, fmt.Errorf("parse resync schedule %q: %w", cfg.ResyncSpec, err)
		}
	}
	r.queue = jobs.NewQueue("capacity-relay", r.publish, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnDeadLetter: func(job jobs.Job, err error) {
			logger.Error("capacity change not relayed", zap.String("job_id", job.ID), zap.Error(err))
		},
	})
	return r, nil
}

// Start subscribes to the hub and runs the relay until Stop or ctx cancellation.
func (r *CapacityRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("capacity relay already started")
	}
	sub, err := r.hub.Subscribe(r.cfg.SubscriberBuffer)
	if err != nil {
		return err
	}
	r.sub = sub
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.queue.Start(r.ctx)

	r.wg.Add(1)
	go r.forward(r.ctx, sub)
	if r.channel.Enabled() {
		r.wg.Add(1)
		go r.listen(r.ctx)
	}
	r.cron.Start()
	r.logger.Info("capacity relay started",
		zap.String("instance_id", r.cfg.InstanceID),
		zap.Bool("shared_channel", r.channel.Enabled()),
		zap.String("resync", r.cfg.ResyncSpec),
	)
	return nil
}

// Stop halts the schedule, the listeners and the publish queue. It is safe to call more than once.
func (r *CapacityRelay) Stop() {
	r.mu.Lock()
	if r.cancel == nil || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	<-r.cron.Stop().Done()
	r.cancel()
	r.sub.Close()
	r.queue.Stop()
	r.wg.Wait()
	r.logger.Info("capacity relay stopped")
}

// Resync publishes the current weekly defaults as a RESYNC change on the local hub.
func (r *CapacityRelay) Resync(ctx context.Context) error {
	weekly, err := r.defaults.WeeklyDefaults(ctx)
	if err != nil {
		return fmt.Errorf("load weekly defaults: %w", err)
	}
	delivered := r.hub.Publish(models.CapacityChange{
		Kind:   models.CapacityChangeResync,
		Weekly: &weekly,
		Origin: r.cfg.InstanceID,
		At:     time.Now().UTC(),
	})
	r.logger.Debug("capacity resync published", zap.Int("subscribers", delivered))
	return nil
}

func (r *CapacityRelay) scheduledResync() {
	r.mu.Lock()
	parent := r.ctx
	r.mu.Unlock()
	if parent == nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, defaultResyncDeadline)
	defer cancel()
	if err := r.Resync(ctx); err != nil {
		r.logger.Warn("capacity resync failed", zap.Error(err))
	}
}

// forward hands locally originated changes to the publish queue.
func (r *CapacityRelay) forward(ctx context.Context, sub *CapacitySubscription) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.C:
			if !ok {
				return
			}
			if sub.Lagged() {
				r.logger.Warn("capacity relay lagged, some local changes were not relayed")
			}
			if !r.channel.Enabled() || change.Origin != r.cfg.InstanceID || change.Kind == models.CapacityChangeResync {
				continue
			}
			job := jobs.Job{ID: uuid.NewString(), Type: capacityPublishJob, Payload: change}
			if err := r.queue.Enqueue(job); err != nil {
				r.metrics.RecordCapacityRelay("out", false)
				r.logger.Warn("capacity change not queued", zap.Error(err))
			}
		}
	}
}

func (r *CapacityRelay) publish(ctx context.Context, job jobs.Job) error {
	change, ok := job.Payload.(models.CapacityChange)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	err := r.channel.Publish(ctx, change)
	r.metrics.RecordCapacityRelay("out", err == nil)
	return err
}

// listen replays remote changes into the hub, resubscribing after failures.
func (r *CapacityRelay) listen(ctx context.Context) {
	defer r.wg.Done()
	for {
		err := r.channel.Listen(ctx, r.receive)
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("capacity channel listener stopped, resubscribing", zap.Error(err), zap.Duration("backoff", r.cfg.ListenBackoff))
		timer := time.NewTimer(r.cfg.ListenBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *CapacityRelay) receive(change models.CapacityChange) {
	if change.Origin == r.cfg.InstanceID {
		return
	}
	r.metrics.RecordCapacityRelay("in", true)
	r.hub.Publish(change)
}
