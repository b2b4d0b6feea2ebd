package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"spotbook/internal/logger"
	"spotbook/internal/metrics"
)

// IntervalUpdater runs fn on a fixed interval until its context is cancelled.
// Runs are not deduplicated: a slow fn delays the next tick, it does not skip it.
type IntervalUpdater struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	metrics  *metrics.Metrics
	log      *logrus.Entry
	trigger  chan struct{}
}

// NewIntervalUpdater creates a poller named for logs and metrics
func NewIntervalUpdater(name string, interval time.Duration, fn func(ctx context.Context) error, m *metrics.Metrics) *IntervalUpdater {
	return &IntervalUpdater{
		name:     name,
		interval: interval,
		fn:       fn,
		metrics:  m,
		log:      logger.WithComponent("poller").WithField("poller", name),
		trigger:  make(chan struct{}, 1),
	}
}

// Run calls fn immediately and then on every tick. It blocks until ctx is done.
func (u *IntervalUpdater) Run(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.run(ctx)
		case <-u.trigger:
			u.run(ctx)
		}
	}
}

// Update requests an immediate run without waiting for the next tick
func (u *IntervalUpdater) Update() {
	select {
	case u.trigger <- struct{}{}:
	default:
	}
}

func (u *IntervalUpdater) run(ctx context.Context) {
	err := u.fn(ctx)
	u.metrics.RecordPoll(u.name, err)
	if err != nil && ctx.Err() == nil {
		u.log.WithError(err).Warn("update failed")
	}
}
