package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-admin/internal/observability"
	"github.com/spec-kit/crm-admin/internal/repository"
)

// DefaultReclaimTimeout bounds a single reclamation run.
const DefaultReclaimTimeout = 5 * time.Minute

// Reclaimer periodically deletes expired refresh tokens. A failed run is
// logged and counted; the next scheduled run tries again.
type Reclaimer struct {
	store    repository.RefreshTokenRepository
	schedule string
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	timeout  time.Duration

	runMu sync.Mutex
	mu    sync.Mutex
	cron  *cron.Cron
}

// ReclaimerOption customizes a Reclaimer.
type ReclaimerOption func(*Reclaimer)

// WithClock overrides the time source used to decide expiry.
func WithClock(now func() time.Time) ReclaimerOption {
	return func(r *Reclaimer) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRunTimeout bounds each run.
func WithRunTimeout(d time.Duration) ReclaimerOption {
	return func(r *Reclaimer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewReclaimer builds a reclaimer for the given cron schedule
// (standard five-field spec or descriptors such as "@daily").
func NewReclaimer(store repository.RefreshTokenRepository, schedule string, logger *zap.Logger, metrics *observability.Metrics, opts ...ReclaimerOption) *Reclaimer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reclaimer{
		store:    store,
		schedule: schedule,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		timeout:  DefaultReclaimTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start schedules the job. Runs never overlap: a tick that fires while the
// previous run is still going is skipped.
func (r *Reclaimer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("reclaimer already started")
	}

	cronLogger := cronZapLogger{r.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(r.schedule, func() {
		_, _ = r.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule reclamation %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("refresh token reclamation scheduled", zap.String("schedule", r.schedule))
	return nil
}

// Stop unschedules the job and waits for a running pass to finish or ctx to
// end.
func (r *Reclaimer) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one reclamation pass and returns the number of deleted
// tokens. Errors are logged before being returned.
func (r *Reclaimer) RunOnce(ctx context.Context) (int64, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	deleted, err := r.store.DeleteExpired(runCtx, r.now())
	r.metrics.RecordReclaim(deleted, err)
	if err != nil {
		r.logger.Error("refresh token reclamation failed",
			zap.Int64("deleted", deleted),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return deleted, err
	}
	r.logger.Info("expired refresh tokens reclaimed",
		zap.Int64("deleted", deleted),
		zap.Duration("elapsed", time.Since(start)))
	return deleted, nil
}

// cronZapLogger adapts zap to cron.Logger.
type cronZapLogger struct {
	s *zap.SugaredLogger
}

func (l cronZapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronZapLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
