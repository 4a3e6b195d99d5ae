package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
)

// Runner drives the reconciler: once at startup when the primary is
// reachable, on a fixed interval, and on manual triggers. It holds a
// run-one-at-a-time gate; the reconciler itself is not reentrant.
type Runner struct {
	rec      *Reconciler
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu         stdsync.Mutex
	running    bool
	currentJob string
}

func NewRunner(rec *Reconciler, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Runner{
		rec:      rec,
		logger:   logger,
		interval: interval,
		timeout:  5 * time.Minute,
	}
}

func (r *Runner) Run(ctx context.Context) {
	if r.rec.selector.Connected(ctx) {
		r.kick()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.rec.selector.Connected(ctx) {
				continue
			}
			r.kick()
		}
	}
}

// Trigger starts a reconcile in the background and returns a job ticket
// immediately; completion is observable only through the status surface.
// While a run is in flight, the in-flight ticket is returned instead.
func (r *Runner) Trigger() (jobID string, started bool) {
	return r.start()
}

func (r *Runner) kick() {
	if id, started := r.start(); started {
		r.logger.Info("scheduled reconcile started", "job_id", id)
	}
}

func (r *Runner) start() (string, bool) {
	r.mu.Lock()
	if r.running {
		id := r.currentJob
		r.mu.Unlock()
		return id, false
	}
	id := uuid.NewString()
	r.running = true
	r.currentJob = id
	r.mu.Unlock()

	go func() {
		// Detached from the trigger's request context; sync operations are
		// not cancelable mid-flight, a failed step is retried next pass.
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.rec.reconcile(ctx, id); err != nil {
			r.logger.Warn("reconcile run failed", "job_id", id, "err", err)
		}
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()
	return id, true
}
