// Package sync converges the local cache, the fallback file and the primary
// store. Conflicts are resolved by updatedAt, last writer wins; there is no
// merge-by-field and no lock, only opportunistic convergence.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mtorres-dev/apptsync/internal/cache"
	"github.com/mtorres-dev/apptsync/internal/events"
	"github.com/mtorres-dev/apptsync/internal/model"
	"github.com/mtorres-dev/apptsync/internal/store"
)

var ErrPrimaryUnavailable = errors.New("sync: primary store unavailable")

type Reconciler struct {
	cache    cache.AppointmentCache
	primary  store.Store
	fallback store.Store
	selector *store.Selector
	status   *StatusStore
	events   *events.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

func NewReconciler(c cache.AppointmentCache, primary, fallback store.Store, sel *store.Selector, status *StatusStore, pub *events.Publisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		cache:    c,
		primary:  primary,
		fallback: fallback,
		selector: sel,
		status:   status,
		events:   pub,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile pushes pending local state to the primary, then pulls the
// primary's authoritative set back down. It is idempotent and must not be
// invoked concurrently with itself; the Runner serializes invocations.
func (r *Reconciler) Reconcile(ctx context.Context) (Stats, error) {
	return r.reconcile(ctx, "")
}

func (r *Reconciler) reconcile(ctx context.Context, jobID string) (Stats, error) {
	started := r.now()
	var stats Stats

	if !r.selector.Recheck(ctx) {
		r.writeStatus(ctx, jobID, started, false, false, stats)
		return stats, ErrPrimaryUnavailable
	}

	// Auto-completion sweep before queueing, so status flips ride this run.
	if _, err := r.cache.GetAll(ctx); err != nil {
		r.logger.Warn("cache sweep failed", "err", err)
	}

	queue, err := r.buildQueue(ctx)
	if err != nil {
		r.writeStatus(ctx, jobID, started, false, false, stats)
		return stats, err
	}

	for _, rec := range queue {
		if err := r.pushOne(ctx, rec, &stats); err != nil {
			if !r.selector.Recheck(ctx) {
				// Total connection loss aborts the run; pending flags stay
				// put and the next pass retries everything.
				r.writeStatus(ctx, jobID, started, false, false, stats)
				return stats, ErrPrimaryUnavailable
			}
			stats.Errors++
			r.logger.Warn("record sync failed", "id", rec.ID, "err", err)
		}
	}

	authoritative, err := r.primary.ListAppointments(ctx)
	if err != nil {
		r.writeStatus(ctx, jobID, started, false, false, stats)
		return stats, err
	}
	if err := r.cache.ReplaceAll(ctx, authoritative); err != nil {
		r.writeStatus(ctx, jobID, started, false, true, stats)
		return stats, err
	}

	// Settings travel one way, local config wins.
	if settings, err := r.cache.Settings(ctx); err == nil {
		if err := r.primary.SaveSettings(ctx, settings); err != nil {
			r.logger.Warn("settings push failed", "err", err)
		}
	}

	r.writeStatus(ctx, jobID, started, true, true, stats)
	r.logger.Info("reconcile finished",
		"created", stats.Created, "updated", stats.Updated, "errors", stats.Errors)
	return stats, nil
}

// buildQueue gathers the backend-originated queue (fallback file) and the
// client-originated queue (cache pending flags). A fallback copy of a record
// the cache holds pending is skipped: the pending copy supersedes it, and for
// tombstones the stale insert must not race the delete.
func (r *Reconciler) buildQueue(ctx context.Context) ([]model.Appointment, error) {
	pending, err := r.cache.Pending(ctx)
	if err != nil {
		return nil, err
	}
	pendingIDs := make(map[string]bool, len(pending))
	for _, p := range pending {
		pendingIDs[p.ID] = true
	}

	queued, err := r.fallback.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}
	queue := make([]model.Appointment, 0, len(queued)+len(pending))
	for _, q := range queued {
		if !pendingIDs[q.ID] {
			queue = append(queue, q)
		}
	}
	return append(queue, pending...), nil
}

func (r *Reconciler) pushOne(ctx context.Context, rec model.Appointment, stats *Stats) error {
	if rec.PendingDelete {
		err := r.primary.DeleteAppointment(ctx, rec.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		// Not-found means already satisfied. Drop the fallback copy too, or
		// the next pass would resurrect the record from the file queue.
		if err := r.fallback.DeleteAppointment(ctx, rec.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return r.cache.Delete(ctx, rec.ID)
	}

	existing, err := r.primary.GetAppointment(ctx, rec.ID)
	if errors.Is(err, store.ErrNotFound) {
		if err := r.primary.PutAppointment(ctx, rec); err != nil {
			return err
		}
		stats.Created++
		return r.cache.PutSynced(ctx, rec)
	}
	if err != nil {
		return err
	}

	// Last writer wins on updatedAt. Ties keep the primary's copy.
	if rec.UpdatedAt.After(existing.UpdatedAt) {
		if err := r.primary.PutAppointment(ctx, rec); err != nil {
			return err
		}
		stats.Updated++
		return r.cache.PutSynced(ctx, rec)
	}
	// The local edit lost; settle the cache on the primary's copy so the
	// record is no longer pending.
	return r.cache.PutSynced(ctx, existing)
}

func (r *Reconciler) writeStatus(ctx context.Context, jobID string, started time.Time, success, performed bool, stats Stats) {
	status := Status{
		JobID:            jobID,
		StartTime:        started,
		EndTime:          r.now(),
		Success:          success,
		MongoDBConnected: r.selector.Connected(ctx),
		SyncPerformed:    performed,
		Stats:            stats,
	}
	if err := r.status.Write(status); err != nil {
		r.logger.Error("status snapshot write failed", "err", err)
	}
	r.events.Publish(ctx, events.TypeSyncCompleted, jobID, status)
}
