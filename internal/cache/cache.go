// Package cache is the node-local durable appointment store. It is the local
// source of truth: booking writes land here first, tagged with pending flags,
// and the reconciler drains those flags toward the backend stores.
package cache

import (
	"context"
	"errors"

	"github.com/mtorres-dev/apptsync/internal/model"
)

var ErrNotFound = errors.New("cache: appointment not found")

type AppointmentCache interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	GetAll(ctx context.Context) ([]model.Appointment, error)
	GetByDateRange(ctx context.Context, start, end string) ([]model.Appointment, error)

	// Put stores a local-origin change wholesale and marks it PendingSync.
	Put(ctx context.Context, appt model.Appointment) error
	// PutSynced stores a backend-confirmed record with both flags cleared.
	PutSynced(ctx context.Context, appt model.Appointment) error
	// MarkDeleted keeps a tombstone with PendingDelete set until the
	// reconciler confirms the delete against the backend.
	MarkDeleted(ctx context.Context, id string) error
	// Delete removes the record outright.
	Delete(ctx context.Context, id string) error

	// Pending returns every record carrying PendingSync or PendingDelete.
	Pending(ctx context.Context) ([]model.Appointment, error)
	// ReplaceAll overwrites the cache with the backend's authoritative set.
	// Local records still carrying pending flags are left untouched, whether
	// or not the backend knows them, so the next reconcile pass can retry
	// them.
	ReplaceAll(ctx context.Context, synced []model.Appointment) error

	Settings(ctx context.Context) (model.BusinessSettings, error)
	PutSettings(ctx context.Context, s model.BusinessSettings) error
}
