// Package store holds the backend stores: the Mongo primary, the flat-file
// fallback, and the selector that routes between them.
package store

import (
	"context"
	"errors"

	"github.com/mtorres-dev/apptsync/internal/model"
)

var ErrNotFound = errors.New("store: not found")

// Store is the CRUD surface shared by the primary and the fallback so the
// selector can swap one for the other without callers noticing.
type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context) ([]model.Appointment, error)
	// PutAppointment upserts by id.
	PutAppointment(ctx context.Context, appt model.Appointment) error
	DeleteAppointment(ctx context.Context, id string) error

	GetCustomer(ctx context.Context, id string) (model.Customer, error)
	GetService(ctx context.Context, id string) (model.Service, error)

	SaveSettings(ctx context.Context, s model.BusinessSettings) error
	LoadSettings(ctx context.Context) (model.BusinessSettings, error)
}
