package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mtorres-dev/apptsync/internal/model"
)

// Probe reports whether the primary store is reachable right now. It is
// injected rather than read from shared state so callers and tests control
// connectivity explicitly.
type Probe func(ctx context.Context) error

// Selector exposes the Store surface and routes every call to the primary
// when it is live, or to the fallback otherwise. Connectivity is a cached
// probe result refreshed lazily after a TTL, not a round trip per call.
// An operation that fails against a live primary is retried once against the
// fallback before the error surfaces.
type Selector struct {
	primary  Store
	fallback Store
	probe    Probe
	logger   *slog.Logger

	mu        sync.Mutex
	connected bool
	lastProbe time.Time
	probeTTL  time.Duration
}

func NewSelector(primary, fallback Store, probe Probe, logger *slog.Logger) *Selector {
	return &Selector{
		primary:  primary,
		fallback: fallback,
		probe:    probe,
		logger:   logger,
		probeTTL: 5 * time.Second,
	}
}

// Connected returns the cached connectivity state, refreshing it when stale.
func (s *Selector) Connected(ctx context.Context) bool {
	s.mu.Lock()
	stale := time.Since(s.lastProbe) >= s.probeTTL
	connected := s.connected
	s.mu.Unlock()
	if !stale {
		return connected
	}
	return s.Recheck(ctx)
}

// Recheck forces a probe regardless of the TTL.
func (s *Selector) Recheck(ctx context.Context) bool {
	err := s.probe(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	wasConnected := s.connected
	s.connected = err == nil
	s.lastProbe = time.Now()
	if wasConnected != s.connected {
		if s.connected {
			s.logger.Info("primary store connection restored")
		} else {
			s.logger.Warn("primary store unreachable, serving from fallback", "err", err)
		}
	}
	return s.connected
}

func (s *Selector) markDown() {
	s.mu.Lock()
	s.connected = false
	s.lastProbe = time.Now()
	s.mu.Unlock()
}

// do runs op against the live store. ErrNotFound is a result, not a
// connectivity failure, and is never retried.
func (s *Selector) do(ctx context.Context, op func(Store) error) error {
	if s.Connected(ctx) {
		err := op(s.primary)
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		s.logger.Warn("primary store operation failed, retrying on fallback", "err", err)
		s.markDown()
	}
	return op(s.fallback)
}

func (s *Selector) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	var out model.Appointment
	err := s.do(ctx, func(st Store) error {
		var err error
		out, err = st.GetAppointment(ctx, id)
		return err
	})
	return out, err
}

func (s *Selector) ListAppointments(ctx context.Context) ([]model.Appointment, error) {
	var out []model.Appointment
	err := s.do(ctx, func(st Store) error {
		var err error
		out, err = st.ListAppointments(ctx)
		return err
	})
	return out, err
}

func (s *Selector) PutAppointment(ctx context.Context, appt model.Appointment) error {
	return s.do(ctx, func(st Store) error {
		return st.PutAppointment(ctx, appt)
	})
}

func (s *Selector) DeleteAppointment(ctx context.Context, id string) error {
	return s.do(ctx, func(st Store) error {
		return st.DeleteAppointment(ctx, id)
	})
}

func (s *Selector) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	var out model.Customer
	err := s.do(ctx, func(st Store) error {
		var err error
		out, err = st.GetCustomer(ctx, id)
		return err
	})
	return out, err
}

func (s *Selector) GetService(ctx context.Context, id string) (model.Service, error) {
	var out model.Service
	err := s.do(ctx, func(st Store) error {
		var err error
		out, err = st.GetService(ctx, id)
		return err
	})
	return out, err
}

func (s *Selector) SaveSettings(ctx context.Context, settings model.BusinessSettings) error {
	return s.do(ctx, func(st Store) error {
		return st.SaveSettings(ctx, settings)
	})
}

func (s *Selector) LoadSettings(ctx context.Context) (model.BusinessSettings, error) {
	var out model.BusinessSettings
	err := s.do(ctx, func(st Store) error {
		var err error
		out, err = st.LoadSettings(ctx)
		return err
	})
	return out, err
}

var _ Store = (*Selector)(nil)
