package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/mtorres-dev/apptsync/internal/cache"
	"github.com/mtorres-dev/apptsync/internal/events"
	"github.com/mtorres-dev/apptsync/internal/model"
	"github.com/mtorres-dev/apptsync/internal/store"
)

// 2026-01-05 is a Monday; default hours are 09:00-17:00.
var testNow = time.Date(2026, 1, 3, 8, 0, 0, 0, time.UTC)

type fakeBackend struct {
	appts    map[string]model.Appointment
	services map[string]model.Service
	err      error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		appts: map[string]model.Appointment{},
		services: map[string]model.Service{
			"svc-30": {ID: "svc-30", Name: "Consultation", DurationMinutes: 30},
		},
	}
}

func (s *fakeBackend) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if s.err != nil {
		return model.Appointment{}, s.err
	}
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *fakeBackend) ListAppointments(ctx context.Context) ([]model.Appointment, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeBackend) PutAppointment(ctx context.Context, appt model.Appointment) error {
	if s.err != nil {
		return s.err
	}
	s.appts[appt.ID] = appt.WithoutSyncFlags()
	return nil
}

func (s *fakeBackend) DeleteAppointment(ctx context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.appts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.appts, id)
	return nil
}

func (s *fakeBackend) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	return model.Customer{}, store.ErrNotFound
}

func (s *fakeBackend) GetService(ctx context.Context, id string) (model.Service, error) {
	if s.err != nil {
		return model.Service{}, s.err
	}
	svc, ok := s.services[id]
	if !ok {
		return model.Service{}, store.ErrNotFound
	}
	return svc, nil
}

func (s *fakeBackend) SaveSettings(ctx context.Context, settings model.BusinessSettings) error {
	return s.err
}

func (s *fakeBackend) LoadSettings(ctx context.Context) (model.BusinessSettings, error) {
	return model.BusinessSettings{}, store.ErrNotFound
}

var _ store.Store = (*fakeBackend)(nil)

type fakeCache struct {
	appts    map[string]model.Appointment
	settings *model.BusinessSettings
}

func newFakeCache() *fakeCache {
	return &fakeCache{appts: map[string]model.Appointment{}}
}

func (c *fakeCache) Get(ctx context.Context, id string) (model.Appointment, error) {
	a, ok := c.appts[id]
	if !ok {
		return model.Appointment{}, cache.ErrNotFound
	}
	return a, nil
}

func (c *fakeCache) GetAll(ctx context.Context) ([]model.Appointment, error) {
	out := make([]model.Appointment, 0, len(c.appts))
	for _, a := range c.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *fakeCache) GetByDateRange(ctx context.Context, start, end string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range c.appts {
		if a.Date >= start && a.Date <= end {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *fakeCache) Put(ctx context.Context, appt model.Appointment) error {
	appt.PendingSync = true
	appt.PendingDelete = false
	c.appts[appt.ID] = appt
	return nil
}

func (c *fakeCache) PutSynced(ctx context.Context, appt model.Appointment) error {
	appt.PendingSync = false
	appt.PendingDelete = false
	c.appts[appt.ID] = appt
	return nil
}

func (c *fakeCache) MarkDeleted(ctx context.Context, id string) error {
	a, ok := c.appts[id]
	if !ok {
		return cache.ErrNotFound
	}
	a.PendingDelete = true
	c.appts[id] = a
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, id string) error {
	delete(c.appts, id)
	return nil
}

func (c *fakeCache) Pending(ctx context.Context) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range c.appts {
		if a.PendingSync || a.PendingDelete {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *fakeCache) ReplaceAll(ctx context.Context, synced []model.Appointment) error {
	return nil
}

func (c *fakeCache) Settings(ctx context.Context) (model.BusinessSettings, error) {
	if c.settings == nil {
		return model.DefaultSettings(), nil
	}
	return *c.settings, nil
}

func (c *fakeCache) PutSettings(ctx context.Context, s model.BusinessSettings) error {
	c.settings = &s
	return nil
}

var _ cache.AppointmentCache = (*fakeCache)(nil)

func newTestHandler() (*AppointmentHandler, *fakeCache, *fakeBackend) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newFakeCache()
	backend := newFakeBackend()
	h := NewAppointmentHandler(c, backend, events.NewPublisher("", logger), logger)
	h.now = func() time.Time { return testNow }
	return h, c, backend
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCreate_BooksAppointment(t *testing.T) {
	h, c, backend := newTestHandler()

	rec := postJSON(t, h.Create, map[string]string{
		"customer_id": "c1",
		"service_id":  "svc-30",
		"date":        "2026-01-05",
		"time":        "09:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AppointmentID string `json:"appointment_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AppointmentID == "" {
		t.Fatal("expected an appointment id")
	}

	cached, ok := c.appts[resp.AppointmentID]
	if !ok {
		t.Fatal("record should be in the cache")
	}
	if cached.DurationMinutes != 30 {
		t.Fatalf("expected duration from the service, got %d", cached.DurationMinutes)
	}
	if cached.Status != model.StatusPending {
		t.Fatalf("expected pending status, got %s", cached.Status)
	}
	if cached.PendingSync {
		t.Fatal("successful push should clear the pending flag")
	}
	if _, ok := backend.appts[resp.AppointmentID]; !ok {
		t.Fatal("record should reach the backend")
	}
}

func TestCreate_OfflineStaysPending(t *testing.T) {
	h, c, backend := newTestHandler()
	backend.err = errors.New("connection refused")

	rec := postJSON(t, h.Create, map[string]any{
		"customer_id":      "c1",
		"service_id":       "svc-30",
		"date":             "2026-01-05",
		"time":             "09:00",
		"duration_minutes": 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("booking must succeed offline, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AppointmentID string `json:"appointment_id"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if !c.appts[resp.AppointmentID].PendingSync {
		t.Fatal("offline booking must stay pending for the reconciler")
	}
}

func TestCreate_OverlapRejected(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := postJSON(t, h.Create, map[string]string{
		"customer_id": "c1", "service_id": "svc-30", "date": "2026-01-05", "time": "09:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first booking: expected 201, got %d", rec.Code)
	}

	rec = postJSON(t, h.Create, map[string]string{
		"customer_id": "c2", "service_id": "svc-30", "date": "2026-01-05", "time": "09:15",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overlapping booking: expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreate_BadRequests(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := postJSON(t, h.Create, map[string]string{"customer_id": "c1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: expected 400, got %d", rec.Code)
	}

	rec = postJSON(t, h.Create, map[string]string{
		"customer_id": "c1", "service_id": "nope", "date": "2026-01-05", "time": "09:00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown service: expected 400, got %d", rec.Code)
	}

	rec = postJSON(t, h.Create, map[string]string{
		"customer_id": "c1", "service_id": "svc-30", "date": "2026-01-04", "time": "09:00",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("day off: expected 422, got %d", rec.Code)
	}
}

func TestUpdate_Reschedule(t *testing.T) {
	h, c, _ := newTestHandler()
	_ = c.PutSynced(context.Background(), model.Appointment{
		ID: "a1", CustomerID: "c1", ServiceID: "svc-30",
		Date: "2026-01-05", Time: "09:00", DurationMinutes: 30, Status: model.StatusConfirmed,
	})
	_ = c.PutSynced(context.Background(), model.Appointment{
		ID: "a2", CustomerID: "c2", ServiceID: "svc-30",
		Date: "2026-01-05", Time: "10:00", DurationMinutes: 30, Status: model.StatusConfirmed,
	})

	// Moving onto another appointment is rejected.
	rec := postJSON(t, h.Update, map[string]string{"appointment_id": "a1", "time": "10:15"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	// Moving within your own original window is fine.
	rec = postJSON(t, h.Update, map[string]string{"appointment_id": "a1", "time": "09:15"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := c.appts["a1"]; got.Time != "09:15" || !got.UpdatedAt.Equal(testNow) {
		t.Fatalf("unexpected record after reschedule: %+v", got)
	}

	rec = postJSON(t, h.Update, map[string]string{"appointment_id": "ghost", "time": "11:00"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdate_StatusValidation(t *testing.T) {
	h, c, _ := newTestHandler()
	_ = c.PutSynced(context.Background(), model.Appointment{
		ID: "a1", CustomerID: "c1", ServiceID: "svc-30",
		Date: "2026-01-05", Time: "09:00", DurationMinutes: 30, Status: model.StatusPending,
	})

	rec := postJSON(t, h.Update, map[string]string{"appointment_id": "a1", "status": "archived"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", rec.Code)
	}
	if c.appts["a1"].Status != model.StatusPending {
		t.Fatalf("rejected status must not be stored, got %s", c.appts["a1"].Status)
	}

	rec = postJSON(t, h.Update, map[string]string{"appointment_id": "a1", "status": "confirmed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if c.appts["a1"].Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", c.appts["a1"].Status)
	}
}

func TestCancel_Idempotent(t *testing.T) {
	h, c, _ := newTestHandler()
	_ = c.PutSynced(context.Background(), model.Appointment{
		ID: "a1", CustomerID: "c1", ServiceID: "svc-30",
		Date: "2026-01-05", Time: "09:00", DurationMinutes: 30, Status: model.StatusConfirmed,
	})

	rec := postJSON(t, h.Cancel, map[string]string{"appointment_id": "a1", "reason": "sick"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := c.appts["a1"]
	if got.Status != model.StatusCanceled {
		t.Fatalf("expected canceled, got %s", got.Status)
	}
	if !strings.Contains(got.Notes, "canceled: sick") {
		t.Fatalf("expected reason in notes, got %q", got.Notes)
	}

	// A second cancel changes nothing.
	rec = postJSON(t, h.Cancel, map[string]string{"appointment_id": "a1", "reason": "again"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if c.appts["a1"].Notes != got.Notes {
		t.Fatal("repeated cancel must not append another reason")
	}
}

func TestDelete(t *testing.T) {
	h, c, backend := newTestHandler()
	appt := model.Appointment{ID: "a1", Date: "2026-01-05", Time: "09:00"}
	_ = c.PutSynced(context.Background(), appt)
	backend.appts["a1"] = appt

	rec := postJSON(t, h.Delete, map[string]string{"appointment_id": "a1"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := backend.appts["a1"]; ok {
		t.Fatal("backend copy should be deleted")
	}
	// The tombstone stays regardless of the backend result; only the
	// reconciler confirms against the primary and drops it.
	got, ok := c.appts["a1"]
	if !ok || !got.PendingDelete {
		t.Fatal("delete must keep a tombstone until the reconciler confirms")
	}

	rec = postJSON(t, h.Delete, map[string]string{"appointment_id": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDelete_FallbackResultKeepsTombstone(t *testing.T) {
	h, c, _ := newTestHandler()
	_ = c.PutSynced(context.Background(), model.Appointment{ID: "a1", Date: "2026-01-05", Time: "09:00"})

	// The backend reports not-found: with the primary down that answer comes
	// from the fallback and says nothing about the primary's copy. Purging
	// the tombstone here would let the next pull resurrect the appointment.
	rec := postJSON(t, h.Delete, map[string]string{"appointment_id": "a1"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	got, ok := c.appts["a1"]
	if !ok || !got.PendingDelete {
		t.Fatal("a not-found backend answer must not purge the tombstone")
	}
}

func TestDelete_OfflineKeepsTombstone(t *testing.T) {
	h, c, backend := newTestHandler()
	_ = c.PutSynced(context.Background(), model.Appointment{ID: "a1", Date: "2026-01-05", Time: "09:00"})
	backend.err = errors.New("connection refused")

	rec := postJSON(t, h.Delete, map[string]string{"appointment_id": "a1"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("offline delete must still succeed, got %d", rec.Code)
	}
	got, ok := c.appts["a1"]
	if !ok || !got.PendingDelete {
		t.Fatal("offline delete must keep a tombstone for the reconciler")
	}
}

func TestList_HidesTombstones(t *testing.T) {
	h, c, _ := newTestHandler()
	ctx := context.Background()
	_ = c.PutSynced(ctx, model.Appointment{ID: "a1", Date: "2026-01-05", Time: "09:00"})
	_ = c.PutSynced(ctx, model.Appointment{ID: "a2", Date: "2026-01-05", Time: "10:00"})
	_ = c.MarkDeleted(ctx, "a2")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []model.Appointment
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].ID != "a1" {
		t.Fatalf("expected only a1, got %+v", out)
	}
}

func TestSlots(t *testing.T) {
	h, c, _ := newTestHandler()
	_ = c.PutSynced(context.Background(), model.Appointment{
		ID: "a1", Date: "2026-01-05", Time: "09:00", DurationMinutes: 30, Status: model.StatusConfirmed,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date=2026-01-05&service_id=svc-30", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Date  string   `json:"date"`
		Slots []string `json:"slots"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(resp.Slots))
	}
	if resp.Slots[0] != "09:30" {
		t.Fatalf("expected first free slot 09:30, got %s", resp.Slots[0])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date=2026-01-05", nil)
	rec = httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing service_id: expected 400, got %d", rec.Code)
	}
}

func TestAvailability(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?date=2026-01-04&service_id=svc-30", nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		IsDayOff bool `json:"isDayOff"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.IsDayOff {
		t.Fatal("Sunday should report a day off")
	}
}
