package model

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// autoCompleteGrace is how far past its start an appointment must be before the
// sweep marks it completed.
const autoCompleteGrace = time.Minute

// Appointment is the record shared by the local cache, the primary store and
// the fallback file. Date and Time are kept as strings ("2006-01-02", "15:04")
// because the business operates in a single local timezone and the strings are
// the lookup keys for slot math.
type Appointment struct {
	ID              string    `json:"id" bson:"_id"`
	CustomerID      string    `json:"customerId" bson:"customerId"`
	ServiceID       string    `json:"serviceId" bson:"serviceId"`
	Date            string    `json:"date" bson:"date"`
	Time            string    `json:"time" bson:"time"`
	DurationMinutes int       `json:"durationMinutes" bson:"durationMinutes"`
	Status          Status    `json:"status" bson:"status"`
	Notes           string    `json:"notes,omitempty" bson:"notes,omitempty"`
	PendingSync     bool      `json:"pendingSync" bson:"pendingSync"`
	PendingDelete   bool      `json:"pendingDelete" bson:"pendingDelete"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (a Appointment) Canceled() bool {
	return a.Status == StatusCanceled
}

// StartsAt resolves the appointment's date and time in the given location.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	return t, nil
}

// Overlaps reports whether two appointments on the same date have intersecting
// [start, start+duration) intervals. Different dates never overlap.
func (a Appointment) Overlaps(b Appointment) bool {
	if a.Date != b.Date {
		return false
	}
	aStart, errA := ParseClock(a.Time)
	bStart, errB := ParseClock(b.Time)
	if errA != nil || errB != nil {
		return false
	}
	aEnd := aStart + a.DurationMinutes
	bEnd := bStart + b.DurationMinutes
	return aStart < bEnd && bStart < aEnd
}

// WithoutSyncFlags returns a copy suitable for a backend store: backend copies
// never carry pending markers.
func (a Appointment) WithoutSyncFlags() Appointment {
	a.PendingSync = false
	a.PendingDelete = false
	return a
}

// CompletePast returns updated copies of every appointment whose start is more
// than a minute in the past and whose status is neither canceled nor already
// completed. Each returned copy is marked completed with a bumped UpdatedAt and
// PendingSync set, so the transition propagates like any other local edit.
func CompletePast(appts []Appointment, now time.Time) []Appointment {
	var changed []Appointment
	for _, a := range appts {
		if a.Status == StatusCanceled || a.Status == StatusCompleted {
			continue
		}
		start, err := a.StartsAt(now.Location())
		if err != nil {
			continue
		}
		if now.Sub(start) > autoCompleteGrace {
			a.Status = StatusCompleted
			a.UpdatedAt = now
			a.PendingSync = true
			changed = append(changed, a)
		}
	}
	return changed
}

// ParseClock converts a "15:04" string to minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock converts minutes since midnight back to a "15:04" string.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
