// Package booking validates booking candidates before any write happens.
package booking

import (
	"errors"
	"time"

	"github.com/mtorres-dev/apptsync/internal/model"
)

var (
	ErrDayOff       = errors.New("booking: business is closed on that day")
	ErrOutsideHours = errors.New("booking: requested time is outside business hours")
	ErrInPast       = errors.New("booking: requested time is in the past")
	ErrOverlap      = errors.New("booking: requested time overlaps an existing appointment")
)

type Candidate struct {
	Date            string
	Time            string
	DurationMinutes int
	ServiceID       string
	ExcludeID       string // ignore this appointment when checking overlap (reschedules)
}

// Validate checks a candidate in order: day open, within effective hours
// (minus duration and buffer), not in the past, no overlap with a non-canceled
// appointment on the same date. It short-circuits on the first failure and
// performs no writes.
func Validate(c Candidate, settings model.BusinessSettings, existing []model.Appointment, now time.Time) error {
	day, err := time.ParseInLocation("2006-01-02", c.Date, now.Location())
	if err != nil {
		return err
	}

	startStr, endStr, open := settings.HoursFor(day.Weekday().String(), c.ServiceID)
	if !open {
		return ErrDayOff
	}

	start, err := model.ParseClock(c.Time)
	if err != nil {
		return err
	}
	openAt, err := model.ParseClock(startStr)
	if err != nil {
		return ErrOutsideHours
	}
	closeAt, err := model.ParseClock(endStr)
	if err != nil {
		return ErrOutsideHours
	}
	latest := closeAt - c.DurationMinutes - settings.AppointmentBufferMinutes
	if c.DurationMinutes <= 0 || start < openAt || start > latest {
		return ErrOutsideHours
	}

	startsAt := day.Add(time.Duration(start) * time.Minute)
	if startsAt.Before(now) {
		return ErrInPast
	}

	candidate := model.Appointment{
		Date:            c.Date,
		Time:            c.Time,
		DurationMinutes: c.DurationMinutes,
	}
	for _, a := range existing {
		if a.ID == c.ExcludeID || a.Canceled() || a.PendingDelete {
			continue
		}
		if candidate.Overlaps(a) {
			return ErrOverlap
		}
	}
	return nil
}
