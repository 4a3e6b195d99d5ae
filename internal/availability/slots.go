// Package availability computes bookable slots from business-hours
// configuration and an appointment snapshot. Everything here is pure: callers
// pass now explicitly and identical inputs yield identical output.
package availability

import (
	"time"

	"github.com/mtorres-dev/apptsync/internal/model"
)

const dateLayout = "2006-01-02"

type DateAvailability struct {
	IsDayOff       bool `json:"isDayOff"`
	IsPast         bool `json:"isPast"`
	IsFullyBooked  bool `json:"isFullyBooked"`
	AvailableSlots int  `json:"availableSlots"`
	TotalSlots     int  `json:"totalSlots"`
}

// SlotsForDate returns the bookable start times ("15:04") for a service on a
// date. Slots are laid back-to-back at service-duration granularity from the
// effective opening time; they are not aligned to a calendar grid. The
// appointment buffer is deliberately not applied here; the conflict guard
// applies it when deciding the latest bookable start.
func SlotsForDate(date, serviceID string, durationMinutes int, settings model.BusinessSettings, existing []model.Appointment, now time.Time) []string {
	slots, _ := enumerate(date, serviceID, durationMinutes, settings, existing, now)
	return slots
}

// ForDate summarizes a date for calendar display.
func ForDate(date, serviceID string, durationMinutes int, settings model.BusinessSettings, existing []model.Appointment, now time.Time) DateAvailability {
	day, err := time.ParseInLocation(dateLayout, date, now.Location())
	if err != nil {
		return DateAvailability{}
	}

	if _, _, open := settings.HoursFor(day.Weekday().String(), serviceID); !open {
		return DateAvailability{IsDayOff: true}
	}

	available, total := enumerate(date, serviceID, durationMinutes, settings, existing, now)
	out := DateAvailability{
		AvailableSlots: len(available),
		TotalSlots:     total,
	}
	out.IsPast = day.Before(today(now))
	out.IsFullyBooked = !out.IsPast && total > 0 && len(available) == 0
	return out
}

func enumerate(date, serviceID string, durationMinutes int, settings model.BusinessSettings, existing []model.Appointment, now time.Time) (available []string, total int) {
	if durationMinutes <= 0 {
		return nil, 0
	}

	day, err := time.ParseInLocation(dateLayout, date, now.Location())
	if err != nil {
		return nil, 0
	}

	startStr, endStr, open := settings.HoursFor(day.Weekday().String(), serviceID)
	if !open {
		return nil, 0
	}
	start, err := model.ParseClock(startStr)
	if err != nil {
		return nil, 0
	}
	end, err := model.ParseClock(endStr)
	if err != nil || end <= start {
		// Misconfigured hours; callers log this as an error condition.
		return nil, 0
	}

	taken := make(map[string]bool)
	for _, a := range existing {
		if a.Date == date && !a.Canceled() && !a.PendingDelete {
			taken[a.Time] = true
		}
	}

	isPastDate := day.Before(today(now))
	isToday := day.Equal(today(now))
	nowMinutes := now.Hour()*60 + now.Minute()

	for m := start; m+durationMinutes <= end; m += durationMinutes {
		total++
		if isPastDate {
			continue
		}
		if isToday && m <= nowMinutes {
			continue
		}
		slot := model.FormatClock(m)
		if taken[slot] {
			continue
		}
		available = append(available, slot)
	}
	return available, total
}

func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
