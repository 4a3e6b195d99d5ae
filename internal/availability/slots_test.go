package availability

import (
	"testing"
	"time"

	"github.com/mtorres-dev/apptsync/internal/model"
)

// 2026-01-05 is a Monday.
var testNow = time.Date(2026, 1, 3, 8, 0, 0, 0, time.UTC)

func TestSlotsForDate_FullDay(t *testing.T) {
	settings := model.DefaultSettings()

	slots := SlotsForDate("2026-01-05", "", 30, settings, nil, testNow)
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if slots[0] != "09:00" || slots[len(slots)-1] != "16:30" {
		t.Fatalf("expected 09:00..16:30, got %s..%s", slots[0], slots[len(slots)-1])
	}

	again := SlotsForDate("2026-01-05", "", 30, settings, nil, testNow)
	if len(again) != len(slots) {
		t.Fatal("identical inputs must yield identical slots")
	}
	for i := range slots {
		if slots[i] != again[i] {
			t.Fatalf("slot %d differs: %s vs %s", i, slots[i], again[i])
		}
	}
}

func TestSlotsForDate_DurationGranularity(t *testing.T) {
	settings := model.DefaultSettings()

	// 45-minute services pack back-to-back from opening, not on a grid.
	slots := SlotsForDate("2026-01-05", "", 45, settings, nil, testNow)
	if len(slots) != 10 {
		t.Fatalf("expected 10 slots, got %d", len(slots))
	}
	if slots[1] != "09:45" {
		t.Fatalf("expected second slot 09:45, got %s", slots[1])
	}
	if slots[len(slots)-1] != "15:45" {
		t.Fatalf("expected last slot 15:45, got %s", slots[len(slots)-1])
	}
}

func TestSlotsForDate_TakenSlots(t *testing.T) {
	settings := model.DefaultSettings()
	existing := []model.Appointment{
		{ID: "a1", Date: "2026-01-05", Time: "09:00", DurationMinutes: 30, Status: model.StatusConfirmed},
		{ID: "a2", Date: "2026-01-05", Time: "09:30", DurationMinutes: 30, Status: model.StatusCanceled},
		{ID: "a3", Date: "2026-01-06", Time: "10:00", DurationMinutes: 30, Status: model.StatusConfirmed},
	}

	slots := SlotsForDate("2026-01-05", "", 30, settings, existing, testNow)
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(slots))
	}
	// The canceled 09:30 does not block; the confirmed 09:00 does. The other
	// date's appointment is irrelevant.
	if slots[0] != "09:30" {
		t.Fatalf("expected first slot 09:30, got %s", slots[0])
	}
}

func TestSlotsForDate_TodayFiltersElapsed(t *testing.T) {
	settings := model.DefaultSettings()
	now := time.Date(2026, 1, 5, 12, 30, 0, 0, time.UTC)

	slots := SlotsForDate("2026-01-05", "", 30, settings, nil, now)
	if len(slots) != 8 {
		t.Fatalf("expected 8 remaining slots, got %d", len(slots))
	}
	if slots[0] != "13:00" {
		t.Fatalf("expected first remaining slot 13:00, got %s", slots[0])
	}
}

func TestSlotsForDate_DayOffAndPast(t *testing.T) {
	settings := model.DefaultSettings()

	if slots := SlotsForDate("2026-01-04", "", 30, settings, nil, testNow); len(slots) != 0 {
		t.Fatalf("Sunday should have no slots, got %d", len(slots))
	}
	if slots := SlotsForDate("2025-12-29", "", 30, settings, nil, testNow); len(slots) != 0 {
		t.Fatalf("past date should have no slots, got %d", len(slots))
	}
	if slots := SlotsForDate("not-a-date", "", 30, settings, nil, testNow); len(slots) != 0 {
		t.Fatalf("bad date should have no slots, got %d", len(slots))
	}
	if slots := SlotsForDate("2026-01-05", "", 0, settings, nil, testNow); len(slots) != 0 {
		t.Fatalf("zero duration should have no slots, got %d", len(slots))
	}
}

func TestSlotsForDate_ServiceHours(t *testing.T) {
	settings := model.DefaultSettings()
	settings.ServiceAvailabilities = map[string]model.ServiceHours{
		"svc-short": {Start: "10:00", End: "12:00"},
	}

	slots := SlotsForDate("2026-01-05", "svc-short", 30, settings, nil, testNow)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots within service window, got %d", len(slots))
	}
	if slots[0] != "10:00" || slots[3] != "11:30" {
		t.Fatalf("expected 10:00..11:30, got %s..%s", slots[0], slots[3])
	}
}

func TestForDate(t *testing.T) {
	settings := model.DefaultSettings()

	d := ForDate("2026-01-04", "", 30, settings, nil, testNow)
	if !d.IsDayOff {
		t.Fatal("Sunday should be a day off")
	}

	d = ForDate("2025-12-29", "", 30, settings, nil, testNow)
	if !d.IsPast || d.IsFullyBooked {
		t.Fatalf("past Monday: got IsPast=%v IsFullyBooked=%v", d.IsPast, d.IsFullyBooked)
	}
	if d.AvailableSlots != 0 || d.TotalSlots != 16 {
		t.Fatalf("past Monday: got %d/%d slots", d.AvailableSlots, d.TotalSlots)
	}

	var existing []model.Appointment
	for m := 9 * 60; m+30 <= 17*60; m += 30 {
		existing = append(existing, model.Appointment{
			ID:              model.FormatClock(m),
			Date:            "2026-01-05",
			Time:            model.FormatClock(m),
			DurationMinutes: 30,
			Status:          model.StatusConfirmed,
		})
	}
	d = ForDate("2026-01-05", "", 30, settings, existing, testNow)
	if !d.IsFullyBooked {
		t.Fatal("every slot taken should report fully booked")
	}
	if d.AvailableSlots != 0 || d.TotalSlots != 16 {
		t.Fatalf("fully booked: got %d/%d slots", d.AvailableSlots, d.TotalSlots)
	}

	d = ForDate("2026-01-05", "", 30, settings, existing[:1], testNow)
	if d.IsFullyBooked || d.AvailableSlots != 15 {
		t.Fatalf("one taken slot: got IsFullyBooked=%v %d available", d.IsFullyBooked, d.AvailableSlots)
	}
}
