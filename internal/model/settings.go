package model

// DayHours is the opening configuration for one weekday. Empty Start/End fall
// back to the global WorkingHours.
type DayHours struct {
	Open  bool   `json:"open" bson:"open"`
	Start string `json:"start,omitempty" bson:"start,omitempty"`
	End   string `json:"end,omitempty" bson:"end,omitempty"`
}

type HourRange struct {
	Start string `json:"start" bson:"start"`
	End   string `json:"end" bson:"end"`
}

// ServiceHours optionally narrows a day's hours for one service. AllDay means
// the service follows the day's own hours.
type ServiceHours struct {
	AllDay bool   `json:"allDay" bson:"allDay"`
	Start  string `json:"start,omitempty" bson:"start,omitempty"`
	End    string `json:"end,omitempty" bson:"end,omitempty"`
}

type BusinessSettings struct {
	DaysOpen                 map[string]DayHours     `json:"daysOpen" bson:"daysOpen"`
	WorkingHours             HourRange               `json:"workingHours" bson:"workingHours"`
	AppointmentBufferMinutes int                     `json:"appointmentBuffer" bson:"appointmentBuffer"`
	ServiceAvailabilities    map[string]ServiceHours `json:"serviceAvailabilities,omitempty" bson:"serviceAvailabilities,omitempty"`
}

func DefaultSettings() BusinessSettings {
	days := make(map[string]DayHours, 7)
	for _, d := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"} {
		days[d] = DayHours{Open: true}
	}
	days["Saturday"] = DayHours{Open: false}
	days["Sunday"] = DayHours{Open: false}
	return BusinessSettings{
		DaysOpen:     days,
		WorkingHours: HourRange{Start: "09:00", End: "17:00"},
	}
}

// HoursFor resolves the effective booking window for a weekday and service.
// Resolution order: per-service override (unless all-day), then the day's own
// hours, then the global working hours. A weekday missing from DaysOpen is
// treated as closed.
func (s BusinessSettings) HoursFor(weekday, serviceID string) (start, end string, open bool) {
	day, ok := s.DaysOpen[weekday]
	if !ok || !day.Open {
		return "", "", false
	}

	start, end = s.WorkingHours.Start, s.WorkingHours.End
	if day.Start != "" {
		start = day.Start
	}
	if day.End != "" {
		end = day.End
	}

	if serviceID != "" {
		if sh, ok := s.ServiceAvailabilities[serviceID]; ok && !sh.AllDay {
			if sh.Start != "" {
				start = sh.Start
			}
			if sh.End != "" {
				end = sh.End
			}
		}
	}
	return start, end, true
}
