package availability

import (
	"sort"
	"time"

	"roombook/internal/model"
)

// ForDay returns active reservations touching the calendar day of date,
// ordered by start time.
func (e *Engine) ForDay(reservations []model.Reservation, date time.Time) []model.Reservation {
	dayStart := DayStart(date, e.loc)
	return e.within(reservations, dayStart, dayStart.AddDate(0, 0, 1))
}

// ForHour returns active reservations overlapping hour h of date.
func (e *Engine) ForHour(reservations []model.Reservation, date time.Time, h int) []model.Reservation {
	start, end := HourBounds(date, h, e.loc)
	return e.within(reservations, start, end)
}

// ForRoom keeps reservations that occupy roomID.
func ForRoom(reservations []model.Reservation, roomID int64) []model.Reservation {
	var out []model.Reservation
	for i := range reservations {
		if reservations[i].Occupies(roomID) {
			out = append(out, reservations[i])
		}
	}
	return out
}

// Week returns the seven calendar days starting at the Sunday on or before date.
func (e *Engine) Week(date time.Time) []time.Time {
	start := DayStart(date, e.loc)
	start = start.AddDate(0, 0, -int(start.Weekday()))
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

func (e *Engine) within(reservations []model.Reservation, from, to time.Time) []model.Reservation {
	var out []model.Reservation
	for i := range reservations {
		r := reservations[i]
		if !r.Active() {
			continue
		}
		if Overlaps(r.Start, r.End, from, to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
