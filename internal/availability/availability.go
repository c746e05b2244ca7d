// Package availability turns existing reservations into bookable hours.
//
// Every function here is pure: callers fetch reservations, the engine
// decides which hours of a calendar day are free on all requested rooms and
// how far a booking starting at a given hour may extend.
package availability

import (
	"fmt"
	"sort"
	"time"

	"roombook/internal/model"
)

// HoursPerDay is the number of hour markers on a calendar day. Hour 24 is
// only meaningful as an end marker and stands for midnight of the next day.
const HoursPerDay = 24

// DisplayTimeLayout renders slot boundaries, e.g. "02:00 PM".
const DisplayTimeLayout = "03:04 PM"

// Slot describes an existing reservation that blocks a requested room on the
// queried day.
type Slot struct {
	RoomID    int64     `json:"room_id"`
	RoomName  string    `json:"room_name"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	StartHour *int      `json:"start_hour"`
	EndHour   int       `json:"end_hour"`
	Start     time.Time `json:"start_datetime"`
	End       time.Time `json:"end_datetime"`
}

// Result is the availability of a room set on one day.
type Result struct {
	Date             string  `json:"date"`
	RoomIDs          []int64 `json:"room_ids"`
	AvailableHours   []int   `json:"available_hours"`
	UnavailableSlots []Slot  `json:"unavailable_slots"`
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DayStart returns midnight of date's calendar day in loc. Only the year,
// month and day of date are used.
func DayStart(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// HourBounds returns [start, end) of hour h of day in loc. h may be 0..23;
// DST days are handled by time.Date normalization.
func HourBounds(day time.Time, h int, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.Date()
	return time.Date(y, m, d, h, 0, 0, 0, loc), time.Date(y, m, d, h+1, 0, 0, 0, loc)
}

// Engine computes availability in a fixed organisational time zone.
type Engine struct {
	loc *time.Location
}

// NewEngine returns an engine for loc. A nil loc means UTC.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

// Location returns the engine's time zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Compute returns the hours of date that are free on every room in roomIDs
// together with the reservations blocking those rooms on that day.
// Cancelled reservations and reservations on other rooms are ignored; a
// reservation crossing midnight only blocks the part inside the day.
func (e *Engine) Compute(date time.Time, roomIDs []int64, reservations []model.Reservation) Result {
	dayStart := DayStart(date, e.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	requested := make(map[int64]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		requested[id] = struct{}{}
	}

	relevant := make([]model.Reservation, 0, len(reservations))
	for i := range reservations {
		r := reservations[i]
		if !r.Active() || !r.Start.Before(r.End) {
			continue
		}
		if !Overlaps(r.Start, r.End, dayStart, dayEnd) {
			continue
		}
		if !occupiesAny(&r, requested) {
			continue
		}
		relevant = append(relevant, r)
	}

	result := Result{
		Date:             dayStart.Format("2006-01-02"),
		RoomIDs:          append([]int64(nil), roomIDs...),
		AvailableHours:   make([]int, 0, HoursPerDay),
		UnavailableSlots: e.slots(dayStart, dayEnd, requested, relevant),
	}

	for h := 0; h < HoursPerDay; h++ {
		hourStart, hourEnd := HourBounds(dayStart, h, e.loc)
		free := true
		for i := range relevant {
			if Overlaps(relevant[i].Start, relevant[i].End, hourStart, hourEnd) {
				free = false
				break
			}
		}
		if free {
			result.AvailableHours = append(result.AvailableHours, h)
		}
	}

	return result
}

func (e *Engine) slots(dayStart, dayEnd time.Time, requested map[int64]struct{}, relevant []model.Reservation) []Slot {
	type key struct {
		room       int64
		start, end int64
	}
	seen := make(map[key]struct{})
	out := make([]Slot, 0, len(relevant))

	for i := range relevant {
		r := relevant[i]
		for _, room := range r.Rooms {
			if _, ok := requested[room.ID]; !ok {
				continue
			}
			k := key{room: room.ID, start: r.Start.UnixNano(), end: r.End.UnixNano()}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e.slot(dayStart, dayEnd, room, r.Start, r.End))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := startKey(out[i]), startKey(out[j])
		if a != b {
			return a < b
		}
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

func (e *Engine) slot(dayStart, dayEnd time.Time, room model.Room, start, end time.Time) Slot {
	localStart, localEnd := start.In(e.loc), end.In(e.loc)

	s := Slot{
		RoomID:    room.ID,
		RoomName:  room.Name,
		StartTime: localStart.Format(DisplayTimeLayout),
		EndTime:   localEnd.Format(DisplayTimeLayout),
		Start:     localStart,
		End:       localEnd,
		EndHour:   HoursPerDay,
	}
	if !localStart.Before(dayStart) {
		h := localStart.Hour()
		s.StartHour = &h
	}
	if localEnd.Before(dayEnd) {
		s.EndHour = localEnd.Hour()
		if localEnd.Minute() > 0 || localEnd.Second() > 0 {
			s.EndHour++
		}
	}
	return s
}

// startKey orders slots that began on an earlier day first.
func startKey(s Slot) int {
	if s.StartHour == nil {
		return -1
	}
	return *s.StartHour
}

func occupiesAny(r *model.Reservation, rooms map[int64]struct{}) bool {
	for _, room := range r.Rooms {
		if _, ok := rooms[room.ID]; ok {
			return true
		}
	}
	return false
}

// EndOptions returns the end hours a booking starting at start may use:
// every hour in (start, maxEnd], where maxEnd is 24 tightened to the earliest
// slot on a requested room that starts after start. A nil start yields none.
func EndOptions(start *int, roomIDs []int64, slots []Slot) []int {
	if start == nil || *start < 0 || *start >= HoursPerDay {
		return nil
	}

	requested := make(map[int64]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		requested[id] = struct{}{}
	}

	maxEnd := HoursPerDay
	for _, s := range slots {
		if _, ok := requested[s.RoomID]; !ok || s.StartHour == nil {
			continue
		}
		if *s.StartHour > *start && *s.StartHour < maxEnd {
			maxEnd = *s.StartHour
		}
	}

	options := make([]int, 0, maxEnd-*start)
	for h := *start + 1; h <= maxEnd; h++ {
		options = append(options, h)
	}
	return options
}

// FormatHour renders an hour marker for display. 0 and 24 are both midnight.
func FormatHour(h int) string {
	switch {
	case h == 0 || h == HoursPerDay:
		return "12:00 AM"
	case h == 12:
		return "12:00 PM"
	case h > 12:
		return fmt.Sprintf("%d:00 PM", h-12)
	default:
		return fmt.Sprintf("%d:00 AM", h)
	}
}
