package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombook/internal/model"
)

var est = time.FixedZone("EST", -5*60*60)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.June, day, hour, minute, 0, 0, est)
}

func room(id int64, name string) model.Room {
	return model.Room{ID: id, Name: name}
}

func reservation(id int64, start, end time.Time, status model.Status, rooms ...model.Room) model.Reservation {
	return model.Reservation{ID: id, Start: start, End: end, Status: status, Rooms: rooms}
}

func hoursExcept(excluded ...int) []int {
	skip := make(map[int]bool, len(excluded))
	for _, h := range excluded {
		skip[h] = true
	}
	var out []int
	for h := 0; h < HoursPerDay; h++ {
		if !skip[h] {
			out = append(out, h)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name         string
		aStart, aEnd time.Time
		bStart, bEnd time.Time
		want         bool
	}{
		{"disjoint", at(1, 9, 0), at(1, 10, 0), at(1, 11, 0), at(1, 12, 0), false},
		{"touching end to start", at(1, 9, 0), at(1, 10, 0), at(1, 10, 0), at(1, 11, 0), false},
		{"touching start to end", at(1, 10, 0), at(1, 11, 0), at(1, 9, 0), at(1, 10, 0), false},
		{"partial", at(1, 9, 0), at(1, 11, 0), at(1, 10, 0), at(1, 12, 0), true},
		{"contained", at(1, 9, 0), at(1, 17, 0), at(1, 10, 0), at(1, 11, 0), true},
		{"identical", at(1, 9, 0), at(1, 10, 0), at(1, 9, 0), at(1, 10, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.want, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd))
		})
	}
}

func TestCompute_SingleRoomBooking(t *testing.T) {
	e := NewEngine(est)
	lab := room(1, "Lab")

	res := e.Compute(at(1, 0, 0), []int64{1}, []model.Reservation{
		reservation(10, at(1, 10, 0), at(1, 12, 0), model.StatusApproved, lab),
	})

	assert.Equal(t, "2024-06-01", res.Date)
	assert.Equal(t, hoursExcept(10, 11), res.AvailableHours)
	require.Len(t, res.UnavailableSlots, 1)

	slot := res.UnavailableSlots[0]
	assert.Equal(t, int64(1), slot.RoomID)
	assert.Equal(t, "Lab", slot.RoomName)
	assert.Equal(t, "10:00 AM", slot.StartTime)
	assert.Equal(t, "12:00 PM", slot.EndTime)
	require.NotNil(t, slot.StartHour)
	assert.Equal(t, 10, *slot.StartHour)
	assert.Equal(t, 12, slot.EndHour)
}

func TestCompute_IntersectionAcrossRooms(t *testing.T) {
	e := NewEngine(est)

	res := e.Compute(at(1, 0, 0), []int64{1, 2}, []model.Reservation{
		reservation(1, at(1, 9, 0), at(1, 10, 0), model.StatusPending, room(1, "A")),
		reservation(2, at(1, 14, 0), at(1, 15, 0), model.StatusApproved, room(2, "B")),
	})

	assert.Equal(t, hoursExcept(9, 14), res.AvailableHours)
	require.Len(t, res.UnavailableSlots, 2)
	assert.Equal(t, int64(1), res.UnavailableSlots[0].RoomID)
	assert.Equal(t, int64(2), res.UnavailableSlots[1].RoomID)
}

func TestCompute_IgnoresCancelledAndOtherRooms(t *testing.T) {
	e := NewEngine(est)

	res := e.Compute(at(1, 0, 0), []int64{1}, []model.Reservation{
		reservation(1, at(1, 9, 0), at(1, 12, 0), model.StatusCancelled, room(1, "A")),
		reservation(2, at(1, 13, 0), at(1, 15, 0), model.StatusApproved, room(2, "B")),
		reservation(3, at(2, 9, 0), at(2, 10, 0), model.StatusApproved, room(1, "A")),
	})

	assert.Equal(t, hoursExcept(), res.AvailableHours)
	assert.Empty(t, res.UnavailableSlots)
}

func TestCompute_ClipsReservationCrossingMidnight(t *testing.T) {
	e := NewEngine(est)
	a := room(1, "A")

	res := e.Compute(at(1, 0, 0), []int64{1}, []model.Reservation{
		reservation(1, at(1, 22, 0), at(2, 2, 0), model.StatusApproved, a),
	})
	assert.Equal(t, hoursExcept(22, 23), res.AvailableHours)
	require.Len(t, res.UnavailableSlots, 1)
	assert.Equal(t, HoursPerDay, res.UnavailableSlots[0].EndHour)

	next := e.Compute(at(2, 0, 0), []int64{1}, []model.Reservation{
		reservation(1, at(1, 22, 0), at(2, 2, 0), model.StatusApproved, a),
	})
	assert.Equal(t, hoursExcept(0, 1), next.AvailableHours)
	require.Len(t, next.UnavailableSlots, 1)
	assert.Nil(t, next.UnavailableSlots[0].StartHour)
	assert.Equal(t, 2, next.UnavailableSlots[0].EndHour)
}

func TestCompute_PartialHourBlocksWholeHour(t *testing.T) {
	e := NewEngine(est)

	res := e.Compute(at(1, 0, 0), []int64{1}, []model.Reservation{
		reservation(1, at(1, 9, 30), at(1, 10, 15), model.StatusApproved, room(1, "A")),
	})

	assert.Equal(t, hoursExcept(9, 10), res.AvailableHours)
	require.Len(t, res.UnavailableSlots, 1)
	assert.Equal(t, 9, *res.UnavailableSlots[0].StartHour)
	assert.Equal(t, 11, res.UnavailableSlots[0].EndHour)
}

func TestCompute_ConvertsToOrganisationZone(t *testing.T) {
	e := NewEngine(est)
	utcStart := time.Date(2024, time.June, 1, 15, 0, 0, 0, time.UTC)

	res := e.Compute(at(1, 0, 0), []int64{1}, []model.Reservation{
		reservation(1, utcStart, utcStart.Add(time.Hour), model.StatusApproved, room(1, "A")),
	})

	assert.Equal(t, hoursExcept(10), res.AvailableHours)
	assert.Equal(t, "10:00 AM", res.UnavailableSlots[0].StartTime)
}

func TestCompute_DeduplicatesAndSorts(t *testing.T) {
	e := NewEngine(est)
	a, b := room(1, "A"), room(2, "B")

	res := e.Compute(at(1, 0, 0), []int64{1, 2}, []model.Reservation{
		reservation(1, at(1, 15, 0), at(1, 16, 0), model.StatusApproved, a, b),
		reservation(2, at(1, 15, 0), at(1, 16, 0), model.StatusPending, a),
		reservation(3, at(1, 8, 0), at(1, 9, 0), model.StatusPending, b),
		reservation(4, at(0, 23, 0), at(1, 1, 0), model.StatusPending, a),
	})

	require.Len(t, res.UnavailableSlots, 4)
	assert.Nil(t, res.UnavailableSlots[0].StartHour)
	assert.Equal(t, 8, *res.UnavailableSlots[1].StartHour)
	assert.Equal(t, int64(1), res.UnavailableSlots[2].RoomID)
	assert.Equal(t, int64(2), res.UnavailableSlots[3].RoomID)
	assert.Equal(t, hoursExcept(0, 8, 15), res.AvailableHours)
}

func TestCompute_Idempotent(t *testing.T) {
	e := NewEngine(est)
	lab, studio := room(1, "Lab"), room(2, "Studio")
	input := func() []model.Reservation {
		return []model.Reservation{
			reservation(3, at(1, 14, 0), at(1, 16, 30), model.StatusPending, studio),
			reservation(1, at(1, 9, 0), at(1, 11, 0), model.StatusApproved, lab, studio),
			reservation(2, at(1, 12, 0), at(1, 13, 0), model.StatusCancelled, lab),
			reservation(4, at(0, 22, 0), at(1, 1, 0), model.StatusApproved, lab),
		}
	}
	reservations := input()
	roomIDs := []int64{2, 1}

	first := e.Compute(at(1, 8, 0), roomIDs, reservations)
	second := e.Compute(at(1, 8, 0), roomIDs, reservations)

	assert.Equal(t, first, second)
	assert.Equal(t, input(), reservations, "reservations must not be mutated")
	assert.Equal(t, []int64{2, 1}, roomIDs, "room ids must not be mutated")
	assert.Equal(t, EndOptions(intPtr(11), roomIDs, first.UnavailableSlots),
		EndOptions(intPtr(11), roomIDs, second.UnavailableSlots))
}

func TestCompute_DSTDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	e := NewEngine(loc)
	day := time.Date(2024, time.March, 10, 0, 0, 0, 0, loc)

	res := e.Compute(day, []int64{1}, []model.Reservation{
		reservation(1, time.Date(2024, time.March, 10, 9, 0, 0, 0, loc), time.Date(2024, time.March, 10, 10, 0, 0, 0, loc), model.StatusApproved, room(1, "A")),
	})

	assert.Len(t, res.AvailableHours, HoursPerDay-1)
	assert.NotContains(t, res.AvailableHours, 9)
}

func TestEndOptions(t *testing.T) {
	slots := []Slot{
		{RoomID: 1, StartHour: intPtr(16), EndHour: 17},
		{RoomID: 1, StartHour: intPtr(9), EndHour: 10},
		{RoomID: 2, StartHour: intPtr(14), EndHour: 15},
		{RoomID: 1, StartHour: nil, EndHour: 2},
	}

	tests := []struct {
		name  string
		start *int
		rooms []int64
		want  []int
	}{
		{name: "next booking caps end", start: intPtr(13), rooms: []int64{1}, want: []int{14, 15, 16}},
		{name: "other room counted when requested", start: intPtr(13), rooms: []int64{1, 2}, want: []int{14}},
		{name: "nothing after start runs to midnight", start: intPtr(20), rooms: []int64{1}, want: []int{21, 22, 23, 24}},
		{name: "last hour", start: intPtr(23), rooms: []int64{1}, want: []int{24}},
		{name: "unset start", start: nil, rooms: []int64{1}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EndOptions(tt.start, tt.rooms, slots)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndOptions_FromComputedSlots(t *testing.T) {
	e := NewEngine(est)
	res := e.Compute(at(1, 0, 0), []int64{1}, []model.Reservation{
		reservation(1, at(1, 16, 0), at(1, 18, 0), model.StatusApproved, room(1, "A")),
	})

	assert.Equal(t, []int{14, 15, 16}, EndOptions(intPtr(13), []int64{1}, res.UnavailableSlots))
}

func TestFormatHour(t *testing.T) {
	assert.Equal(t, "12:00 AM", FormatHour(0))
	assert.Equal(t, "12:00 AM", FormatHour(24))
	assert.Equal(t, "9:00 AM", FormatHour(9))
	assert.Equal(t, "12:00 PM", FormatHour(12))
	assert.Equal(t, "1:00 PM", FormatHour(13))
	assert.Equal(t, "11:00 PM", FormatHour(23))
}
