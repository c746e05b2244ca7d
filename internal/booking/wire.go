package booking

import (
	"fmt"
	"strings"
	"time"

	"roombook/internal/model"
)

const (
	// WireLayout is the zone-less datetime exchanged with the authority. It is
	// always interpreted in the organisational time zone.
	WireLayout = "2006-01-02T15:04:05"
	// DateLayout is the calendar date format used in queries.
	DateLayout = "2006-01-02"
)

// FormatWire renders t in loc using WireLayout.
func FormatWire(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(WireLayout)
}

// ParseWire parses a WireLayout value in loc. Values carrying an explicit
// offset (RFC 3339, "Z") are accepted and converted to loc.
func ParseWire(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(WireLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q: use YYYY-MM-DDTHH:MM:SS", s)
	}
	return t.In(loc), nil
}

// ParseDate parses a YYYY-MM-DD calendar date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return t, nil
}

// Request is the body of create and update calls.
type Request struct {
	RoomIDs []int64    `json:"room_ids"`
	FloorID *int64     `json:"floor_id,omitempty"`
	Start   string     `json:"start_datetime"`
	End     string     `json:"end_datetime"`
	Kind    model.Kind `json:"booking_type"`
}

// NewRequest validates sel and builds the wire request for rooms. floorID
// may be nil; when set, rooms may be empty.
func NewRequest(sel Selection, roomIDs []int64, floorID *int64, loc *time.Location) (Request, error) {
	if len(roomIDs) == 0 && floorID == nil {
		return Request{}, invalid(ReasonNoRooms)
	}
	start, end, err := Interval(sel, loc)
	if err != nil {
		return Request{}, err
	}
	return Request{
		RoomIDs: dedupe(roomIDs),
		FloorID: floorID,
		Start:   FormatWire(start, loc),
		End:     FormatWire(end, loc),
		Kind:    sel.Kind(),
	}, nil
}

// Times parses the request interval in loc.
func (r Request) Times(loc *time.Location) (time.Time, time.Time, error) {
	if r.Start == "" || r.End == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("both start_datetime and end_datetime are required")
	}
	start, err := ParseWire(r.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseWire(r.End, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
