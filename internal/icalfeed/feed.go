// Package icalfeed renders reservations as an iCalendar feed that calendar
// clients can subscribe to.
package icalfeed

import (
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"roombook/internal/model"
)

// Feed builds calendars for one deployment.
type Feed struct {
	name   string
	domain string
	loc    *time.Location
	now    func() time.Time
}

// New creates a feed. domain qualifies event UIDs, e.g. "rooms.example.org".
func New(name, domain string, loc *time.Location) *Feed {
	if loc == nil {
		loc = time.UTC
	}
	return &Feed{name: name, domain: domain, loc: loc, now: time.Now}
}

// Calendar converts reservations to VEVENTs. Cancelled reservations are kept
// with STATUS:CANCELLED so subscribers drop them.
func (f *Feed) Calendar(reservations []model.Reservation) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//roombook//Room Bookings//EN")
	cal.SetName(f.name)
	cal.SetXWRCalName(f.name)
	cal.SetXWRTimezone(f.loc.String())

	stamp := f.now().UTC()
	for i := range reservations {
		f.addEvent(cal, &reservations[i], stamp)
	}
	return cal
}

// Write serializes the calendar of reservations to w.
func (f *Feed) Write(w io.Writer, reservations []model.Reservation) error {
	return f.Calendar(reservations).SerializeTo(w)
}

// UID returns the stable identifier of a reservation's event.
func (f *Feed) UID(id int64) string {
	return fmt.Sprintf("booking-%d@%s", id, f.domain)
}

func (f *Feed) addEvent(cal *ics.Calendar, r *model.Reservation, stamp time.Time) {
	ev := cal.AddEvent(f.UID(r.ID))
	ev.SetDtStampTime(stamp)
	if !r.CreatedAt.IsZero() {
		ev.SetCreatedTime(r.CreatedAt)
	}
	ev.SetStartAt(r.Start)
	ev.SetEndAt(r.End)
	ev.SetSummary(summary(r))
	ev.SetLocation(location(r))
	ev.SetDescription(description(r, f.loc))
	ev.SetStatus(eventStatus(r.Status))
}

func summary(r *model.Reservation) string {
	names := make([]string, 0, len(r.Rooms))
	for _, room := range r.Rooms {
		names = append(names, room.Name)
	}
	s := strings.Join(names, ", ")
	if r.Kind == model.KindCamp {
		s += " (camp)"
	}
	return s
}

func location(r *model.Reservation) string {
	names := make([]string, 0, len(r.Rooms))
	for _, room := range r.Rooms {
		names = append(names, room.DisplayName())
	}
	return strings.Join(names, "; ")
}

func description(r *model.Reservation, loc *time.Location) string {
	var b strings.Builder
	if r.User != nil {
		fmt.Fprintf(&b, "Booked by %s. ", r.User.Username)
	}
	fmt.Fprintf(&b, "Status: %s. ", r.Status)
	fmt.Fprintf(&b, "%s to %s", r.Start.In(loc).Format("Jan 2, 2006 03:04 PM"), r.End.In(loc).Format("Jan 2, 2006 03:04 PM"))
	return b.String()
}

func eventStatus(s model.Status) ics.ObjectStatus {
	switch s {
	case model.StatusApproved:
		return ics.ObjectStatusConfirmed
	case model.StatusCancelled:
		return ics.ObjectStatusCancelled
	}
	return ics.ObjectStatusTentative
}
