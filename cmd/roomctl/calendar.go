package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"roombook/internal/availability"
	"roombook/internal/booking"
	"roombook/internal/model"
)

// calendar prints every visible reservation bucketed by hour of one day or
// by day of one week.
func (a *app) calendar(ctx context.Context, args []string) error {
	fs := a.flags("calendar")
	date := fs.String("date", "", "day to show (YYYY-MM-DD), defaults to today")
	view := fs.String("view", "day", "day or week")
	room := fs.Int64("room", 0, "only this room")
	if err := fs.Parse(args); err != nil {
		return err
	}

	day := availability.DayStart(time.Now(), a.loc)
	if *date != "" {
		d, err := booking.ParseDate(*date, a.loc)
		if err != nil {
			return err
		}
		day = d
	}

	list, err := a.client.AllReservations(ctx)
	if err != nil {
		return a.explain(err)
	}
	if *room != 0 {
		list = availability.ForRoom(list, *room)
	}

	switch *view {
	case "day":
		return a.printDay(list, day)
	case "week":
		return a.printWeek(list, day)
	}
	return fmt.Errorf("unknown view %q, use day or week", *view)
}

func (a *app) printDay(list []model.Reservation, day time.Time) error {
	fmt.Fprintf(a.out, "%s\n", day.Format("Mon Jan 2, 2006"))
	if len(a.engine.ForDay(list, day)) == 0 {
		fmt.Fprintln(a.out, "  no bookings")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for h := 0; h < availability.HoursPerDay; h++ {
		inHour := a.engine.ForHour(list, day, h)
		if len(inHour) == 0 {
			continue
		}
		entries := make([]string, len(inHour))
		for i := range inHour {
			entries[i] = calendarEntry(&inHour[i])
		}
		fmt.Fprintf(tw, "  %s\t%s\n", availability.FormatHour(h), strings.Join(entries, "; "))
	}
	return tw.Flush()
}

func (a *app) printWeek(list []model.Reservation, day time.Time) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, d := range a.engine.Week(day) {
		onDay := a.engine.ForDay(list, d)
		entries := make([]string, len(onDay))
		for i := range onDay {
			r := &onDay[i]
			entries[i] = fmt.Sprintf("%s-%s %s",
				availability.FormatHour(r.Start.In(a.loc).Hour()),
				availability.FormatHour(endHour(r.End.In(a.loc))),
				calendarEntry(r))
		}
		fmt.Fprintf(tw, "%s\t%d bookings\t%s\n", d.Format("Mon Jan 2"), len(onDay), strings.Join(entries, "; "))
	}
	return tw.Flush()
}

func calendarEntry(r *model.Reservation) string {
	names := make([]string, len(r.Rooms))
	for i, room := range r.Rooms {
		names[i] = room.Name
	}
	entry := fmt.Sprintf("#%d %s", r.ID, strings.Join(names, ", "))
	if r.User != nil {
		entry += " (" + r.User.Username + ")"
	}
	if r.Status == model.StatusPending {
		entry += " pending"
	}
	return entry
}
