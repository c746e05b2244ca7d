package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"roombook/internal/availability"
	"roombook/internal/booking"
	"roombook/internal/model"
	"roombook/internal/roomapi"
)

const listTimeLayout = "Jan 2, 2006 03:04 PM"

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.flags("login")
	username := fs.String("username", "", "account name")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("username and password are required")
	}

	if err := a.client.Login(ctx, *username, *password); err != nil {
		return err
	}
	u, err := a.client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s).\n", u.Username, u.Role)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := a.flags("register")
	var reg roomapi.Registration
	fs.StringVar(&reg.Username, "username", "", "account name")
	fs.StringVar(&reg.Password, "password", "", "account password")
	fs.StringVar(&reg.Email, "email", "", "contact email")
	fs.StringVar(&reg.FirstName, "first", "", "first name")
	fs.StringVar(&reg.LastName, "last", "", "last name")
	fs.Int64Var(&reg.TelegramID, "telegram", 0, "telegram chat id for notifications")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if reg.Username == "" || reg.Password == "" {
		return errors.New("username and password are required")
	}

	u, err := a.client.Register(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Account %s created. An administrator has to approve it before you can log in.\n", u.Username)
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	u, err := a.client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (%s), role %s\n", u.Username, u.DisplayName(), u.Role)
	return nil
}

func (a *app) floors(ctx context.Context) error {
	floors, err := a.client.Floors(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFLOOR")
	for _, f := range floors {
		fmt.Fprintf(tw, "%d\t%s\n", f.ID, f.Name)
	}
	return tw.Flush()
}

func (a *app) rooms(ctx context.Context, args []string) error {
	fs := a.flags("rooms")
	floor := fs.Int64("floor", 0, "only rooms of this floor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rooms, err := a.client.Rooms(ctx, optionalID(*floor))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROOM\tFLOOR")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.ID, r.Name, r.Floor.Name)
	}
	return tw.Flush()
}

func (a *app) availability(ctx context.Context, args []string) error {
	fs := a.flags("availability")
	date := fs.String("date", "", "day (YYYY-MM-DD)")
	rooms := fs.String("rooms", "", "comma separated room ids")
	floor := fs.Int64("floor", 0, "all rooms of this floor")
	start := fs.Int("start", -1, "also list end hours for this start hour")
	if err := fs.Parse(args); err != nil {
		return err
	}

	day, err := booking.ParseDate(*date, a.loc)
	if err != nil {
		return err
	}
	ids, err := a.resolveRooms(ctx, *rooms, *floor)
	if err != nil {
		return err
	}

	result, err := a.planner.Refresh(ctx, booking.Query{Date: day, RoomIDs: ids})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Free hours on %s:", result.Date)
	if len(result.AvailableHours) == 0 {
		fmt.Fprint(a.out, " none")
	}
	for _, h := range result.AvailableHours {
		fmt.Fprintf(a.out, " %s,", availability.FormatHour(h))
	}
	fmt.Fprintln(a.out)

	for _, s := range result.UnavailableSlots {
		fmt.Fprintf(a.out, "  %s busy %s to %s\n", s.RoomName, s.StartTime, s.EndTime)
	}

	if *start >= 0 {
		ends := a.planner.EndOptions(booking.Hour(*start))
		labels := make([]string, len(ends))
		for i, h := range ends {
			labels[i] = availability.FormatHour(h)
		}
		fmt.Fprintf(a.out, "Starting %s you can stay until: %s\n", availability.FormatHour(*start), strings.Join(labels, ", "))
	}
	return nil
}

type slotFlags struct {
	date  *string
	to    *string
	start *int
	end   *int
	rooms *string
	floor *int64
	force *bool
}

func (a *app) slotFlags(fs *flag.FlagSet, camp bool) slotFlags {
	f := slotFlags{
		date:  fs.String("date", "", "day (YYYY-MM-DD)"),
		start: fs.Int("start", -1, "start hour 0-23"),
		end:   fs.Int("end", -1, "end hour 1-24"),
		rooms: fs.String("rooms", "", "comma separated room ids"),
		floor: fs.Int64("floor", 0, "book every room of this floor"),
		force: fs.Bool("force", false, "submit even if the hours look taken"),
	}
	if camp {
		f.to = fs.String("to", "", "last day (YYYY-MM-DD)")
	}
	return f
}

// fill drives form through the same steps an interactive client would.
func (a *app) fill(form *booking.Form, f slotFlags, roomIDs []int64, floorID *int64) error {
	form.SetRooms(roomIDs, floorID)

	if *f.date != "" {
		day, err := booking.ParseDate(*f.date, a.loc)
		if err != nil {
			return err
		}
		form.SetDate(day)
	}
	if f.to != nil && *f.to != "" {
		last, err := booking.ParseDate(*f.to, a.loc)
		if err != nil {
			return err
		}
		form.SetEndDate(last)
	}
	if *f.start >= 0 {
		form.SetStart(*f.start)
	}
	if *f.end >= 0 {
		form.SetEnd(*f.end)
	}
	return nil
}

// precheck refuses a regular selection whose end is not reachable from its
// start according to current availability.
func (a *app) precheck(ctx context.Context, sel booking.Selection, roomIDs []int64, excludeID int64) error {
	reg, ok := sel.(booking.Regular)
	if !ok || reg.Validate() != nil || len(roomIDs) == 0 {
		return nil
	}

	result, err := a.planner.Refresh(ctx, booking.Query{Date: reg.Date, RoomIDs: roomIDs, ExcludeID: excludeID})
	if err != nil {
		if roomapi.IsTransport(err) {
			a.logger.Warn().Err(err).Msg("availability check skipped")
			return nil
		}
		return a.explain(err)
	}
	if slices.Contains(result.AvailableHours, *reg.Start) && slices.Contains(a.planner.EndOptions(reg.Start), *reg.End) {
		return nil
	}
	return fmt.Errorf("%s to %s is not free on every selected room (use -force to submit anyway)",
		availability.FormatHour(*reg.Start), availability.FormatHour(*reg.End))
}

func (a *app) book(ctx context.Context, args []string) error {
	return a.create(ctx, "book", model.KindRegular, args)
}

func (a *app) camp(ctx context.Context, args []string) error {
	return a.create(ctx, "camp", model.KindCamp, args)
}

func (a *app) create(ctx context.Context, name string, kind model.Kind, args []string) error {
	fs := a.flags(name)
	f := a.slotFlags(fs, kind == model.KindCamp)
	if err := fs.Parse(args); err != nil {
		return err
	}

	roomIDs, err := parseIDs(*f.rooms)
	if err != nil {
		return err
	}
	floorID := optionalID(*f.floor)

	form := booking.NewForm(kind)
	if err := a.fill(form, f, roomIDs, floorID); err != nil {
		return err
	}
	sel := form.Selection()

	if !*f.force {
		checkIDs := roomIDs
		if floorID != nil && len(checkIDs) == 0 {
			if checkIDs, err = a.resolveRooms(ctx, "", *floorID); err != nil {
				return err
			}
		}
		if err := a.precheck(ctx, sel, checkIDs, 0); err != nil {
			return err
		}
	}

	res, err := a.planner.Submit(ctx, sel, roomIDs, floorID)
	if err != nil {
		return a.explain(err)
	}
	form.Complete()

	fmt.Fprintf(a.out, "Booked %s:\n", booking.Describe(sel))
	a.printReservations([]model.Reservation{*res})
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := a.flags("edit")
	id := fs.Int64("id", 0, "booking id")
	f := a.slotFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("id is required")
	}

	current, err := a.client.GetReservation(ctx, *id)
	if err != nil {
		return a.explain(err)
	}

	roomIDs := current.RoomIDs()
	if *f.rooms != "" {
		if roomIDs, err = parseIDs(*f.rooms); err != nil {
			return err
		}
	}

	start, end := current.Start.In(a.loc), current.End.In(a.loc)
	lastDay := end
	if endHour(end) == availability.HoursPerDay {
		lastDay = end.AddDate(0, 0, -1)
	}
	if *f.date == "" {
		*f.date = start.Format(booking.DateLayout)
	}
	if *f.to == "" && current.Kind == model.KindCamp {
		*f.to = lastDay.Format(booking.DateLayout)
	}
	if *f.start < 0 {
		*f.start = start.Hour()
	}
	if *f.end < 0 {
		*f.end = endHour(end)
	}

	form := booking.NewForm(current.Kind)
	if err := a.fill(form, f, roomIDs, nil); err != nil {
		return err
	}
	sel := form.Selection()

	if !*f.force {
		if err := a.precheck(ctx, sel, roomIDs, *id); err != nil {
			return err
		}
	}

	res, err := a.planner.Edit(ctx, *id, sel, roomIDs)
	if err != nil {
		return a.explain(err)
	}
	form.Complete()

	fmt.Fprintf(a.out, "Updated to %s:\n", booking.Describe(sel))
	a.printReservations([]model.Reservation{*res})
	return nil
}

func (a *app) show(ctx context.Context, args []string) error {
	fs := a.flags("show")
	id := fs.Int64("id", 0, "booking id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := a.client.GetReservation(ctx, *id)
	if err != nil {
		return a.explain(err)
	}
	a.printReservations([]model.Reservation{*res})
	return nil
}

func (a *app) mine(ctx context.Context) error {
	list, err := a.client.MyReservations(ctx)
	if err != nil {
		return a.explain(err)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "You have no bookings.")
		return nil
	}
	a.printReservations(list)
	return nil
}

func (a *app) cancel(ctx context.Context, args []string) error {
	fs := a.flags("cancel")
	id := fs.Int64("id", 0, "booking id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("id is required")
	}
	if err := a.client.CancelReservation(ctx, *id); err != nil {
		return a.explain(err)
	}
	fmt.Fprintf(a.out, "Booking #%d cancelled.\n", *id)
	return nil
}

func (a *app) admin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("admin needs a subcommand: pending, approve, deny, status, delete-all, list, calendar")
	}
	sub, args := args[0], args[1:]

	switch sub {
	case "pending":
		users, err := a.client.PendingUsers(ctx)
		if err != nil {
			return a.explain(err)
		}
		if len(users) == 0 {
			fmt.Fprintln(a.out, "No pending users.")
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tEMAIL")
		for _, u := range users {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Username, strings.TrimSpace(u.FirstName+" "+u.LastName), u.Email)
		}
		return tw.Flush()

	case "approve", "deny":
		fs := a.flags(sub)
		id := fs.Int64("id", 0, "user id")
		role := fs.String("role", string(model.RoleUser), "role to grant: user, mentor, coordinator, admin")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == 0 {
			return errors.New("id is required")
		}
		approve := sub == "approve"
		if err := a.client.ApproveUser(ctx, *id, approve, model.ParseRole(*role)); err != nil {
			return a.explain(err)
		}
		if approve {
			fmt.Fprintf(a.out, "User #%d approved as %s.\n", *id, model.ParseRole(*role))
		} else {
			fmt.Fprintf(a.out, "User #%d denied.\n", *id)
		}
		return nil

	case "status":
		fs := a.flags("status")
		id := fs.Int64("id", 0, "booking id")
		status := fs.String("status", "", "Pending, Approved or Cancelled")
		if err := fs.Parse(args); err != nil {
			return err
		}
		st, err := model.ParseStatus(*status)
		if err != nil {
			return err
		}
		res, err := a.client.SetStatus(ctx, *id, st)
		if err != nil {
			return a.explain(err)
		}
		a.printReservations([]model.Reservation{*res})
		return nil

	case "delete-all":
		fs := a.flags("delete-all")
		yes := fs.Bool("yes", false, "confirm deleting every booking")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if !*yes {
			return errors.New("refusing to delete all bookings without -yes")
		}
		n, err := a.client.DeleteAll(ctx)
		if err != nil {
			return a.explain(err)
		}
		fmt.Fprintf(a.out, "Deleted %d bookings.\n", n)
		return nil

	case "list":
		list, err := a.client.AllReservations(ctx)
		if err != nil {
			return a.explain(err)
		}
		a.printReservations(list)
		return nil

	case "calendar":
		return a.calendar(ctx, args)
	}
	return fmt.Errorf("unknown admin command %q", sub)
}

// explain turns client errors into messages a person can act on.
func (a *app) explain(err error) error {
	if c, ok := roomapi.IsConflict(err); ok {
		fmt.Fprintln(a.out, c.Detail)
		for _, m := range c.Messages {
			fmt.Fprintln(a.out, "  "+m)
		}
		return errors.New("booking rejected")
	}
	switch {
	case booking.IsValidation(err):
		return fmt.Errorf("invalid booking: %w", err)
	case roomapi.IsAuthorization(err):
		return fmt.Errorf("%w (try roomctl login)", err)
	case roomapi.IsNotFound(err):
		return errors.New("booking not found")
	case roomapi.IsTransport(err):
		return fmt.Errorf("server unavailable, please try again later: %w", err)
	}
	return err
}

func (a *app) printReservations(list []model.Reservation) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTYPE\tFROM\tTO\tROOMS\tBY")
	for _, r := range list {
		names := make([]string, len(r.Rooms))
		for i, room := range r.Rooms {
			names[i] = room.Name
		}
		by := ""
		if r.User != nil {
			by = r.User.Username
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Kind,
			r.Start.In(a.loc).Format(listTimeLayout),
			r.End.In(a.loc).Format(listTimeLayout),
			strings.Join(names, ", "), by)
	}
	_ = tw.Flush()
}

func (a *app) resolveRooms(ctx context.Context, rooms string, floor int64) ([]int64, error) {
	ids, err := parseIDs(rooms)
	if err != nil {
		return nil, err
	}
	if floor == 0 {
		if len(ids) == 0 {
			return nil, errors.New(booking.ReasonNoRooms)
		}
		return ids, nil
	}

	onFloor, err := a.client.Rooms(ctx, &floor)
	if err != nil {
		return nil, err
	}
	for _, r := range onFloor {
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("floor %d has no rooms", floor)
	}
	return ids, nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid room id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// endHour maps midnight of the following day to 24.
func endHour(t time.Time) int {
	if t.Hour() == 0 && t.Minute() == 0 {
		return availability.HoursPerDay
	}
	return t.Hour()
}
