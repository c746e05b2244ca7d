package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"roombook/internal/availability"
	"roombook/internal/booking"
	"roombook/internal/events"
	"roombook/internal/metrics"
	"roombook/internal/model"
	"roombook/internal/store"
	"roombook/shared/access"
)

// ErrNotEditable is returned when changing a cancelled reservation.
var ErrNotEditable = errors.New("cancelled bookings cannot be edited")

// ErrNoRooms is returned when a day listing names no rooms.
var ErrNoRooms = errors.New("room_ids is required with date")

// BookingRepository provides booking operations.
type BookingRepository interface {
	CreateBooking(ctx context.Context, in store.NewBooking) (*model.Reservation, error)
	UpdateBooking(ctx context.Context, id int64, ch store.BookingChange) (*model.Reservation, error)
	SetStatus(ctx context.Context, id int64, status model.Status) (*model.Reservation, error)
	GetBooking(ctx context.Context, id int64) (*model.Reservation, error)
	ListBookings(ctx context.Context, f store.BookingFilter) ([]model.Reservation, error)
	DeleteAllBookings(ctx context.Context) (int64, error)
	FloorRoomIDs(ctx context.Context, floorID int64) ([]int64, error)
}

// UserRepository provides account operations.
type UserRepository interface {
	CreateUser(ctx context.Context, in store.NewUser) (*model.User, error)
	PendingUsers(ctx context.Context) ([]model.User, error)
	ApproveUser(ctx context.Context, id int64, role model.Role) (*model.User, error)
	DenyUser(ctx context.Context, id int64) (*model.User, error)
}

// Options tune booking rules.
type Options struct {
	// AutoApproveRegular creates regular reservations as Approved.
	AutoApproveRegular bool
}

// Service enforces booking rules on top of the store and publishes events.
type Service struct {
	bookings BookingRepository
	users    UserRepository
	access   *access.Service
	engine   *availability.Engine
	bus      *events.Bus
	opts     Options
	logger   zerolog.Logger
}

// NewService creates a new manager service.
func NewService(
	bookings BookingRepository,
	users UserRepository,
	acl *access.Service,
	engine *availability.Engine,
	bus *events.Bus,
	opts Options,
	logger zerolog.Logger,
) *Service {
	return &Service{
		bookings: bookings,
		users:    users,
		access:   acl,
		engine:   engine,
		bus:      bus,
		opts:     opts,
		logger:   logger.With().Str("component", "manager").Logger(),
	}
}

func (s *Service) loc() *time.Location {
	return s.engine.Location()
}

func (s *Service) dayReservations(ctx context.Context, date time.Time, roomIDs []int64) ([]model.Reservation, error) {
	from := availability.DayStart(date, s.loc())
	to := availability.DayStart(from.AddDate(0, 0, 1), s.loc())
	return s.bookings.ListBookings(ctx, store.BookingFilter{RoomIDs: roomIDs, From: from, To: to})
}

// DayReservations returns reservations of roomIDs that overlap the calendar
// day of date. roomIDs must not be empty. Non-admins only see the owner of
// their own reservations.
func (s *Service) DayReservations(ctx context.Context, actor *model.User, date time.Time, roomIDs []int64) ([]model.Reservation, error) {
	if err := s.access.CanAccess(actor); err != nil {
		return nil, err
	}
	if len(roomIDs) == 0 {
		return nil, ErrNoRooms
	}
	list, err := s.dayReservations(ctx, date, roomIDs)
	if err != nil {
		return nil, err
	}
	if actor.Role.IsAdmin() {
		return list, nil
	}
	for i := range list {
		if list[i].User != nil && list[i].User.ID != actor.ID {
			list[i].User = nil
		}
	}
	return list, nil
}

// Availability computes the day's hour-by-hour availability for roomIDs.
func (s *Service) Availability(ctx context.Context, date time.Time, roomIDs []int64) (availability.Result, error) {
	reservations, err := s.dayReservations(ctx, date, roomIDs)
	if err != nil {
		return availability.Result{}, err
	}
	started := time.Now()
	result := s.engine.Compute(date, roomIDs, reservations)
	metrics.ObserveAvailability(time.Since(started).Seconds())
	return result, nil
}

// Visible lists every reservation for admins and the caller's own otherwise.
func (s *Service) Visible(ctx context.Context, actor *model.User) ([]model.Reservation, error) {
	if err := s.access.CanAccess(actor); err != nil {
		return nil, err
	}
	if actor.Role.IsAdmin() {
		return s.bookings.ListBookings(ctx, store.BookingFilter{})
	}
	return s.Mine(ctx, actor)
}

// Mine lists the caller's reservations.
func (s *Service) Mine(ctx context.Context, actor *model.User) ([]model.Reservation, error) {
	if err := s.access.CanAccess(actor); err != nil {
		return nil, err
	}
	return s.bookings.ListBookings(ctx, store.BookingFilter{UserID: &actor.ID})
}

// Get returns a reservation visible to actor.
func (s *Service) Get(ctx context.Context, actor *model.User, id int64) (*model.Reservation, error) {
	r, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(actor, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Create books the requested rooms. A floor id expands to all its rooms.
func (s *Service) Create(ctx context.Context, actor *model.User, req booking.Request) (*model.Reservation, error) {
	kind := model.ParseKind(string(req.Kind))
	if err := s.access.CanBook(actor, kind); err != nil {
		return nil, err
	}
	start, end, roomIDs, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	status := model.StatusPending
	if s.opts.AutoApproveRegular && kind == model.KindRegular {
		status = model.StatusApproved
	}

	r, err := s.bookings.CreateBooking(ctx, store.NewBooking{
		UserID:  actor.ID,
		RoomIDs: roomIDs,
		Start:   start,
		End:     end,
		Kind:    kind,
		Status:  status,
	})
	if err != nil {
		return nil, s.countConflict(err)
	}

	metrics.IncBookingCreated(string(kind), string(r.Status))
	s.logger.Info().Int64("booking_id", r.ID).Int64("user_id", actor.ID).Str("kind", string(kind)).Msg("booking created")
	s.bus.Publish(ctx, events.Event{Type: events.BookingCreated, Reservation: r, Actor: actor})
	return r, nil
}

// Update replaces rooms and interval of a reservation owned by actor.
func (s *Service) Update(ctx context.Context, actor *model.User, id int64, req booking.Request) (*model.Reservation, error) {
	current, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanModify(actor, current); err != nil {
		return nil, err
	}
	if current.Status == model.StatusCancelled {
		return nil, ErrNotEditable
	}

	kind := model.ParseKind(string(req.Kind))
	if err := s.access.CanBook(actor, kind); err != nil {
		return nil, err
	}
	start, end, roomIDs, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	r, err := s.bookings.UpdateBooking(ctx, id, store.BookingChange{RoomIDs: roomIDs, Start: start, End: end, Kind: kind})
	if err != nil {
		return nil, s.countConflict(err)
	}

	s.logger.Info().Int64("booking_id", id).Int64("user_id", actor.ID).Msg("booking updated")
	s.bus.Publish(ctx, events.Event{Type: events.BookingUpdated, Reservation: r, Actor: actor})
	return r, nil
}

// Cancel soft-deletes a reservation. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, actor *model.User, id int64) (*model.Reservation, error) {
	current, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanModify(actor, current); err != nil {
		return nil, err
	}
	if current.Status == model.StatusCancelled {
		return current, nil
	}

	r, err := s.bookings.SetStatus(ctx, id, model.StatusCancelled)
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCancelled()
	s.logger.Info().Int64("booking_id", id).Int64("user_id", actor.ID).Msg("booking cancelled")
	s.bus.Publish(ctx, events.Event{Type: events.BookingCancelled, Reservation: r, Actor: actor})
	return r, nil
}

// SetStatus lets an administrator approve, reset or cancel a reservation.
func (s *Service) SetStatus(ctx context.Context, actor *model.User, id int64, status model.Status) (*model.Reservation, error) {
	if err := s.access.RequireAdmin(actor); err != nil {
		return nil, err
	}
	current, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}

	r, err := s.bookings.SetStatus(ctx, id, status)
	if err != nil {
		return nil, s.countConflict(err)
	}

	metrics.IncAdminDecision(string(status))
	s.logger.Info().Int64("booking_id", id).Str("status", string(status)).Int64("admin_id", actor.ID).Msg("booking status changed")

	typ := events.BookingStatusChanged
	if status == model.StatusCancelled {
		typ = events.BookingCancelled
	}
	s.bus.Publish(ctx, events.Event{Type: typ, Reservation: r, Actor: actor})
	return r, nil
}

// RequireAdmin reports whether actor may use administrative endpoints.
func (s *Service) RequireAdmin(actor *model.User) error {
	return s.access.RequireAdmin(actor)
}

// DeleteAll removes every reservation.
func (s *Service) DeleteAll(ctx context.Context, actor *model.User) (int64, error) {
	if err := s.access.RequireAdmin(actor); err != nil {
		return 0, err
	}
	n, err := s.bookings.DeleteAllBookings(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn().Int64("deleted", n).Int64("admin_id", actor.ID).Msg("all bookings deleted")
	return n, nil
}

// Register creates a pending account with the basic role.
func (s *Service) Register(ctx context.Context, in store.NewUser) (*model.User, error) {
	in.Role = model.RoleUser
	in.Approved = false
	u, err := s.users.CreateUser(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", u.ID).Str("username", u.Username).Msg("account registered")
	s.bus.Publish(ctx, events.Event{Type: events.UserRegistered, User: u})
	return u, nil
}

// PendingUsers lists accounts awaiting a decision.
func (s *Service) PendingUsers(ctx context.Context, actor *model.User) ([]model.User, error) {
	if err := s.access.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return s.users.PendingUsers(ctx)
}

// DecideUser approves the account with role, or denies and removes it.
func (s *Service) DecideUser(ctx context.Context, actor *model.User, id int64, approve bool, role model.Role) (*model.User, error) {
	if err := s.access.RequireAdmin(actor); err != nil {
		return nil, err
	}

	var (
		u   *model.User
		err error
		typ events.Type
	)
	if approve {
		u, err = s.users.ApproveUser(ctx, id, role)
		typ = events.UserApproved
	} else {
		u, err = s.users.DenyUser(ctx, id)
		typ = events.UserDenied
	}
	if err != nil {
		return nil, err
	}

	decision := "deny_user"
	if approve {
		decision = "approve_user"
	}
	metrics.IncAdminDecision(decision)
	s.logger.Info().Int64("user_id", id).Str("decision", decision).Str("role", string(role)).Msg("account reviewed")
	s.bus.Publish(ctx, events.Event{Type: typ, User: u, Actor: actor})
	return u, nil
}

// resolve parses the interval and expands a floor into its rooms.
func (s *Service) resolve(ctx context.Context, req booking.Request) (time.Time, time.Time, []int64, error) {
	start, end, err := req.Times(s.loc())
	if err != nil {
		return time.Time{}, time.Time{}, nil, &booking.ValidationError{Reason: err.Error()}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, nil, &booking.ValidationError{Reason: booking.ReasonEndBeforeStart}
	}

	roomIDs := append([]int64(nil), req.RoomIDs...)
	if req.FloorID != nil {
		floorRooms, err := s.bookings.FloorRoomIDs(ctx, *req.FloorID)
		if err != nil {
			return time.Time{}, time.Time{}, nil, err
		}
		if len(floorRooms) == 0 {
			return time.Time{}, time.Time{}, nil, &booking.ValidationError{
				Reason: fmt.Sprintf("floor %d has no rooms", *req.FloorID),
			}
		}
		roomIDs = append(roomIDs, floorRooms...)
	}
	if len(roomIDs) == 0 {
		return time.Time{}, time.Time{}, nil, &booking.ValidationError{Reason: booking.ReasonNoRooms}
	}
	return start, end, roomIDs, nil
}

func (s *Service) countConflict(err error) error {
	var ce *store.ConflictError
	if errors.As(err, &ce) {
		metrics.IncBookingConflict()
	}
	return err
}
