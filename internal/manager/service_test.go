package manager

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombook/internal/availability"
	"roombook/internal/booking"
	"roombook/internal/config"
	"roombook/internal/events"
	"roombook/internal/model"
	"roombook/internal/store"
	"roombook/shared/access"
)

var est = time.FixedZone("EST", -5*60*60)

type fixture struct {
	svc    *Service
	db     *store.DB
	seen   []events.Type
	admin  *model.User
	user   *model.User
	mentor *model.User
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "rb.db"), est, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SyncCatalog(ctx, &config.Catalog{Floors: []config.FloorConfig{
		{ID: 1, Name: "Ground", Rooms: []config.RoomConfig{{ID: 10, Name: "Hall"}, {ID: 11, Name: "Studio"}}},
		{ID: 2, Name: "Second", Rooms: []config.RoomConfig{{ID: 20, Name: "Lab"}}},
	}}))

	f := &fixture{db: db}
	bus := events.NewBus(zerolog.Nop())
	bus.Subscribe(func(_ context.Context, e events.Event) error {
		f.seen = append(f.seen, e.Type)
		return nil
	}, events.BookingCreated, events.BookingUpdated, events.BookingCancelled, events.BookingStatusChanged,
		events.UserRegistered, events.UserApproved, events.UserDenied)

	f.svc = NewService(db, db, access.NewService(zerolog.Nop()), availability.NewEngine(est), bus, opts, zerolog.Nop())

	mk := func(name string, role model.Role) *model.User {
		u, err := db.CreateUser(ctx, store.NewUser{Username: name, Password: "pw", Role: role, Approved: true})
		require.NoError(t, err)
		return u
	}
	f.admin = mk("admin", model.RoleAdmin)
	f.user = mk("ann", model.RoleUser)
	f.mentor = mk("mia", model.RoleMentor)
	return f
}

func request(rooms []int64, start, end string, kind model.Kind) booking.Request {
	return booking.Request{RoomIDs: rooms, Start: start, End: end, Kind: kind}
}

func TestCreate_PendingAndConflict(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.user, request([]int64{10}, "2024-06-01T10:00:00", "2024-06-01T12:00:00", model.KindRegular))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.True(t, r.Start.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, est)))

	_, err = f.svc.Create(ctx, f.mentor, request([]int64{10, 20}, "2024-06-01T11:00:00", "2024-06-01T13:00:00", model.KindRegular))
	var ce *store.ConflictError
	require.True(t, errors.As(err, &ce))
	require.Len(t, ce.Conflicts, 1)
	assert.Equal(t, int64(10), ce.Conflicts[0].RoomID)

	assert.Equal(t, []events.Type{events.BookingCreated}, f.seen)
}

func TestCreate_AutoApproveRegularOnly(t *testing.T) {
	f := newFixture(t, Options{AutoApproveRegular: true})
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.user, request([]int64{10}, "2024-06-01T10:00:00", "2024-06-01T11:00:00", model.KindRegular))
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, r.Status)

	camp, err := f.svc.Create(ctx, f.mentor, request([]int64{11}, "2024-06-03T09:00:00", "2024-06-07T17:00:00", model.KindCamp))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, camp.Status)
	assert.Equal(t, model.KindCamp, camp.Kind)
}

func TestCreate_CampRequiresRole(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Create(context.Background(), f.user, request([]int64{10}, "2024-06-03T09:00:00", "2024-06-07T17:00:00", model.KindCamp))
	assert.True(t, access.IsAccessDenied(err))
}

func TestCreate_FloorExpandsRooms(t *testing.T) {
	f := newFixture(t, Options{})
	floor := int64(1)

	r, err := f.svc.Create(context.Background(), f.user, booking.Request{
		RoomIDs: []int64{10}, FloorID: &floor,
		Start: "2024-06-01T08:00:00", End: "2024-06-01T09:00:00",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, r.RoomIDs())
	assert.Equal(t, model.KindRegular, r.Kind)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  booking.Request
	}{
		{name: "no rooms", req: request(nil, "2024-06-01T08:00:00", "2024-06-01T09:00:00", "")},
		{name: "end before start", req: request([]int64{10}, "2024-06-01T10:00:00", "2024-06-01T09:00:00", "")},
		{name: "bad datetime", req: request([]int64{10}, "tomorrow", "2024-06-01T09:00:00", "")},
		{name: "missing end", req: request([]int64{10}, "2024-06-01T08:00:00", "", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.user, tt.req)
			assert.True(t, booking.IsValidation(err), "got %v", err)
		})
	}
}

func TestUpdateAndCancel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.user, request([]int64{10}, "2024-06-01T10:00:00", "2024-06-01T12:00:00", ""))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.mentor, r.ID, request([]int64{10}, "2024-06-01T11:00:00", "2024-06-01T13:00:00", ""))
	assert.True(t, access.IsAccessDenied(err))

	updated, err := f.svc.Update(ctx, f.user, r.ID, request([]int64{10}, "2024-06-01T11:00:00", "2024-06-01T13:00:00", ""))
	require.NoError(t, err)
	assert.True(t, updated.End.Equal(time.Date(2024, 6, 1, 13, 0, 0, 0, est)))

	cancelled, err := f.svc.Cancel(ctx, f.user, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	again, err := f.svc.Cancel(ctx, f.admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, again.Status)

	_, err = f.svc.Update(ctx, f.user, r.ID, request([]int64{10}, "2024-06-01T11:00:00", "2024-06-01T13:00:00", ""))
	assert.ErrorIs(t, err, ErrNotEditable)

	assert.Equal(t, []events.Type{events.BookingCreated, events.BookingUpdated, events.BookingCancelled}, f.seen)
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.user, request([]int64{10}, "2024-06-01T10:00:00", "2024-06-01T12:00:00", ""))
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, f.user, r.ID, model.StatusApproved)
	assert.True(t, access.IsAccessDenied(err))

	approved, err := f.svc.SetStatus(ctx, f.admin, r.ID, model.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)

	all, err := f.svc.Visible(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	own, err := f.svc.Visible(ctx, f.mentor)
	require.NoError(t, err)
	assert.Empty(t, own)

	_, err = f.svc.DeleteAll(ctx, f.mentor)
	assert.True(t, access.IsAccessDenied(err))
	n, err := f.svc.DeleteAll(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRegistrationFlow(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	u, err := f.svc.Register(ctx, store.NewUser{Username: "newbie", Password: "pw", Role: model.RoleAdmin, Approved: true})
	require.NoError(t, err)
	assert.False(t, u.Approved)
	assert.Equal(t, model.RoleUser, u.Role)

	pending, err := f.svc.PendingUsers(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved, err := f.svc.DecideUser(ctx, f.admin, u.ID, true, model.RoleCoordinator)
	require.NoError(t, err)
	assert.Equal(t, model.RoleCoordinator, approved.Role)

	other, err := f.svc.Register(ctx, store.NewUser{Username: "spam", Password: "pw"})
	require.NoError(t, err)
	_, err = f.svc.DecideUser(ctx, f.admin, other.ID, false, "")
	require.NoError(t, err)

	assert.Equal(t, []events.Type{
		events.UserRegistered, events.UserApproved, events.UserRegistered, events.UserDenied,
	}, f.seen)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.user, request([]int64{10}, "2024-06-01T10:00:00", "2024-06-01T12:00:00", ""))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.user, request([]int64{20}, "2024-06-02T10:00:00", "2024-06-02T12:00:00", ""))
	require.NoError(t, err)

	res, err := f.svc.Availability(ctx, time.Date(2024, 6, 1, 0, 0, 0, 0, est), []int64{10, 11})
	require.NoError(t, err)
	assert.NotContains(t, res.AvailableHours, 10)
	assert.NotContains(t, res.AvailableHours, 11)
	assert.Contains(t, res.AvailableHours, 12)
	require.Len(t, res.UnavailableSlots, 1)
	assert.Equal(t, int64(10), res.UnavailableSlots[0].RoomID)
}
