package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roombook/internal/availability"
	"roombook/internal/model"
)

type mockAuthority struct {
	mock.Mock
}

func (m *mockAuthority) Reservations(ctx context.Context, date time.Time, roomIDs []int64) ([]model.Reservation, error) {
	args := m.Called(ctx, date, roomIDs)
	res, _ := args.Get(0).([]model.Reservation)
	return res, args.Error(1)
}

func (m *mockAuthority) CreateReservation(ctx context.Context, req Request) (*model.Reservation, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

func (m *mockAuthority) UpdateReservation(ctx context.Context, id int64, req Request) (*model.Reservation, error) {
	args := m.Called(ctx, id, req)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

// gatedAuthority blocks Reservations for a given date until released.
type gatedAuthority struct {
	mockAuthority
	slowDate time.Time
	started  chan struct{}
	release  chan struct{}
	slow     []model.Reservation
	fast     []model.Reservation
}

func (g *gatedAuthority) Reservations(ctx context.Context, date time.Time, _ []int64) ([]model.Reservation, error) {
	if date.Equal(g.slowDate) {
		close(g.started)
		<-g.release
		return g.slow, nil
	}
	return g.fast, nil
}

func newPlanner(a Authority) *Planner {
	return NewPlanner(availability.NewEngine(est), a, zerolog.Nop())
}

func busy(id int64, roomID int64, day, from, to int) model.Reservation {
	return model.Reservation{
		ID:     id,
		Rooms:  []model.Room{{ID: roomID, Name: "R"}},
		Start:  time.Date(2024, 6, day, from, 0, 0, 0, est),
		End:    time.Date(2024, 6, day, to, 0, 0, 0, est),
		Status: model.StatusApproved,
	}
}

func TestPlanner_Refresh(t *testing.T) {
	a := new(mockAuthority)
	a.On("Reservations", mock.Anything, date(2024, 6, 1), []int64{1}).
		Return([]model.Reservation{busy(1, 1, 1, 16, 18)}, nil)

	p := newPlanner(a)
	res, err := p.Refresh(context.Background(), Query{Date: date(2024, 6, 1), RoomIDs: []int64{1}})
	require.NoError(t, err)

	assert.NotContains(t, res.AvailableHours, 16)
	assert.NotContains(t, res.AvailableHours, 17)
	assert.Equal(t, res, p.Current())
	assert.Equal(t, []int{14, 15, 16}, p.EndOptions(Hour(13)))
	assert.Empty(t, p.EndOptions(nil))
	a.AssertExpectations(t)
}

func TestPlanner_RefreshExcludesEditedReservation(t *testing.T) {
	a := new(mockAuthority)
	a.On("Reservations", mock.Anything, date(2024, 6, 1), []int64{1}).
		Return([]model.Reservation{busy(7, 1, 1, 10, 12)}, nil)

	p := newPlanner(a)
	res, err := p.Refresh(context.Background(), Query{Date: date(2024, 6, 1), RoomIDs: []int64{1}, ExcludeID: 7})
	require.NoError(t, err)
	assert.Len(t, res.AvailableHours, availability.HoursPerDay)
	assert.Empty(t, res.UnavailableSlots)
}

func TestPlanner_TransportFailureResetsAvailability(t *testing.T) {
	a := new(mockAuthority)
	a.On("Reservations", mock.Anything, date(2024, 6, 1), []int64{1}).Return([]model.Reservation{}, nil).Once()
	a.On("Reservations", mock.Anything, date(2024, 6, 2), []int64{1}).Return(nil, errors.New("connection refused")).Once()

	p := newPlanner(a)
	_, err := p.Refresh(context.Background(), Query{Date: date(2024, 6, 1), RoomIDs: []int64{1}})
	require.NoError(t, err)
	require.NotEmpty(t, p.Current().AvailableHours)

	_, err = p.Refresh(context.Background(), Query{Date: date(2024, 6, 2), RoomIDs: []int64{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, p.Current().AvailableHours)
	assert.Empty(t, p.Current().UnavailableSlots)
}

func TestPlanner_StaleResponseDiscarded(t *testing.T) {
	g := &gatedAuthority{
		slowDate: date(2024, 6, 1),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		slow:     []model.Reservation{busy(1, 1, 1, 9, 10)},
		fast:     []model.Reservation{busy(2, 1, 2, 14, 15)},
	}
	p := newPlanner(g)

	type outcome struct {
		res availability.Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := p.Refresh(context.Background(), Query{Date: date(2024, 6, 1), RoomIDs: []int64{1}})
		first <- outcome{res, err}
	}()
	<-g.started

	latest, err := p.Refresh(context.Background(), Query{Date: date(2024, 6, 2), RoomIDs: []int64{1}})
	require.NoError(t, err)
	assert.NotContains(t, latest.AvailableHours, 14)

	close(g.release)
	stale := <-first
	assert.ErrorIs(t, stale.err, ErrSuperseded)
	assert.Equal(t, "2024-06-02", p.Current().Date)
	assert.Contains(t, p.Current().AvailableHours, 9)
}

func TestPlanner_ResetDiscardsInFlight(t *testing.T) {
	g := &gatedAuthority{
		slowDate: date(2024, 6, 1),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	p := newPlanner(g)

	done := make(chan error, 1)
	go func() {
		_, err := p.Refresh(context.Background(), Query{Date: date(2024, 6, 1), RoomIDs: []int64{1}})
		done <- err
	}()
	<-g.started
	p.Reset()
	close(g.release)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Empty(t, p.Current().AvailableHours)
}

func TestPlanner_SubmitInvalidSkipsAuthority(t *testing.T) {
	a := new(mockAuthority)
	p := newPlanner(a)

	_, err := p.Submit(context.Background(), Regular{Date: date(2024, 6, 1), Start: Hour(14), End: Hour(13)}, []int64{1}, nil)
	require.Error(t, err)
	assert.Equal(t, ReasonEndBeforeStart, err.Error())

	_, err = p.Submit(context.Background(), Camp{StartDate: date(2024, 7, 1), EndDate: date(2024, 6, 30), Start: Hour(9), End: Hour(10)}, []int64{1}, nil)
	require.Error(t, err)
	assert.Equal(t, ReasonEndDateBeforeStartDate, err.Error())

	a.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything)
}

func TestPlanner_SubmitSendsWireRequest(t *testing.T) {
	a := new(mockAuthority)
	want := Request{
		RoomIDs: []int64{1},
		Start:   "2024-06-01T23:00:00",
		End:     "2024-06-02T00:00:00",
		Kind:    model.KindRegular,
	}
	a.On("CreateReservation", mock.Anything, want).Return(&model.Reservation{ID: 5, Status: model.StatusPending}, nil)

	p := newPlanner(a)
	res, err := p.Submit(context.Background(), Regular{Date: date(2024, 6, 1), Start: Hour(23), End: Hour(24)}, []int64{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.ID)
	a.AssertExpectations(t)
}

func TestPlanner_SubmitPassesConflictThrough(t *testing.T) {
	conflict := errors.New("rooms already booked")
	a := new(mockAuthority)
	a.On("CreateReservation", mock.Anything, mock.Anything).Return(nil, conflict)

	p := newPlanner(a)
	_, err := p.Submit(context.Background(), Regular{Date: date(2024, 6, 1), Start: Hour(9), End: Hour(10)}, []int64{1}, nil)
	assert.Same(t, conflict, err)
}

func TestPlanner_Edit(t *testing.T) {
	a := new(mockAuthority)
	a.On("UpdateReservation", mock.Anything, int64(9), mock.MatchedBy(func(r Request) bool {
		return r.Start == "2024-06-01T10:00:00" && r.End == "2024-06-01T11:00:00"
	})).Return(&model.Reservation{ID: 9}, nil)

	p := newPlanner(a)
	_, err := p.Edit(context.Background(), 9, Regular{Date: date(2024, 6, 1), Start: Hour(10), End: Hour(11)}, []int64{1})
	require.NoError(t, err)
	a.AssertExpectations(t)
}
