package reminders

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roombook/internal/model"
)

type mockBookingStore struct {
	mock.Mock
}

func (m *mockBookingStore) UpcomingBookings(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	args := m.Called(ctx, from, to)
	list, _ := args.Get(0).([]model.Reservation)
	return list, args.Error(1)
}

func (m *mockBookingStore) MarkReminderSent(ctx context.Context, bookingID int64) error {
	return m.Called(ctx, bookingID).Error(0)
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []int64
	failOn map[int64]bool
}

func (n *recordingNotifier) SendReminder(_ context.Context, r model.Reservation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOn[r.ID] {
		return errors.New("chat not found")
	}
	n.sent = append(n.sent, r.ID)
	return nil
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

var fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(store BookingStore, notifier Notifier, metrics *Metrics) *Service {
	svc := NewService(&Config{HoursBefore: 24, MaxConcurrentNotifications: 2}, store, notifier, metrics, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestCheckNow_SendsAndMarks(t *testing.T) {
	store := &mockBookingStore{}
	store.On("UpcomingBookings", mock.Anything, fixedNow, fixedNow.Add(24*time.Hour)).
		Return([]model.Reservation{{ID: 1}, {ID: 2}, {ID: 3}}, nil)
	store.On("MarkReminderSent", mock.Anything, int64(1)).Return(nil)
	store.On("MarkReminderSent", mock.Anything, int64(3)).Return(nil)

	notifier := &recordingNotifier{failOn: map[int64]bool{2: true}}
	metrics := NewMetrics("test", prometheus.NewRegistry())
	svc := newTestService(store, notifier, metrics)

	sent := svc.CheckNow(context.Background())

	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []int64{1, 3}, notifier.sent)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkReminderSent", mock.Anything, int64(2))

	assert.Equal(t, float64(2), counterValue(t, metrics.RemindersSentTotal.WithLabelValues("sent")))
	assert.Equal(t, float64(1), counterValue(t, metrics.RemindersSentTotal.WithLabelValues("failed")))
}

func TestCheckNow_MarkFailureStillCountsAsSent(t *testing.T) {
	store := &mockBookingStore{}
	store.On("UpcomingBookings", mock.Anything, mock.Anything, mock.Anything).
		Return([]model.Reservation{{ID: 7}}, nil)
	store.On("MarkReminderSent", mock.Anything, int64(7)).Return(errors.New("locked"))

	svc := newTestService(store, &recordingNotifier{}, nil)

	assert.Equal(t, 1, svc.CheckNow(context.Background()))
}

func TestCheckNow_StoreError(t *testing.T) {
	store := &mockBookingStore{}
	store.On("UpcomingBookings", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("db down"))

	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier, nil)

	assert.Zero(t, svc.CheckNow(context.Background()))
	assert.Empty(t, notifier.sent)
}

type countingStore struct {
	checks atomic.Int32
}

func (c *countingStore) UpcomingBookings(context.Context, time.Time, time.Time) ([]model.Reservation, error) {
	c.checks.Add(1)
	return nil, nil
}

func (c *countingStore) MarkReminderSent(context.Context, int64) error {
	return nil
}

func TestStartStop(t *testing.T) {
	store := &countingStore{}

	svc := NewService(&Config{CheckInterval: 10 * time.Millisecond}, store, &recordingNotifier{}, nil, nil)
	svc.Start(context.Background())
	svc.Start(context.Background())

	assert.Eventually(t, func() bool {
		return store.checks.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	svc.Stop()
	svc.Stop()
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(&Config{}, nil, nil, nil, nil)
	assert.Equal(t, 15*time.Minute, svc.config.CheckInterval)
	assert.Equal(t, 24, svc.config.HoursBefore)
	assert.Equal(t, 10, svc.config.MaxConcurrentNotifications)
}
