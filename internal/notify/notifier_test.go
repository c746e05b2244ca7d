package notify

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombook/internal/events"
	"roombook/internal/model"
)

type sent struct {
	chatID int64
	text   string
	file   string
}

type fakeSender struct {
	mu   sync.Mutex
	out  []sent
	fail bool
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.out = append(f.out, sent{chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) SendDocument(_ context.Context, chatID int64, filename string, data io.Reader, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := io.ReadAll(data)
	f.out = append(f.out, sent{chatID: chatID, file: filename, text: string(b)})
	return nil
}

var est = time.FixedZone("EST", -5*60*60)

func reservation(status model.Status) *model.Reservation {
	return &model.Reservation{
		ID:     5,
		User:   &model.User{ID: 1, Username: "ann", FirstName: "Ann", TelegramID: 100},
		Rooms:  []model.Room{{ID: 1, Name: "Hall", Floor: model.Floor{Name: "Ground"}}},
		Start:  time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC),
		End:    time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC),
		Status: status,
		Kind:   model.KindRegular,
	}
}

func TestNotifier_BookingCreatedPending(t *testing.T) {
	fs := &fakeSender{}
	n := New(fs, []int64{900, 901}, est, "", zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	n.Subscribe(bus)

	bus.Publish(context.Background(), events.Event{Type: events.BookingCreated, Reservation: reservation(model.StatusPending)})

	require.Len(t, fs.out, 3)
	assert.Equal(t, int64(100), fs.out[0].chatID)
	assert.Contains(t, fs.out[0].text, "Hello Ann,")
	assert.Contains(t, fs.out[0].text, "Hall (Floor Ground)")
	assert.Contains(t, fs.out[0].text, "June 01, 2024 at 10:00 AM")
	assert.Contains(t, fs.out[0].text, "pending approval")
	assert.Equal(t, int64(900), fs.out[1].chatID)
	assert.Contains(t, fs.out[1].text, "New booking #5 by ann")
}

func TestNotifier_ApprovedBookingSkipsAdmins(t *testing.T) {
	fs := &fakeSender{}
	n := New(fs, []int64{900}, est, "", zerolog.Nop())

	require.NoError(t, n.Handle(context.Background(), events.Event{Type: events.BookingCreated, Reservation: reservation(model.StatusApproved)}))
	require.Len(t, fs.out, 1)
	assert.Contains(t, fs.out[0].text, "has been approved")
}

func TestNotifier_UserWithoutChatIsSkipped(t *testing.T) {
	fs := &fakeSender{}
	n := New(fs, nil, est, "", zerolog.Nop())

	r := reservation(model.StatusCancelled)
	r.User.TelegramID = 0
	require.NoError(t, n.Handle(context.Background(), events.Event{Type: events.BookingCancelled, Reservation: r}))
	assert.Empty(t, fs.out)
}

func TestNotifier_AccountDecision(t *testing.T) {
	fs := &fakeSender{}
	n := New(fs, nil, est, "https://rooms.example.com/", zerolog.Nop())
	u := &model.User{ID: 2, Username: "bob", TelegramID: 200}

	require.NoError(t, n.Handle(context.Background(), events.Event{Type: events.UserApproved, User: u}))
	require.NoError(t, n.Handle(context.Background(), events.Event{Type: events.UserDenied, User: u}))

	require.Len(t, fs.out, 2)
	assert.Contains(t, fs.out[0].text, "https://rooms.example.com/login")
	assert.Contains(t, fs.out[1].text, "denied")
}

func TestNotifier_ErrorsAreReturned(t *testing.T) {
	fs := &fakeSender{fail: true}
	n := New(fs, []int64{900}, est, "", zerolog.Nop())

	err := n.Handle(context.Background(), events.Event{Type: events.UserRegistered, User: &model.User{Username: "c", TelegramID: 1}})
	assert.Error(t, err)
}

func TestNotifier_ReminderAndDocument(t *testing.T) {
	fs := &fakeSender{}
	n := New(fs, []int64{900, 901}, est, "", zerolog.Nop())

	require.NoError(t, n.SendReminder(context.Background(), *reservation(model.StatusApproved)))
	require.NoError(t, n.SendDocument(context.Background(), "June_2024.xlsx", strings.NewReader("xlsx"), "report"))

	require.Len(t, fs.out, 3)
	assert.Contains(t, fs.out[0].text, "Reminder")
	assert.Equal(t, "June_2024.xlsx", fs.out[1].file)
	assert.Equal(t, "xlsx", fs.out[2].text)
}

func TestSendWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, RetryDelays: []time.Duration{time.Millisecond}}

	tests := []struct {
		name    string
		errs    []error
		calls   int
		wantErr bool
	}{
		{name: "success", errs: []error{nil}, calls: 1},
		{name: "rate limited then ok", errs: []error{&TelegramError{Code: 429}, nil}, calls: 2},
		{name: "transient then ok", errs: []error{errors.New("timeout"), nil}, calls: 2},
		{name: "blocked is permanent", errs: []error{&TelegramError{Code: 403, Message: "blocked"}}, calls: 1, wantErr: true},
		{name: "retries exhausted", errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}, calls: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := sendWithRetry(context.Background(), nil, cfg, zerolog.Nop(), func() error {
				err := tt.errs[calls]
				calls++
				return err
			})
			assert.Equal(t, tt.calls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsTelegramError(t *testing.T) {
	err := errors.Join(errors.New("x"), &TelegramError{Code: 429, RetryAfter: 3})
	tgErr, ok := IsTelegramError(err)
	require.True(t, ok)
	assert.Equal(t, 3, tgErr.RetryAfter)

	_, ok = IsTelegramError(errors.New("plain"))
	assert.False(t, ok)
}
