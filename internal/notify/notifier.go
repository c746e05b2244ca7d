package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"roombook/internal/events"
	"roombook/internal/model"
)

// Sender delivers text and files to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, filename string, data io.Reader, caption string) error
}

// Notifier turns domain events into messages for users and administrators.
type Notifier struct {
	sender     Sender
	adminChats []int64
	loc        *time.Location
	siteURL    string
	logger     zerolog.Logger
}

func New(sender Sender, adminChats []int64, loc *time.Location, siteURL string, logger zerolog.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		sender:     sender,
		adminChats: adminChats,
		loc:        loc,
		siteURL:    siteURL,
		logger:     logger.With().Str("component", "notifier").Logger(),
	}
}

// Subscribe registers the notifier for every event it reports on.
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(n.Handle,
		events.BookingCreated, events.BookingUpdated, events.BookingCancelled, events.BookingStatusChanged,
		events.UserRegistered, events.UserApproved, events.UserDenied,
	)
}

func (n *Notifier) Handle(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.UserRegistered:
		if ev.User == nil {
			return nil
		}
		err := n.toUser(ctx, ev.User, accountCreatedMessage(ev.User))
		return errors.Join(err, n.toAdmins(ctx, adminNewUserMessage(ev.User)))
	case events.UserApproved, events.UserDenied:
		if ev.User == nil {
			return nil
		}
		return n.toUser(ctx, ev.User, accountDecisionMessage(ev.User, ev.Type == events.UserApproved, n.siteURL))
	}

	r := ev.Reservation
	if r == nil {
		return nil
	}
	switch ev.Type {
	case events.BookingCreated:
		err := n.toUser(ctx, r.User, bookingCreatedMessage(r, n.loc))
		if r.Status == model.StatusPending {
			err = errors.Join(err, n.toAdmins(ctx, adminNewBookingMessage(r, n.loc)))
		}
		return err
	case events.BookingUpdated:
		return n.toUser(ctx, r.User, bookingUpdatedMessage(r, n.loc))
	case events.BookingCancelled:
		return n.toUser(ctx, r.User, bookingCancelledMessage(r, n.loc))
	case events.BookingStatusChanged:
		return n.toUser(ctx, r.User, bookingStatusMessage(r, n.loc))
	}
	return nil
}

// SendReminder notifies the owner of an upcoming reservation. Owners
// without a linked chat are skipped.
func (n *Notifier) SendReminder(ctx context.Context, r model.Reservation) error {
	return n.toUser(ctx, r.User, reminderMessage(&r, n.loc))
}

// SendDocument sends a file to every administrator chat.
func (n *Notifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	var errs []error
	for _, chatID := range n.adminChats {
		if err := n.sender.SendDocument(ctx, chatID, filename, bytes.NewReader(content), caption); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) toUser(ctx context.Context, u *model.User, text string) error {
	if u == nil || u.TelegramID == 0 {
		return nil
	}
	if err := n.sender.SendMessage(ctx, u.TelegramID, text); err != nil {
		n.logger.Warn().Err(err).Int64("user_id", u.ID).Msg("failed to notify user")
		return err
	}
	return nil
}

func (n *Notifier) toAdmins(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range n.adminChats {
		if err := n.sender.SendMessage(ctx, chatID, text); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to notify admin")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
