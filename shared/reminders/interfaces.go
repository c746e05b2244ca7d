package reminders

import (
	"context"
	"time"

	"roombook/internal/model"
)

// BookingStore provides access to bookings for the reminder service.
type BookingStore interface {
	// UpcomingBookings returns active bookings starting in [from, to) whose
	// reminder has not been sent yet.
	UpcomingBookings(ctx context.Context, from, to time.Time) ([]model.Reservation, error)

	// MarkReminderSent marks a booking as having had its reminder sent.
	MarkReminderSent(ctx context.Context, bookingID int64) error
}

// Notifier sends reminder notifications to users.
type Notifier interface {
	// SendReminder notifies the owner of the reservation.
	SendReminder(ctx context.Context, r model.Reservation) error
}

// Logger interface for logging.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}
