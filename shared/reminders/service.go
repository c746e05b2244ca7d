package reminders

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"roombook/internal/model"
)

// Config holds configuration for the reminder service.
type Config struct {
	// CheckInterval is how often to look for upcoming bookings.
	// Default: 15 minutes.
	CheckInterval time.Duration

	// HoursBefore is how long before the start a reminder is sent.
	// Default: 24 hours.
	HoursBefore int

	// MaxConcurrentNotifications limits parallel notification sends.
	// Default: 10.
	MaxConcurrentNotifications int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval:              15 * time.Minute,
		HoursBefore:                24,
		MaxConcurrentNotifications: 10,
	}
}

// Service reminds owners of bookings that start within HoursBefore.
type Service struct {
	config   *Config
	bookings BookingStore
	notifier Notifier
	metrics  *Metrics
	logger   Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a new reminder service. metrics and logger may be nil.
func NewService(
	config *Config,
	bookings BookingStore,
	notifier Notifier,
	metrics *Metrics,
	logger Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = 15 * time.Minute
	}
	if config.HoursBefore <= 0 {
		config.HoursBefore = 24
	}
	if config.MaxConcurrentNotifications <= 0 {
		config.MaxConcurrentNotifications = 10
	}

	return &Service{
		config:   config,
		bookings: bookings,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs the check loop until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	if s.logger != nil {
		s.logger.Info("Reminder service started",
			"check_interval", s.config.CheckInterval,
			"hours_before", s.config.HoursBefore,
		)
	}
}

// Stop cancels the loop and waits for in-flight sends.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	if s.logger != nil {
		s.logger.Info("Reminder service stopped")
	}
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	s.CheckNow(ctx)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}

// CheckNow sends every due reminder and returns how many were delivered.
func (s *Service) CheckNow(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	now := s.now()
	due, err := s.bookings.UpcomingBookings(ctx, now, now.Add(time.Duration(s.config.HoursBefore)*time.Hour))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("Failed to get upcoming bookings", "error", err)
		}
		return 0
	}
	s.metrics.setDue(len(due))
	if len(due) == 0 {
		return 0
	}

	if s.logger != nil {
		s.logger.Debug("Found bookings to remind", "count", len(due))
	}

	sem := make(chan struct{}, s.config.MaxConcurrentNotifications)
	var (
		wg   sync.WaitGroup
		sent atomic.Int32
	)

	for _, r := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(r model.Reservation) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.sendReminder(ctx, r); err != nil {
				s.metrics.incSent("failed")
				if s.logger != nil {
					s.logger.Error("Failed to send reminder", "booking_id", r.ID, "error", err)
				}
				return
			}
			s.metrics.incSent("sent")
			sent.Add(1)
		}(r)
	}

	wg.Wait()
	return int(sent.Load())
}

func (s *Service) sendReminder(ctx context.Context, r model.Reservation) error {
	started := time.Now()
	if err := s.notifier.SendReminder(ctx, r); err != nil {
		return err
	}
	s.metrics.observeSend(time.Since(started).Seconds())

	// The notification already went out; a failed mark only risks a repeat.
	if err := s.bookings.MarkReminderSent(ctx, r.ID); err != nil && s.logger != nil {
		s.logger.Error("Failed to mark reminder as sent", "booking_id", r.ID, "error", err)
	}

	if s.logger != nil {
		s.logger.Info("Reminder sent", "booking_id", r.ID)
	}
	return nil
}
