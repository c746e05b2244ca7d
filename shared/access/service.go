// Package access decides what an account may do with reservations.
package access

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"roombook/internal/model"
)

// Service applies role rules to users and reservations.
type Service struct {
	logger zerolog.Logger
}

// NewService creates a new access control service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{logger: logger.With().Str("component", "access").Logger()}
}

// CanAccess requires an authenticated, approved account.
func (s *Service) CanAccess(u *model.User) error {
	if u == nil {
		return &AccessDeniedError{Reason: "Authentication credentials were not provided."}
	}
	if !u.Approved {
		return s.deny(u, "Your account is pending approval.")
	}
	return nil
}

// CanBook checks the user may create a reservation of the given kind.
// Camp reservations are limited to mentors, coordinators and admins.
func (s *Service) CanBook(u *model.User, kind model.Kind) error {
	if err := s.CanAccess(u); err != nil {
		return err
	}
	if kind == model.KindCamp && !u.Role.CanBookCamp() {
		return s.deny(u, "Only mentors, coordinators and admins can book camps.")
	}
	return nil
}

// CanView allows owners and admins to see a reservation.
func (s *Service) CanView(u *model.User, r *model.Reservation) error {
	return s.CanModify(u, r)
}

// CanModify allows owners and admins to change or cancel a reservation.
func (s *Service) CanModify(u *model.User, r *model.Reservation) error {
	if err := s.CanAccess(u); err != nil {
		return err
	}
	if u.Role.IsAdmin() {
		return nil
	}
	if r.User == nil || r.User.ID != u.ID {
		return s.deny(u, fmt.Sprintf("You do not have permission to modify booking %d.", r.ID))
	}
	return nil
}

// RequireAdmin gates administrative operations.
func (s *Service) RequireAdmin(u *model.User) error {
	if err := s.CanAccess(u); err != nil {
		return err
	}
	if !u.Role.IsAdmin() {
		return s.deny(u, "This action is available to administrators only.")
	}
	return nil
}

func (s *Service) deny(u *model.User, reason string) error {
	s.logger.Debug().
		Int64("user_id", u.ID).
		Str("role", string(u.Role)).
		Str("reason", reason).
		Msg("access denied")
	return &AccessDeniedError{Reason: reason}
}

// AccessDeniedError is returned when user access is denied.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
