// Package booking validates hour selections and turns them into reservation
// intervals for the authority.
package booking

import (
	"errors"
	"fmt"
	"time"

	"roombook/internal/availability"
	"roombook/internal/model"
)

// Validation reasons reported to callers.
const (
	ReasonEndBeforeStart         = "end before start"
	ReasonEndDateBeforeStartDate = "end date before start date"
	ReasonMissingDate            = "date is required"
	ReasonMissingTime            = "start and end time are required"
	ReasonHourOutOfRange         = "hour out of range"
	ReasonNoRooms                = "at least one room or a floor must be selected"
)

// ValidationError rejects a selection or request before anything is
// written.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

// Selection is a proposed booking: either Regular or Camp.
type Selection interface {
	Kind() model.Kind
	// Validate checks ordering without touching the network.
	Validate() error
	// Bounds returns the calendar days and hours of the selection.
	Bounds() (startDate, endDate time.Time, startHour, endHour int)
}

// Regular is a booking within a single calendar day.
type Regular struct {
	Date  time.Time
	Start *int
	End   *int
}

// Kind implements Selection.
func (Regular) Kind() model.Kind { return model.KindRegular }

// Validate implements Selection.
func (r Regular) Validate() error {
	if r.Date.IsZero() {
		return invalid(ReasonMissingDate)
	}
	if r.Start == nil || r.End == nil {
		return invalid(ReasonMissingTime)
	}
	if err := checkHours(*r.Start, *r.End); err != nil {
		return err
	}
	if *r.Start >= *r.End {
		return invalid(ReasonEndBeforeStart)
	}
	return nil
}

// Bounds implements Selection.
func (r Regular) Bounds() (time.Time, time.Time, int, int) {
	return r.Date, r.Date, deref(r.Start), deref(r.End)
}

// Camp is a multi-day booking using the same hours on its first and last day.
type Camp struct {
	StartDate time.Time
	EndDate   time.Time
	Start     *int
	End       *int
}

// Kind implements Selection.
func (Camp) Kind() model.Kind { return model.KindCamp }

// Validate implements Selection.
func (c Camp) Validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return invalid(ReasonMissingDate)
	}
	if c.Start == nil || c.End == nil {
		return invalid(ReasonMissingTime)
	}
	if err := checkHours(*c.Start, *c.End); err != nil {
		return err
	}
	startDay, endDay := civil(c.StartDate), civil(c.EndDate)
	if endDay.Before(startDay) {
		return invalid(ReasonEndDateBeforeStartDate)
	}
	if endDay.Equal(startDay) && *c.Start >= *c.End {
		return invalid(ReasonEndBeforeStart)
	}
	return nil
}

// Bounds implements Selection.
func (c Camp) Bounds() (time.Time, time.Time, int, int) {
	return c.StartDate, c.EndDate, deref(c.Start), deref(c.End)
}

func checkHours(start, end int) error {
	if start < 0 || start >= availability.HoursPerDay {
		return invalid(ReasonHourOutOfRange)
	}
	if end < 1 || end > availability.HoursPerDay {
		return invalid(ReasonHourOutOfRange)
	}
	return nil
}

// Interval validates sel and returns its [start, end) in loc. An end hour of
// 24 becomes midnight of the day after the end date.
func Interval(sel Selection, loc *time.Location) (time.Time, time.Time, error) {
	if err := sel.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	startDate, endDate, startHour, endHour := sel.Bounds()

	sy, sm, sd := startDate.Date()
	start := time.Date(sy, sm, sd, startHour, 0, 0, 0, loc)

	ey, em, ed := endDate.Date()
	if endHour == availability.HoursPerDay {
		end := time.Date(ey, em, ed, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		return start, end, nil
	}
	return start, time.Date(ey, em, ed, endHour, 0, 0, 0, loc), nil
}

// Describe renders a selection for confirmation prompts.
func Describe(sel Selection) string {
	startDate, endDate, startHour, endHour := sel.Bounds()
	if sel.Kind() == model.KindCamp {
		return fmt.Sprintf("%s to %s, %s - %s",
			startDate.Format(DateLayout), endDate.Format(DateLayout),
			availability.FormatHour(startHour), availability.FormatHour(endHour))
	}
	return fmt.Sprintf("%s, %s - %s",
		startDate.Format(DateLayout), availability.FormatHour(startHour), availability.FormatHour(endHour))
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// Hour returns a pointer to h, for building selections.
func Hour(h int) *int {
	return &h
}
