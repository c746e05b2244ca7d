package model

import (
	"fmt"
	"strings"
	"time"
)

// Floor groups rooms.
type Floor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Room is a bookable space on a floor.
type Room struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Floor Floor  `json:"floor"`
}

// DisplayName returns "<floor> - <room>" when the floor is known.
func (r Room) DisplayName() string {
	if r.Floor.Name == "" {
		return r.Name
	}
	return fmt.Sprintf("%s - %s", r.Floor.Name, r.Name)
}

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusCancelled Status = "Cancelled"
)

// Active reports whether reservations in this status block rooms.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// ParseStatus accepts any casing and the "canceled" spelling.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Kind distinguishes single-day reservations from multi-day camps.
type Kind string

const (
	KindRegular Kind = "regular"
	KindCamp    Kind = "camp"
)

// ParseKind maps unknown or empty values to KindRegular.
func ParseKind(s string) Kind {
	if strings.EqualFold(strings.TrimSpace(s), string(KindCamp)) {
		return KindCamp
	}
	return KindRegular
}

// Role is the authorization level of a user.
type Role string

const (
	RoleUser        Role = "user"
	RoleMentor      Role = "mentor"
	RoleCoordinator Role = "coordinator"
	RoleAdmin       Role = "admin"
)

// ParseRole returns RoleUser for unknown values.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleMentor:
		return RoleMentor
	case RoleCoordinator:
		return RoleCoordinator
	case RoleAdmin:
		return RoleAdmin
	}
	return RoleUser
}

// CanBookCamp reports whether the role may create camp reservations.
func (r Role) CanBookCamp() bool {
	return r == RoleMentor || r == RoleCoordinator || r == RoleAdmin
}

// IsAdmin reports whether the role has administrative rights.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// User is an account of the booking system.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       Role   `json:"role"`
	Approved   bool   `json:"is_approved"`
	TelegramID int64  `json:"telegram_id,omitempty"`
}

// DisplayName prefers the first name.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// Reservation occupies a set of rooms for [Start, End).
type Reservation struct {
	ID           int64     `json:"id"`
	User         *User     `json:"user,omitempty"`
	Rooms        []Room    `json:"rooms"`
	Start        time.Time `json:"start_datetime"`
	End          time.Time `json:"end_datetime"`
	Status       Status    `json:"status"`
	Kind         Kind      `json:"booking_type"`
	CreatedAt    time.Time `json:"created_at"`
	ReminderSent bool      `json:"-"`
}

// RoomIDs returns the ids of the occupied rooms in order.
func (r *Reservation) RoomIDs() []int64 {
	ids := make([]int64, 0, len(r.Rooms))
	for _, room := range r.Rooms {
		ids = append(ids, room.ID)
	}
	return ids
}

// Occupies reports whether the reservation includes the room.
func (r *Reservation) Occupies(roomID int64) bool {
	for _, room := range r.Rooms {
		if room.ID == roomID {
			return true
		}
	}
	return false
}

// Active reports whether the reservation blocks its rooms.
func (r *Reservation) Active() bool {
	return r.Status.Active()
}

// Conflict describes an existing reservation that blocks a requested room.
type Conflict struct {
	RoomID int64     `json:"room_id"`
	Room   string    `json:"room"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Message renders the conflict the way it is reported to users.
func (c Conflict) Message() string {
	return fmt.Sprintf("Room '%s' is already booked from %s to %s",
		c.Room, c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339))
}
