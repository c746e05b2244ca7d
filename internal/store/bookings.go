package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"roombook/internal/availability"
	"roombook/internal/model"
)

// NewBooking is the input of CreateBooking.
type NewBooking struct {
	UserID  int64
	RoomIDs []int64
	Start   time.Time
	End     time.Time
	Kind    model.Kind
	Status  model.Status
}

// BookingChange replaces the rooms and interval of an existing booking.
type BookingChange struct {
	RoomIDs []int64
	Start   time.Time
	End     time.Time
	Kind    model.Kind
}

// BookingFilter narrows ListBookings. Zero values mean "any".
type BookingFilter struct {
	UserID     *int64
	RoomIDs    []int64
	From       time.Time
	To         time.Time
	ActiveOnly bool
}

// CreateBooking inserts a booking after checking the requested rooms are
// free. Overlapping active bookings yield a *ConflictError.
func (db *DB) CreateBooking(ctx context.Context, in NewBooking) (*model.Reservation, error) {
	if !in.End.After(in.Start) {
		return nil, ErrInvalidRange
	}
	if in.Status == "" {
		in.Status = model.StatusPending
	}
	if in.Kind == "" {
		in.Kind = model.KindRegular
	}
	ids := uniqueIDs(in.RoomIDs)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no rooms requested", ErrUnknownRoom)
	}
	if _, err := db.roomsByID(ctx, tx, ids); err != nil {
		return nil, err
	}
	if in.Status.Active() {
		conflicts, err := db.findConflicts(ctx, tx, ids, in.Start, in.End, 0)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, &ConflictError{Conflicts: conflicts}
		}
	}

	now := formatTime(time.Now())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (user_id, start_at, end_at, status, booking_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.UserID, formatTime(in.Start), formatTime(in.End), string(in.Status), string(in.Kind), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := insertBookingRooms(ctx, tx, id, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	db.logger.Debug().Int64("booking_id", id).Ints64("rooms", ids).Msg("Booking created")
	return db.GetBooking(ctx, id)
}

// UpdateBooking changes rooms, interval and kind of a booking. The booking
// itself is excluded from the conflict check. The reminder flag is reset.
func (db *DB) UpdateBooking(ctx context.Context, id int64, ch BookingChange) (*model.Reservation, error) {
	if !ch.End.After(ch.Start) {
		return nil, ErrInvalidRange
	}
	if ch.Kind == "" {
		ch.Kind = model.KindRegular
	}
	ids := uniqueIDs(ch.RoomIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no rooms requested", ErrUnknownRoom)
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := db.bookingStatus(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := db.roomsByID(ctx, tx, ids); err != nil {
		return nil, err
	}
	if current.Active() {
		conflicts, err := db.findConflicts(ctx, tx, ids, ch.Start, ch.End, id)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, &ConflictError{Conflicts: conflicts}
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bookings SET start_at = ?, end_at = ?, booking_type = ?, reminder_sent = 0, updated_at = ?
		WHERE id = ?`,
		formatTime(ch.Start), formatTime(ch.End), string(ch.Kind), formatTime(time.Now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update booking %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_rooms WHERE booking_id = ?`, id); err != nil {
		return nil, err
	}
	if err := insertBookingRooms(ctx, tx, id, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return db.GetBooking(ctx, id)
}

// SetStatus moves a booking to status. Reactivating a cancelled booking
// re-checks conflicts.
func (db *DB) SetStatus(ctx context.Context, id int64, status model.Status) (*model.Reservation, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := db.bookingStatus(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if status.Active() && !current.Active() {
		list, err := db.loadReservations(ctx, tx, `WHERE b.id = ?`, id)
		if err != nil {
			return nil, err
		}
		if len(list) == 1 {
			r := list[0]
			conflicts, err := db.findConflicts(ctx, tx, r.RoomIDs(), r.Start, r.End, id)
			if err != nil {
				return nil, err
			}
			if len(conflicts) > 0 {
				return nil, &ConflictError{Conflicts: conflicts}
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return db.GetBooking(ctx, id)
}

// GetBooking returns a booking with its user and rooms.
func (db *DB) GetBooking(ctx context.Context, id int64) (*model.Reservation, error) {
	list, err := db.loadReservations(ctx, db.DB, `WHERE b.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// ListBookings returns bookings matching f ordered by start.
func (db *DB) ListBookings(ctx context.Context, f BookingFilter) ([]model.Reservation, error) {
	var conds []string
	var args []any

	if f.UserID != nil {
		conds = append(conds, `b.user_id = ?`)
		args = append(args, *f.UserID)
	}
	if ids := uniqueIDs(f.RoomIDs); len(ids) > 0 {
		conds = append(conds, `b.id IN (SELECT booking_id FROM booking_rooms WHERE room_id IN (`+placeholders(len(ids))+`))`)
		args = append(args, int64Args(ids)...)
	}
	if !f.To.IsZero() {
		conds = append(conds, `b.start_at < ?`)
		args = append(args, formatTime(f.To))
	}
	if !f.From.IsZero() {
		conds = append(conds, `b.end_at > ?`)
		args = append(args, formatTime(f.From))
	}
	if f.ActiveOnly {
		conds = append(conds, `b.status IN (?, ?)`)
		args = append(args, string(model.StatusPending), string(model.StatusApproved))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return db.loadReservations(ctx, db.DB, where, args...)
}

// FindConflicts lists active bookings overlapping [start, end) in any of
// roomIDs, excluding the booking excludeID.
func (db *DB) FindConflicts(ctx context.Context, roomIDs []int64, start, end time.Time, excludeID int64) ([]model.Conflict, error) {
	return db.findConflicts(ctx, db.DB, uniqueIDs(roomIDs), start, end, excludeID)
}

func (db *DB) findConflicts(ctx context.Context, q queryer, roomIDs []int64, start, end time.Time, excludeID int64) ([]model.Conflict, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}

	args := int64Args(roomIDs)
	args = append(args,
		string(model.StatusPending), string(model.StatusApproved),
		formatTime(end), formatTime(start), excludeID,
	)
	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.name, b.start_at, b.end_at
		FROM bookings b
		JOIN booking_rooms br ON br.booking_id = b.id
		JOIN rooms r ON r.id = br.room_id
		WHERE br.room_id IN (`+placeholders(len(roomIDs))+`)
		  AND b.status IN (?, ?)
		  AND b.start_at < ? AND b.end_at > ?
		  AND b.id != ?
		ORDER BY b.start_at, r.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []model.Conflict
	for rows.Next() {
		var c model.Conflict
		var s, e string
		if err := rows.Scan(&c.RoomID, &c.Room, &s, &e); err != nil {
			return nil, err
		}
		if c.Start, err = db.parseTime(s); err != nil {
			return nil, err
		}
		if c.End, err = db.parseTime(e); err != nil {
			return nil, err
		}
		if !availability.Overlaps(start, end, c.Start, c.End) {
			continue
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// DeleteAllBookings removes every booking and returns how many were deleted.
func (db *DB) DeleteAllBookings(ctx context.Context) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.ExecContext(ctx, `DELETE FROM bookings`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpcomingBookings returns active bookings starting in [from, to) whose
// reminder has not been sent.
func (db *DB) UpcomingBookings(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	return db.loadReservations(ctx, db.DB, `
		WHERE b.reminder_sent = 0
		  AND b.status IN (?, ?)
		  AND b.start_at >= ? AND b.start_at < ?`,
		string(model.StatusPending), string(model.StatusApproved), formatTime(from), formatTime(to),
	)
}

// MarkReminderSent flags the booking so it is not reminded twice.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE bookings SET reminder_sent = 1 WHERE id = ?`, id)
	return err
}

func insertBookingRooms(ctx context.Context, tx *sql.Tx, bookingID int64, roomIDs []int64) error {
	for _, roomID := range roomIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_rooms (booking_id, room_id) VALUES (?, ?)`, bookingID, roomID,
		); err != nil {
			return fmt.Errorf("link room %d: %w", roomID, err)
		}
	}
	return nil
}

func (db *DB) bookingStatus(ctx context.Context, q queryer, id int64) (model.Status, error) {
	var s string
	err := q.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.ParseStatus(s)
}

const reservationSelect = `
	SELECT b.id, b.start_at, b.end_at, b.status, b.booking_type, b.reminder_sent, b.created_at,
	       u.id, u.username, u.email, u.first_name, u.last_name, u.role, u.is_approved, u.telegram_id
	FROM bookings b
	JOIN users u ON u.id = b.user_id `

func (db *DB) loadReservations(ctx context.Context, q queryer, where string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, reservationSelect+where+` ORDER BY b.start_at, b.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}

	list := []model.Reservation{}
	for rows.Next() {
		var r model.Reservation
		var u model.User
		var start, end, status, kind, created, role string
		if err := rows.Scan(
			&r.ID, &start, &end, &status, &kind, &r.ReminderSent, &created,
			&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &role, &u.Approved, &u.TelegramID,
		); err != nil {
			rows.Close()
			return nil, err
		}
		if r.Start, err = db.parseTime(start); err == nil {
			if r.End, err = db.parseTime(end); err == nil {
				r.CreatedAt, err = db.parseTime(created)
			}
		}
		if err != nil {
			rows.Close()
			return nil, err
		}
		if r.Status, err = model.ParseStatus(status); err != nil {
			rows.Close()
			return nil, err
		}
		r.Kind = model.ParseKind(kind)
		u.Role = model.ParseRole(role)
		r.User = &u
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := db.attachRooms(ctx, q, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (db *DB) attachRooms(ctx context.Context, q queryer, list []model.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[int64]int, len(list))
	ids := make([]int64, 0, len(list))
	for i := range list {
		index[list[i].ID] = i
		ids = append(ids, list[i].ID)
		list[i].Rooms = []model.Room{}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT br.booking_id, r.id, r.name, f.id, f.name
		FROM booking_rooms br
		JOIN rooms r ON r.id = br.room_id
		JOIN floors f ON f.id = r.floor_id
		WHERE br.booking_id IN (`+placeholders(len(ids))+`)
		ORDER BY br.booking_id, r.id`, int64Args(ids)...)
	if err != nil {
		return fmt.Errorf("query booking rooms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookingID int64
		var room model.Room
		if err := rows.Scan(&bookingID, &room.ID, &room.Name, &room.Floor.ID, &room.Floor.Name); err != nil {
			return err
		}
		if i, ok := index[bookingID]; ok {
			list[i].Rooms = append(list[i].Rooms, room)
		}
	}
	return rows.Err()
}
