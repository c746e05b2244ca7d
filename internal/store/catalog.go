package store

import (
	"context"
	"fmt"
	"time"

	"roombook/internal/config"
	"roombook/internal/model"
)

// SyncCatalog applies rooms.yaml to the database. Floors and rooms are
// upserted by id; ones missing from the file are marked inactive so that
// existing reservations keep their references.
func (db *DB) SyncCatalog(ctx context.Context, cat *config.Catalog) error {
	if cat == nil {
		return fmt.Errorf("catalog is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx, `UPDATE rooms SET is_active = 0, updated_at = ?`, now); err != nil {
		return fmt.Errorf("deactivate rooms: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE floors SET is_active = 0, updated_at = ?`, now); err != nil {
		return fmt.Errorf("deactivate floors: %w", err)
	}

	rooms := 0
	for _, f := range cat.Floors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO floors (id, name, is_active, updated_at) VALUES (?, ?, 1, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_active = 1, updated_at = excluded.updated_at`,
			f.ID, f.Name, now,
		)
		if err != nil {
			return fmt.Errorf("sync floor %d: %w", f.ID, err)
		}

		for _, r := range f.Rooms {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO rooms (id, floor_id, name, is_active, updated_at) VALUES (?, ?, ?, 1, ?)
				ON CONFLICT(id) DO UPDATE SET
					floor_id = excluded.floor_id,
					name = excluded.name,
					is_active = 1,
					updated_at = excluded.updated_at`,
				r.ID, f.ID, r.Name, now,
			)
			if err != nil {
				return fmt.Errorf("sync room %d: %w", r.ID, err)
			}
			rooms++
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	db.logger.Info().Int("floors", len(cat.Floors)).Int("rooms", rooms).Msg("Catalog synced")
	return nil
}

// Floors lists active floors ordered by id.
func (db *DB) Floors(ctx context.Context) ([]model.Floor, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM floors WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	floors := []model.Floor{}
	for rows.Next() {
		var f model.Floor
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, err
		}
		floors = append(floors, f)
	}
	return floors, rows.Err()
}

// Rooms lists active rooms, optionally restricted to one floor.
func (db *DB) Rooms(ctx context.Context, floorID *int64) ([]model.Room, error) {
	query := `
		SELECT r.id, r.name, f.id, f.name
		FROM rooms r JOIN floors f ON f.id = r.floor_id
		WHERE r.is_active = 1`
	var args []any
	if floorID != nil {
		query += ` AND r.floor_id = ?`
		args = append(args, *floorID)
	}
	query += ` ORDER BY f.id, r.id`

	return db.scanRooms(ctx, db.DB, query, args...)
}

// RoomsByID returns the active rooms among ids, in id order. Unknown or
// inactive ids yield ErrUnknownRoom.
func (db *DB) RoomsByID(ctx context.Context, ids []int64) ([]model.Room, error) {
	return db.roomsByID(ctx, db.DB, ids)
}

func (db *DB) roomsByID(ctx context.Context, q queryer, ids []int64) ([]model.Room, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	rooms, err := db.scanRooms(ctx, q, `
		SELECT r.id, r.name, f.id, f.name
		FROM rooms r JOIN floors f ON f.id = r.floor_id
		WHERE r.is_active = 1 AND r.id IN (`+placeholders(len(ids))+`)
		ORDER BY r.id`, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	if len(rooms) != len(ids) {
		return nil, fmt.Errorf("%w: requested %d, found %d", ErrUnknownRoom, len(ids), len(rooms))
	}
	return rooms, nil
}

// FloorRoomIDs returns the ids of the active rooms on a floor.
func (db *DB) FloorRoomIDs(ctx context.Context, floorID int64) ([]int64, error) {
	rooms, err := db.Rooms(ctx, &floorID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (db *DB) scanRooms(ctx context.Context, q queryer, query string, args ...any) ([]model.Room, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []model.Room{}
	for rows.Next() {
		var r model.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Floor.ID, &r.Floor.Name); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
