package store

import (
	"context"
	"fmt"
	"time"

	"roombook/internal/model"
)

// AuditTableNames lists the sheets of the audit export in order.
var AuditTableNames = []string{"bookings", "users", "rooms", "floors"}

var auditQueries = map[string]string{
	"floors": `SELECT id, name, is_active, updated_at FROM floors ORDER BY id`,
	"rooms":  `SELECT id, floor_id, name, is_active, updated_at FROM rooms ORDER BY id`,
	"users": `SELECT id, username, email, first_name, last_name, role, is_approved, created_at
		FROM users ORDER BY id`,
	"bookings": `SELECT b.id, u.username AS user, GROUP_CONCAT(r.name, ', ') AS rooms,
		b.start_at, b.end_at, b.status, b.booking_type, b.created_at
		FROM bookings b
		JOIN users u ON u.id = b.user_id
		LEFT JOIN booking_rooms br ON br.booking_id = b.id
		LEFT JOIN rooms r ON r.id = br.room_id
		GROUP BY b.id
		ORDER BY b.start_at, b.id`,
}

// TableNames returns the tables exported in audit reports.
func (db *DB) TableNames(_ context.Context) ([]string, error) {
	return AuditTableNames, nil
}

// TableData returns all rows of an audit table as maps keyed by column.
// Password hashes and tokens are never exported.
func (db *DB) TableData(ctx context.Context, table string) ([]map[string]any, []string, error) {
	query, ok := auditQueries[table]
	if !ok {
		return nil, nil, fmt.Errorf("invalid table name: %s", table)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var data []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[col] = values[i]
		}
		data = append(data, row)
	}
	return data, columns, rows.Err()
}

// PruneCancelledBookings deletes cancelled bookings that ended more than
// olderThan ago. Pending and approved bookings are kept until an admin
// deletes them.
func (db *DB) PruneCancelledBookings(ctx context.Context, olderThan time.Duration) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	cutoff := formatTime(time.Now().Add(-olderThan))
	res, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE status = ? AND end_at < ?`,
		string(model.StatusCancelled), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
