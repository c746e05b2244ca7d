package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TableExporter provides the tables included in a report.
type TableExporter interface {
	// TableNames returns the tables to export, one sheet each, in order.
	TableNames(ctx context.Context) ([]string, error)

	// TableData returns the rows of a table keyed by column, plus the
	// column order.
	TableData(ctx context.Context, table string) ([]map[string]any, []string, error)
}

// ExcelWriter builds a workbook sheet by sheet.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	Close() error
}

// Notifier delivers finished reports to administrators.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// DataCleaner removes cancelled bookings past the retention window.
type DataCleaner interface {
	PruneCancelledBookings(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Logger for audit operations.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

// ReportFilename names the report covering t's month, e.g. "June_2024.xlsx".
func ReportFilename(t time.Time) string {
	return fmt.Sprintf("%s_%d.xlsx", t.Month(), t.Year())
}

// PreviousMonthFilename names the report for the month before now.
func PreviousMonthFilename(now time.Time) string {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return ReportFilename(firstOfMonth.AddDate(0, -1, 0))
}
