package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds configuration for the audit service.
type Config struct {
	// DataRetentionDays is how long cancelled bookings are kept after they
	// end. Zero keeps everything.
	DataRetentionDays int

	// Title is used in the report caption.
	Title string

	// Dir, when set, also keeps a copy of every sent report on disk.
	Dir string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataRetentionDays: 0,
		Title:             "roombook",
	}
}

// Service writes workbook reports, mails them to admins on a schedule and
// prunes old bookings afterwards.
type Service struct {
	config   *Config
	exporter TableExporter
	writer   func() ExcelWriter
	notifier Notifier
	cleaner  DataCleaner
	logger   Logger
	now      func() time.Time
}

// NewService creates a new audit service. notifier, cleaner and logger may
// be nil.
func NewService(
	config *Config,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	notifier Notifier,
	cleaner DataCleaner,
	logger Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Title == "" {
		config.Title = "roombook"
	}
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}

	return &Service{
		config:   config,
		exporter: exporter,
		writer:   writerFactory,
		notifier: notifier,
		cleaner:  cleaner,
		logger:   logger,
		now:      time.Now,
	}
}

// Schedule registers the monthly export and cleanup on c.
func (s *Service) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		s.RunExportAndCleanup(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule audit %q: %w", spec, err)
	}
	s.logInfo("Audit export scheduled", "schedule", spec)
	return id, nil
}

// RunExportAndCleanup sends the report and then prunes old bookings. A
// failed export does not prevent the cleanup.
func (s *Service) RunExportAndCleanup(ctx context.Context) {
	if err := s.Send(ctx); err != nil {
		s.logError("Failed to export audit data", "error", err)
	}
	if _, err := s.Cleanup(ctx); err != nil {
		s.logError("Failed to cleanup old data", "error", err)
	}
}

// WriteReport writes the workbook of every exported table to out.
func (s *Service) WriteReport(ctx context.Context, out io.Writer) error {
	if s.exporter == nil {
		return errors.New("exporter not configured")
	}

	tables, err := s.exporter.TableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}

	excel := s.writer()
	if excel == nil {
		return errors.New("failed to create excel writer")
	}
	defer excel.Close()

	for _, table := range tables {
		if err := s.writeTable(ctx, excel, table); err != nil {
			return err
		}
	}

	if err := excel.Save(out); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}
	return nil
}

// Send builds the report, stores it in Dir and delivers it through the
// notifier. It does nothing when neither is configured.
func (s *Service) Send(ctx context.Context) error {
	if s.notifier == nil && s.config.Dir == "" {
		return nil
	}

	var buf bytes.Buffer
	if err := s.WriteReport(ctx, &buf); err != nil {
		return err
	}
	filename := PreviousMonthFilename(s.now())

	if s.config.Dir != "" {
		if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
		path := filepath.Join(s.config.Dir, filename)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		s.logInfo("Audit report saved", "path", path)
	}

	if s.notifier == nil {
		return nil
	}
	caption := fmt.Sprintf("Monthly booking report (%s)", s.config.Title)
	if err := s.notifier.SendDocument(ctx, filename, bytes.NewReader(buf.Bytes()), caption); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	s.logInfo("Audit report sent", "filename", filename)
	return nil
}

// Cleanup deletes cancelled bookings that ended before the retention window.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	if s.cleaner == nil || s.config.DataRetentionDays <= 0 {
		return 0, nil
	}

	retention := time.Duration(s.config.DataRetentionDays) * 24 * time.Hour
	deleted, err := s.cleaner.PruneCancelledBookings(ctx, retention)
	if err != nil {
		return 0, fmt.Errorf("prune cancelled bookings: %w", err)
	}
	s.logInfo("Cleaned up old data", "deleted_count", deleted, "retention_days", s.config.DataRetentionDays)
	return deleted, nil
}

func (s *Service) writeTable(ctx context.Context, excel ExcelWriter, table string) error {
	data, columns, err := s.exporter.TableData(ctx, table)
	if err != nil {
		return fmt.Errorf("table %s: %w", table, err)
	}
	if err := excel.AddSheet(table); err != nil {
		return err
	}
	if err := excel.WriteHeader(columns); err != nil {
		return fmt.Errorf("table %s header: %w", table, err)
	}

	for _, row := range data {
		values := make([]any, len(columns))
		for i, col := range columns {
			values[i] = row[col]
		}
		if err := excel.WriteRow(values); err != nil {
			return fmt.Errorf("table %s row: %w", table, err)
		}
	}

	if s.logger != nil {
		s.logger.Debug("Exported table", "table", table, "rows", len(data))
	}
	return nil
}

func (s *Service) logInfo(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, fields...)
	}
}

func (s *Service) logError(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Error(msg, fields...)
	}
}
