package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"roombook/internal/config"
)

const (
	filePrefix = "roombook_"
	fileSuffix = ".db"
	stampFmt   = "20060102_150405"
)

// Snapshotter produces a consistent copy of the live database.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

type Service struct {
	db     Snapshotter
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewService(db Snapshotter, cfg config.BackupConfig, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Schedule registers the backup job on c. A disabled service registers nothing.
func (s *Service) Schedule(ctx context.Context, c *cron.Cron) error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return nil
	}

	_, err := c.AddFunc(s.config.Schedule, func() {
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled backup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("backup schedule %q: %w", s.config.Schedule, err)
	}

	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Backup service scheduled")
	return nil
}

// Run takes one backup and then prunes expired ones. It returns the new file path.
func (s *Service) Run(ctx context.Context) (string, error) {
	path, err := s.PerformBackup(ctx)
	if err != nil {
		return "", err
	}
	if _, err := s.CleanupOldBackups(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clean up old backups")
	}
	return path, nil
}

func (s *Service) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := filePrefix + s.now().Format(stampFmt) + fileSuffix
	path := filepath.Join(s.config.StoragePath, name)

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("backup %s already exists", name)
	}

	s.logger.Info().Str("path", path).Msg("Performing database backup")

	if err := s.db.Snapshot(ctx, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	s.logger.Info().Str("path", path).Msg("Backup completed successfully")
	return path, nil
}

// CleanupOldBackups removes backups older than RetentionDays and returns how many were deleted.
// Files that were not written by this service are left alone.
func (s *Service) CleanupOldBackups() (int, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		taken, ok := backupTime(entry.Name())
		if !ok || !taken.Before(cutoff) {
			continue
		}

		s.logger.Info().Str("file", entry.Name()).Msg("Deleting old backup")
		if err := os.Remove(filepath.Join(s.config.StoragePath, entry.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to delete backup")
			continue
		}
		removed++
	}
	return removed, nil
}

func backupTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	t, err := time.ParseInLocation(stampFmt, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
