package backup

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombook/internal/config"
	"roombook/internal/store"
)

type failingSnapshotter struct{}

func (failingSnapshotter) Snapshot(context.Context, string) error {
	return errors.New("disk full")
}

func TestPerformBackup_CopiesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := store.NewDB(filepath.Join(dir, "live.db"), time.UTC, nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.SyncCatalog(context.Background(), &config.Catalog{
		Floors: []config.FloorConfig{
			{ID: 1, Name: "Ground", Rooms: []config.RoomConfig{{ID: 10, Name: "Hall"}}},
		},
	}))

	svc := NewService(db, config.BackupConfig{Enabled: true, StoragePath: filepath.Join(dir, "backups")}, nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 3, 0, 0, 0, time.Local) }

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "roombook_20240601_030000.db", filepath.Base(path))

	copyDB, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer copyDB.Close()

	var name string
	require.NoError(t, copyDB.QueryRow("SELECT name FROM rooms WHERE id = 10").Scan(&name))
	assert.Equal(t, "Hall", name)

	_, err = svc.PerformBackup(context.Background())
	assert.Error(t, err, "same timestamp must not overwrite")
}

func TestPerformBackup_SnapshotError(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(failingSnapshotter{}, config.BackupConfig{StoragePath: dir}, nil)

	_, err := svc.PerformBackup(context.Background())
	assert.EqualError(t, err, "disk full")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanupOldBackups(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"roombook_20240501_030000.db",
		"roombook_20240528_030000.db",
		"roombook_20240531_030000.db",
		"notes.txt",
		"roombook_garbage.db",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644))
	}

	svc := NewService(nil, config.BackupConfig{StoragePath: dir, RetentionDays: 7}, nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 3, 0, 0, 0, time.Local) }

	removed, err := svc.CleanupOldBackups()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.ElementsMatch(t, files[1:], left)
}

func TestCleanupOldBackups_Disabled(t *testing.T) {
	svc := NewService(nil, config.BackupConfig{StoragePath: "/nonexistent", RetentionDays: 0}, nil)
	removed, err := svc.CleanupOldBackups()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSchedule(t *testing.T) {
	c := cron.New()

	disabled := NewService(nil, config.BackupConfig{Enabled: false, Schedule: "bad"}, nil)
	require.NoError(t, disabled.Schedule(context.Background(), c))
	assert.Empty(t, c.Entries())

	enabled := NewService(nil, config.BackupConfig{Enabled: true, Schedule: "0 3 * * *"}, nil)
	require.NoError(t, enabled.Schedule(context.Background(), c))
	assert.Len(t, c.Entries(), 1)

	broken := NewService(nil, config.BackupConfig{Enabled: true, Schedule: "every day"}, nil)
	assert.Error(t, broken.Schedule(context.Background(), c))
}

func TestBackupTime(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"roombook_20240601_030000.db", true},
		{"roombook_20240601.db", false},
		{"backup_20240601_030000.db", false},
		{"roombook_20240601_030000.db-wal", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := backupTime(tt.name)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
