package task

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/icodeforyou/priceplan-go/config"
	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/readings"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaintainer struct {
	calls         []string
	retentionDays int
	maxEntries    int
	backupErr     error
}

func (f *fakeMaintainer) Backup(context.Context) error {
	f.calls = append(f.calls, "backup")
	return f.backupErr
}

func (f *fakeMaintainer) PurgeBackups(_ context.Context, retentionDays int) error {
	f.calls = append(f.calls, "purge_backups")
	f.retentionDays = retentionDays
	return nil
}

func (f *fakeMaintainer) PurgeLog(_ context.Context, maxLogEntries int) error {
	f.calls = append(f.calls, "purge_log")
	f.maxEntries = maxLogEntries
	return nil
}

func TestMaintenanceTask(t *testing.T) {
	days, entries := 7, 500
	cnfg := &config.AppConfig{}
	cnfg.Database.BackupRetentionDays = &days
	cnfg.Logging.DbMaxEntries = &entries

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	db := &fakeMaintainer{backupErr: errors.New("disk full")}

	NewMaintenanceTask(logger, db, cnfg)()

	assert.Equal(t, []string{"backup", "purge_backups", "purge_log"}, db.calls)
	assert.Equal(t, 7, db.retentionDays)
	assert.Equal(t, 500, db.maxEntries)
	assert.Contains(t, buf.String(), "database backup error")
	assert.Contains(t, buf.String(), "maintenance task done")
}

func TestSummaryTask(t *testing.T) {
	store := readings.NewMemStore()
	require.NoError(t, store.Append(context.Background(), "m", []types.Reading{
		{Time: time.Now(), Value: decimal.NewFromInt64(1)},
		{Time: time.Now(), Value: decimal.NewFromInt64(2)},
	}))

	var buf bytes.Buffer
	NewSummaryTask(slog.New(slog.NewTextHandler(&buf, nil)), store)()

	assert.Contains(t, buf.String(), "meters=1")
	assert.Contains(t, buf.String(), "readings=2")
}

func TestTasksRun(t *testing.T) {
	bad := "not a cron spec"
	cnfg := &config.AppConfig{}
	cnfg.Maintenance.RunAt = &bad
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	withoutDb := NewTasks(logger, readings.NewMemStore(), nil, cnfg)
	assert.Nil(t, withoutDb.MaintenanceTask)
	require.NoError(t, withoutDb.Run())
	<-withoutDb.Stop().Done()

	withDb := NewTasks(logger, readings.NewMemStore(), &fakeMaintainer{}, cnfg)
	assert.ErrorContains(t, withDb.Run(), "maintenance")
}
