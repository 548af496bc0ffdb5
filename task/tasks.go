package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/icodeforyou/priceplan-go/config"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/robfig/cron/v3"
)

type Tasks struct {
	cron            *cron.Cron
	cnfg            *config.AppConfig
	SummaryTask     func()
	MaintenanceTask func() // nil unless readings are kept in sqlite
}

// NewTasks schedules the store summary for every driver. Maintenance is only
// scheduled when db is not nil.
func NewTasks(logger *slog.Logger, stats types.StatsProvider, db Maintainer, cnfg *config.AppConfig) *Tasks {
	logger = logger.With("module", "tasks")
	t := &Tasks{
		cron:        cron.New(),
		cnfg:        cnfg,
		SummaryTask: NewSummaryTask(logger.With(slog.String("task", "summary")), stats),
	}
	if db != nil {
		t.MaintenanceTask = NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), db, cnfg)
	}
	return t
}

func (t *Tasks) Run() error {
	if _, err := t.cron.AddFunc(t.cnfg.Maintenance.GetSummaryAt(), t.SummaryTask); err != nil {
		return fmt.Errorf("schedule summary task: %w", err)
	}
	if t.MaintenanceTask != nil {
		if _, err := t.cron.AddFunc(t.cnfg.Maintenance.GetRunAt(), t.MaintenanceTask); err != nil {
			return fmt.Errorf("schedule maintenance task: %w", err)
		}
	}
	t.cron.Start()
	return nil
}

// Stop returns a context that is done when running jobs have finished.
func (t *Tasks) Stop() context.Context {
	return t.cron.Stop()
}
