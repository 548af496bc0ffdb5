package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/icodeforyou/priceplan-go/types"
)

func NewSummaryTask(logger *slog.Logger, stats types.StatsProvider) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := stats.Stats(ctx)
		if err != nil {
			logger.Error("store summary error", slog.Any("error", err))
			return
		}
		logger.Info("store summary", slog.Int("meters", s.Meters), slog.Int("readings", s.Readings))
	}
}
