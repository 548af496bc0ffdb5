// Package redisstore keeps readings in redis, one list per meter.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/redis/go-redis/v9"
)

type Store struct {
	logger *slog.Logger
	rdb    *redis.Client
	prefix string
}

var (
	_ types.ReadingStore  = (*Store)(nil)
	_ types.StatsProvider = (*Store)(nil)
)

type storedReading struct {
	Time  time.Time       `json:"t"`
	Value decimal.Decimal `json:"v"`
}

func New(logger *slog.Logger, opts *redis.Options, keyPrefix string) *Store {
	return &Store{
		logger: logger,
		rdb:    redis.NewClient(opts),
		prefix: keyPrefix,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) readingsKey(meter types.MeterID) string {
	return s.prefix + "readings:" + string(meter)
}

func (s *Store) metersKey() string {
	return s.prefix + "meters"
}

// Append pushes the batch and registers the meter in one MULTI/EXEC, so a
// reader sees all of the batch or none of it.
func (s *Store) Append(ctx context.Context, meter types.MeterID, readings []types.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	values := make([]any, 0, len(readings))
	for _, r := range readings {
		b, err := json.Marshal(storedReading{Time: r.Time.UTC(), Value: r.Value})
		if err != nil {
			return fmt.Errorf("encoding reading: %w", err)
		}
		values = append(values, b)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.readingsKey(meter), values...)
		pipe.SAdd(ctx, s.metersKey(), string(meter))
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing readings for %s: %w", meter, err)
	}

	s.logger.Debug("saved readings", slog.String("meter", meter.String()), slog.Int("count", len(readings)))
	return nil
}

func (s *Store) Get(ctx context.Context, meter types.MeterID) ([]types.Reading, error) {
	raw, err := s.rdb.LRange(ctx, s.readingsKey(meter), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching readings for %s: %w", meter, err)
	}

	readings := make([]types.Reading, 0, len(raw))
	for _, item := range raw {
		var r storedReading
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("decoding reading for %s: %w", meter, err)
		}
		readings = append(readings, types.Reading{Time: r.Time, Value: r.Value})
	}
	return readings, nil
}

func (s *Store) Stats(ctx context.Context) (types.StoreStats, error) {
	meters, err := s.rdb.SMembers(ctx, s.metersKey()).Result()
	if err != nil {
		return types.StoreStats{}, fmt.Errorf("listing meters: %w", err)
	}

	cmds, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range meters {
			pipe.LLen(ctx, s.readingsKey(types.MeterID(m)))
		}
		return nil
	})
	if err != nil {
		return types.StoreStats{}, fmt.Errorf("counting readings: %w", err)
	}

	stats := types.StoreStats{Meters: len(meters)}
	for _, cmd := range cmds {
		stats.Readings += int(cmd.(*redis.IntCmd).Val())
	}
	return stats, nil
}
