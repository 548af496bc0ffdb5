package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/types"
)

var (
	_ types.ReadingStore  = (*Database)(nil)
	_ types.StatsProvider = (*Database)(nil)
)

// Append stores the batch in a single transaction, so readers see all of it or none.
func (d *Database) Append(ctx context.Context, meter types.MeterID, readings []types.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction for readings: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reading (meter_id, time, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare reading insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		_, err := stmt.ExecContext(ctx,
			string(meter),
			r.Time.UTC().Format(time.RFC3339Nano),
			r.Value.String())
		if err != nil {
			return fmt.Errorf("saving reading for meter %s: %w", meter, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit readings for meter %s: %w", meter, err)
	}

	d.logger.Debug("saved readings", slog.String("meter", meter.String()), slog.Int("count", len(readings)))
	return nil
}

func (d *Database) Get(ctx context.Context, meter types.MeterID) ([]types.Reading, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT time, value
		FROM reading
		WHERE meter_id = ?
		ORDER BY id ASC`,
		string(meter))
	if err != nil {
		return nil, fmt.Errorf("fetching readings for meter %s: %w", meter, err)
	}
	defer rows.Close()

	readings := []types.Reading{}
	var ts, value string
	for rows.Next() {
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("scanning reading row: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing reading time %q: %w", ts, err)
		}
		v, err := decimal.New(value)
		if err != nil {
			return nil, fmt.Errorf("parsing reading value: %w", err)
		}
		readings = append(readings, types.Reading{Time: t.UTC(), Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	return readings, nil
}

func (d *Database) Stats(ctx context.Context) (types.StoreStats, error) {
	var s types.StoreStats
	err := d.read.QueryRowContext(ctx, `SELECT COUNT(DISTINCT meter_id), COUNT(*) FROM reading`).Scan(&s.Meters, &s.Readings)
	if err != nil {
		return types.StoreStats{}, fmt.Errorf("counting readings: %w", err)
	}
	return s, nil
}
