package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const defaultLogPageSize = 25

type LogEntryRow struct {
	Timestamp time.Time
	Level     int
	Message   string
	Attrs     string
}

// LogQuery selects one page of log rows, newest first.
type LogQuery struct {
	MinLevel slog.Level
	// Case insensitive part of the message, empty matches every row.
	Contains string
	Page     int
	PageSize int
}

// window turns the page into LIMIT and OFFSET, pages count from 1.
func (q LogQuery) window() (limit, offset int) {
	limit = q.PageSize
	if limit < 1 {
		limit = defaultLogPageSize
	}
	return limit, (max(q.Page, 1) - 1) * limit
}

func (d *Database) SaveLogEntry(ctx context.Context, r LogEntryRow) error {
	_, err := d.write.ExecContext(ctx,
		`INSERT INTO log (timestamp, level, message, attrs) VALUES (?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339Nano), r.Level, r.Message, r.Attrs)
	if err != nil {
		return fmt.Errorf("saving log entry: %w", err)
	}
	return nil
}

func (d *Database) GetLogEntries(ctx context.Context, q LogQuery) ([]LogEntryRow, error) {
	limit, offset := q.window()
	rows, err := d.read.QueryContext(ctx, `
		SELECT timestamp, level, message, attrs
		FROM log
		WHERE level >= ? AND (? = '' OR instr(lower(message), lower(?)) > 0)
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		int(q.MinLevel), q.Contains, q.Contains, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetching log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]LogEntryRow, 0, limit)
	for rows.Next() {
		r, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading log rows: %w", err)
	}
	return entries, nil
}

func scanLogEntry(rows *sql.Rows) (LogEntryRow, error) {
	var r LogEntryRow
	var ts string
	if err := rows.Scan(&ts, &r.Level, &r.Message, &r.Attrs); err != nil {
		return r, fmt.Errorf("scanning log row: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return r, fmt.Errorf("parsing log timestamp '%s': %w", ts, err)
	}
	r.Timestamp = t
	return r, nil
}

// PurgeLog keeps the newest maxLogEntries rows.
func (d *Database) PurgeLog(ctx context.Context, maxLogEntries int) error {
	res, err := d.write.ExecContext(ctx,
		`DELETE FROM log WHERE id <= (SELECT id FROM log ORDER BY id DESC LIMIT 1 OFFSET ?)`,
		maxLogEntries)
	if err != nil {
		return fmt.Errorf("purging log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.logger.Debug("purged log entries", slog.Int64("count", n))
	}
	return nil
}
