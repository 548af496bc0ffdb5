package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/icodeforyou/priceplan-go/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type savedRows struct {
	rows []database.LogEntryRow
	err  error
}

func (s *savedRows) SaveLogEntry(_ context.Context, r database.LogEntryRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, r)
	return nil
}

func TestLevelFromString(t *testing.T) {
	str := func(s string) *string { return &s }
	tests := []struct {
		in   *string
		want slog.Level
	}{
		{nil, slog.LevelInfo},
		{str("debug"), slog.LevelDebug},
		{str("WARN"), slog.LevelWarn},
		{str("warning"), slog.LevelWarn},
		{str(" Error "), slog.LevelError},
		{str("verbose"), slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromString(tt.in))
	}
}

func TestSQLiteHandler(t *testing.T) {
	t.Run("json attrs with groups", func(t *testing.T) {
		saver := &savedRows{}
		logger := slog.New(NewSQLiteHandler(saver, slog.LevelInfo, LogAttrFormatJSON))

		logger.With("module", "www").WithGroup("req").Info("stored", slog.Int("count", 3))
		logger.Debug("too verbose")

		require.Len(t, saver.rows, 1)
		row := saver.rows[0]
		assert.Equal(t, "stored", row.Message)
		assert.Equal(t, int(slog.LevelInfo), row.Level)
		assert.False(t, row.Timestamp.IsZero())
		assert.JSONEq(t, `[{"module":"www"},{"req.count":"3"}]`, row.Attrs)
	})

	t.Run("text attrs are escaped", func(t *testing.T) {
		saver := &savedRows{}
		logger := slog.New(NewSQLiteHandler(saver, slog.LevelInfo, LogAttrFormatText))

		logger.Warn("odd", slog.String("expr", "a=b;c"), slog.Int("n", 1))

		require.Len(t, saver.rows, 1)
		assert.Equal(t, `expr=a\=b\;c; n=1`, saver.rows[0].Attrs)
	})

	t.Run("level can change at runtime", func(t *testing.T) {
		saver := &savedRows{}
		var level slog.LevelVar
		level.Set(slog.LevelError)
		logger := slog.New(NewSQLiteHandler(saver, &level, LogAttrFormatJSON))

		logger.Info("dropped")
		level.Set(slog.LevelInfo)
		logger.Info("kept")

		require.Len(t, saver.rows, 1)
		assert.Equal(t, "kept", saver.rows[0].Message)
		assert.Empty(t, saver.rows[0].Attrs)
	})
}

func TestMultiHandler(t *testing.T) {
	var info, errOnly bytes.Buffer
	failing := &savedRows{err: errors.New("disk full")}
	h := NewMultiHandler(
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&errOnly, &slog.HandlerOptions{Level: slog.LevelError}),
		NewSQLiteHandler(failing, slog.LevelError, LogAttrFormatJSON),
	)

	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h).With("module", "test")
	logger.Info("hello")
	logger.Error("boom")

	assert.Equal(t, 2, strings.Count(info.String(), "module=test"))
	assert.Contains(t, errOnly.String(), "boom")
	assert.NotContains(t, errOnly.String(), "hello")

	r := slog.NewRecord(time.Now(), slog.LevelError, "direct", 0)
	err := h.Handle(context.Background(), r)
	assert.ErrorContains(t, err, "disk full")
}
