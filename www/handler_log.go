package www

import (
	"log/slog"
	"net/http"

	"github.com/icodeforyou/priceplan-go/database"
	"github.com/icodeforyou/priceplan-go/logging"
)

// NewLogHandler pages through the log table, newest first.
// Query: page (1..), pageSize (default 25), level (default DEBUG) and
// q, a case insensitive part of the message.
func NewLogHandler(logger *slog.Logger, db *database.Database) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := database.LogQuery{
			MinLevel: slog.LevelDebug,
			Contains: r.URL.Query().Get("q"),
			Page:     intOrDefault(r.URL, "page", 1),
			PageSize: intOrDefault(r.URL, "pageSize", 25),
		}
		if l := r.URL.Query().Get("level"); l != "" {
			query.MinLevel = logging.LevelFromString(&l)
		}

		e, err := db.GetLogEntries(r.Context(), query)
		if err != nil {
			logger.Error("handling log request", slog.Any("error", err))
			writeAPIError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}

		out := make([]logEntryJSON, 0, len(e))
		for _, row := range e {
			out = append(out, logEntryJSON{
				Timestamp: row.Timestamp,
				Level:     slog.Level(row.Level).String(),
				Message:   row.Message,
				Attrs:     row.Attrs,
			})
		}
		_ = writeJSON(w, http.StatusOK, out)
	}
}
