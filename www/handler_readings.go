package www

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/icodeforyou/priceplan-go/types"
)

const maxStoreBodyBytes = 4 << 20

// NewStoreReadingsHandler appends a batch of readings for a meter. The batch
// is stored whole or rejected whole. onStored runs after a successful append.
func NewStoreReadingsHandler(logger *slog.Logger, store types.ReadingStore, onStored func(types.MeterID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storeReadingsRequestJSON
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStoreBodyBytes))
		if err := dec.Decode(&req); err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "invalid_argument", fmt.Sprintf("invalid body: %v", err))
			return
		}

		meter, batch, err := req.validate()
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "invalid_argument", err.Error())
			return
		}

		if err := store.Append(r.Context(), meter, batch); err != nil {
			logger.Error("storing readings", slog.String("meter", meter.String()), slog.Any("error", err))
			writeAPIError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}
		readingsStoredTotal.Add(float64(len(batch)))
		logger.Debug("stored readings", slog.String("meter", meter.String()), slog.Int("count", len(batch)))

		if onStored != nil {
			onStored(meter)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (req storeReadingsRequestJSON) validate() (types.MeterID, []types.Reading, error) {
	if req.SmartMeterID == "" {
		return "", nil, fmt.Errorf("smartMeterId is required")
	}
	if len(req.ElectricityReadings) == 0 {
		return "", nil, fmt.Errorf("electricityReadings must not be empty")
	}

	batch := make([]types.Reading, 0, len(req.ElectricityReadings))
	for i, rj := range req.ElectricityReadings {
		switch {
		case rj.Time.IsZero():
			return "", nil, fmt.Errorf("reading %d: time is required", i)
		case rj.Reading == nil:
			return "", nil, fmt.Errorf("reading %d: reading is required", i)
		case rj.Reading.Sign() < 0:
			return "", nil, fmt.Errorf("reading %d: reading must not be negative", i)
		}
		batch = append(batch, types.Reading{Time: rj.Time.UTC(), Value: *rj.Reading})
	}
	return types.MeterID(req.SmartMeterID), batch, nil
}

// NewReadReadingsHandler returns the stored readings of a meter in stored
// order, an unknown meter has none.
func NewReadReadingsHandler(logger *slog.Logger, store types.ReadingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meter := types.MeterID(mux.Vars(r)["smartMeterId"])

		readings, err := store.Get(r.Context(), meter)
		if err != nil {
			logger.Error("reading readings", slog.String("meter", meter.String()), slog.Any("error", err))
			writeAPIError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}

		out := make([]readingJSON, 0, len(readings))
		for _, rd := range readings {
			rd := rd
			out = append(out, readingJSON{Time: rd.Time.UTC(), Reading: &rd.Value})
		}
		_ = writeJSON(w, http.StatusOK, out)
	}
}
