package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/pricing"
)

type readingJSON struct {
	Time    time.Time        `json:"time"`
	Reading *decimal.Decimal `json:"reading"`
}

type storeReadingsRequestJSON struct {
	SmartMeterID        string        `json:"smartMeterId"`
	ElectricityReadings []readingJSON `json:"electricityReadings"`
}

type compareAllResponseJSON struct {
	PricePlanComparisons map[string]decimal.Decimal `json:"pricePlanComparisons"`
	PricePlanID          *string                    `json:"pricePlanId"`
	CurrentPricePlanID   *string                    `json:"currentPricePlanId,omitempty"`
}

type peakTimeMultiplierJSON struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	Days       []string        `json:"days,omitempty"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

type pricePlanJSON struct {
	ID                  string                   `json:"id"`
	Supplier            string                   `json:"supplier"`
	UnitRate            decimal.Decimal          `json:"unitRate"`
	PeakTimeMultipliers []peakTimeMultiplierJSON `json:"peakTimeMultipliers,omitempty"`
}

type logEntryJSON struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Attrs     string    `json:"attrs,omitempty"`
}

type apiErrorJSON struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	_ = writeJSON(w, status, apiErrorJSON{
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeEngineError maps pricing errors onto status codes, anything unknown is a 500.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pricing.ErrInsufficientData):
		writeAPIError(w, r, http.StatusNotFound, "no_readings", err.Error())
	case errors.Is(err, pricing.ErrUnknownMeter):
		writeAPIError(w, r, http.StatusNotFound, "unknown_meter", err.Error())
	case errors.Is(err, pricing.ErrInvalidLimit):
		writeAPIError(w, r, http.StatusBadRequest, "invalid_argument", err.Error())
	default:
		writeAPIError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
