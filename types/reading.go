package types

import (
	"context"
	"time"

	"github.com/icodeforyou/priceplan-go/decimal"
)

// MeterID identifies a smart meter. It is opaque and case sensitive.
type MeterID string

func (id MeterID) String() string {
	return string(id)
}

// Reading is one timestamped sample of a meter's instantaneous usage rate (kW).
type Reading struct {
	Time  time.Time
	Value decimal.Decimal
}

// ReadingStore keeps an append only list of readings per meter.
//
// Append must store the whole batch atomically: a concurrent Get observes
// either none or all of it. Get returns readings in their stored relative
// order and an empty slice for a meter that has never been written.
type ReadingStore interface {
	Append(ctx context.Context, meter MeterID, readings []Reading) error
	Get(ctx context.Context, meter MeterID) ([]Reading, error)
}

// StoreStats is a point in time summary of a ReadingStore.
type StoreStats struct {
	Meters   int
	Readings int
}

// StatsProvider is implemented by stores that can summarize their content.
type StatsProvider interface {
	Stats(ctx context.Context) (StoreStats, error)
}
