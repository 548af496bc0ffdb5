package pricing

import (
	"fmt"

	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/types"
)

// Usage is the estimate derived from a meter's readings. Readings are
// treated as independent samples of an instantaneous rate; spacing between
// them is not taken into account.
type Usage struct {
	Mean     decimal.Decimal
	readings []types.Reading
}

func (u Usage) Count() int {
	return len(u.readings)
}

// EstimateUsage computes the arithmetic mean of all reading values.
// The result does not depend on the order of the readings.
func EstimateUsage(readings []types.Reading) (Usage, error) {
	if len(readings) == 0 {
		return Usage{}, ErrInsufficientData
	}

	values := make([]decimal.Decimal, len(readings))
	for i, r := range readings {
		values[i] = r.Value
	}

	mean, err := decimal.Sum(values...).Quo(decimal.NewFromInt64(int64(len(values))))
	if err != nil {
		return Usage{}, fmt.Errorf("estimating usage: %w", err)
	}

	return Usage{
		Mean:     mean,
		readings: append([]types.Reading(nil), readings...),
	}, nil
}
