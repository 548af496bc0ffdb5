package pricing

import "errors"

var (
	// ErrInsufficientData is returned when a meter has no readings to estimate from.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidRate is returned for negative or non-finite rates and multipliers.
	ErrInvalidRate = errors.New("invalid rate")
	// ErrUnknownPlanReference is returned when something references a plan that is not configured.
	ErrUnknownPlanReference = errors.New("unknown price plan reference")
	// ErrUnknownMeter is returned when registered meters are required and the meter has no account.
	ErrUnknownMeter = errors.New("unknown meter")
	// ErrInvalidLimit is returned for a negative recommendation limit.
	ErrInvalidLimit = errors.New("invalid limit")
)
