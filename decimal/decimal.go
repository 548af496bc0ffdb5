package decimal

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Precision is the number of significant digits kept by every operation.
const Precision = 34

var ErrNotFinite = errors.New("decimal is not finite")

// Decimal is an immutable arbitrary precision decimal number.
// The zero value is 0.
type Decimal struct {
	value apd.Decimal
}

var Zero = Decimal{}

func arith() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(Precision)
	ctx.Rounding = apd.RoundHalfUp
	return ctx
}

func New(s string) (Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return Decimal{value: d}, nil
}

// MustNew is like New but panics on malformed input. Meant for constants and tests.
func MustNew(s string) Decimal {
	d, err := New(s)
	if err != nil {
		panic(err)
	}
	return d
}

func NewFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

func (d Decimal) String() string {
	return d.value.Text('f')
}

func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

func (d Decimal) IsFinite() bool {
	return d.value.Form == apd.Finite
}

// Sign returns -1, 0 or +1. NaN reports 0.
func (d Decimal) Sign() int {
	return d.value.Sign()
}

func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

func (d Decimal) Equal(other Decimal) bool {
	return d.Cmp(other) == 0
}

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	arith().Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns the product of d and other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	arith().Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Quo returns the quotient of d divided by other.
func (d Decimal) Quo(other Decimal) (Decimal, error) {
	var result apd.Decimal
	if _, err := arith().Quo(&result, &d.value, &other.value); err != nil {
		return Decimal{}, fmt.Errorf("dividing %s by %s: %w", d, other, err)
	}
	return Decimal{value: result}, nil
}

// Round rounds half up to the given number of decimal places. The
// precision grows with the integer digits of d, so large values keep all of
// them. Non finite values are returned as is.
func (d Decimal) Round(places int32) Decimal {
	if !d.IsFinite() {
		return d
	}
	intDigits := d.value.NumDigits() + int64(d.value.Exponent)
	precision := max(int64(Precision), intDigits+int64(places)+1)

	ctx := apd.BaseContext.WithPrecision(uint32(precision))
	ctx.Rounding = apd.RoundHalfUp
	var result apd.Decimal
	if _, err := ctx.Quantize(&result, &d.value, -places); err != nil {
		// Only reachable with absurd exponents, beyond what apd can represent.
		panic(fmt.Sprintf("rounding %s to %d places: %v", d, places, err))
	}
	return Decimal{value: result}
}

// Reduce drops trailing fractional zeros, 36000.00 becomes 36000 and 0.50
// becomes 0.5. The value is unchanged.
func (d Decimal) Reduce() Decimal {
	if !d.IsFinite() {
		return d
	}
	var result apd.Decimal
	result.Reduce(&d.value)
	if result.Exponent > 0 {
		// Keep integers in plain notation: 3.6E+4 back to 36000.
		ctx := apd.BaseContext.WithPrecision(uint32(result.NumDigits() + int64(result.Exponent)))
		if _, err := ctx.Quantize(&result, &result, 0); err != nil {
			panic(fmt.Sprintf("reducing %s: %v", d, err))
		}
	}
	return Decimal{value: result}
}

// Sum adds all values without rounding, so the result does not depend on
// their order. An empty input sums to Zero.
func Sum(values ...Decimal) Decimal {
	ctx := apd.BaseContext.WithPrecision(0)
	var total apd.Decimal
	for i := range values {
		ctx.Add(&total, &total, &values[i].value)
	}
	return Decimal{value: total}
}

// MarshalJSON writes the value as a bare JSON number.
func (d Decimal) MarshalJSON() ([]byte, error) {
	if !d.IsFinite() {
		return nil, fmt.Errorf("%w: %s", ErrNotFinite, d.value.String())
	}
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts a JSON number or a string holding a number.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return errors.New("decimal must not be null")
	}
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	v, err := New(string(data))
	if err != nil {
		return err
	}
	if !v.IsFinite() {
		return fmt.Errorf("%w: %s", ErrNotFinite, data)
	}
	*d = v
	return nil
}
