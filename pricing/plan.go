package pricing

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/hours"
)

// PeakTimeMultiplier scales the usage of readings taken inside Window.
// An empty Days list matches every day of the week.
type PeakTimeMultiplier struct {
	Window     hours.Range
	Days       []time.Weekday
	Multiplier decimal.Decimal
}

func (m PeakTimeMultiplier) Applies(t time.Time) bool {
	if len(m.Days) > 0 && !slices.Contains(m.Days, t.UTC().Weekday()) {
		return false
	}
	return m.Window.Contains(t)
}

// rateModel turns a usage estimate into the usage figure a plan charges for.
type rateModel interface {
	chargedUsage(u Usage) (decimal.Decimal, error)
}

type flatRate struct{}

func (flatRate) chargedUsage(u Usage) (decimal.Decimal, error) {
	return u.Mean, nil
}

// timeWeighted buckets readings by the first matching rule. Readings matching
// no rule fall in a default bucket with multiplier 1. Each bucket contributes
// its mean times its multiplier times its share of the samples, which is
// Σ(multiplier × bucket sum) / n.
type timeWeighted struct {
	rules []PeakTimeMultiplier
}

func (tw timeWeighted) chargedUsage(u Usage) (decimal.Decimal, error) {
	if u.Count() == 0 {
		return decimal.Zero, ErrInsufficientData
	}

	buckets := make([][]decimal.Decimal, len(tw.rules)+1)
	for _, r := range u.readings {
		idx := slices.IndexFunc(tw.rules, func(rule PeakTimeMultiplier) bool { return rule.Applies(r.Time) })
		if idx < 0 {
			idx = len(tw.rules)
		}
		buckets[idx] = append(buckets[idx], r.Value)
	}

	weighted := make([]decimal.Decimal, 0, len(buckets))
	for i, values := range buckets {
		if len(values) == 0 {
			continue
		}
		multiplier := decimal.NewFromInt64(1)
		if i < len(tw.rules) {
			multiplier = tw.rules[i].Multiplier
		}
		weighted = append(weighted, decimal.Sum(values...).Mul(multiplier))
	}

	return decimal.Sum(weighted...).Quo(decimal.NewFromInt64(int64(u.Count())))
}

// PricePlan is a tariff offered by a supplier. Build it with NewPricePlan.
type PricePlan struct {
	ID                  string
	Supplier            string
	UnitRate            decimal.Decimal
	PeakTimeMultipliers []PeakTimeMultiplier
	model               rateModel
}

func NewPricePlan(id, supplier string, unitRate decimal.Decimal, multipliers ...PeakTimeMultiplier) (PricePlan, error) {
	if id == "" {
		return PricePlan{}, errors.New("price plan id is required")
	}
	if err := validRate(unitRate); err != nil {
		return PricePlan{}, fmt.Errorf("price plan %s unit rate: %w", id, err)
	}
	for i, m := range multipliers {
		if err := validRate(m.Multiplier); err != nil {
			return PricePlan{}, fmt.Errorf("price plan %s multiplier %d: %w", id, i, err)
		}
	}

	p := PricePlan{
		ID:       id,
		Supplier: supplier,
		UnitRate: unitRate,
		model:    flatRate{},
	}
	if len(multipliers) > 0 {
		p.PeakTimeMultipliers = slices.Clone(multipliers)
		p.model = timeWeighted{rules: p.PeakTimeMultipliers}
	}
	return p, nil
}

func validRate(d decimal.Decimal) error {
	if !d.IsFinite() {
		return fmt.Errorf("%w: %s is not finite", ErrInvalidRate, d)
	}
	if d.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrInvalidRate, d)
	}
	return nil
}

func (p PricePlan) TimeWeighted() bool {
	_, ok := p.model.(timeWeighted)
	return ok
}

// AnnualCost projects the usage estimate to a yearly cost under this plan:
// charged usage × unit rate × annualization factor.
func (p PricePlan) AnnualCost(u Usage, annualizationFactor decimal.Decimal) (decimal.Decimal, error) {
	if err := validRate(p.UnitRate); err != nil {
		return decimal.Zero, fmt.Errorf("price plan %s: %w", p.ID, err)
	}

	model := p.model
	if model == nil {
		model = flatRate{}
	}
	usage, err := model.chargedUsage(u)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price plan %s: %w", p.ID, err)
	}

	return usage.Mul(p.UnitRate).Mul(annualizationFactor), nil
}
