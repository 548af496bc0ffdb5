package pricing

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/icodeforyou/priceplan-go/types/maybe"
)

// HoursPerYear is the default annualization factor for readings in kW.
const HoursPerYear = 8760

type Options struct {
	// Number of usage time units per year, identical for every plan.
	AnnualizationFactor decimal.Decimal
	// Costs are rounded half up to this many decimal places.
	CostDecimals int32
	// When set, meters without an account fail with ErrUnknownMeter.
	RequireRegisteredMeter bool
}

func DefaultOptions() Options {
	return Options{
		AnnualizationFactor: decimal.NewFromInt64(HoursPerYear),
		CostDecimals:        2,
	}
}

// Cost is the estimated annual cost of one plan.
type Cost struct {
	PlanID string
	Cost   decimal.Decimal
}

// Comparison holds the cost of every known plan for one meter, all derived
// from the same usage estimate.
type Comparison struct {
	Costs map[string]decimal.Decimal
	Usage Usage
	// The meter's current plan, when it has an account.
	Current maybe.Maybe[string]
}

type Engine struct {
	logger   *slog.Logger
	store    types.ReadingStore
	plans    *Plans
	accounts *Accounts
	opts     Options
}

func NewEngine(logger *slog.Logger, store types.ReadingStore, plans *Plans, accounts *Accounts, opts Options) (*Engine, error) {
	if plans == nil {
		return nil, fmt.Errorf("price plans are required")
	}
	if err := validRate(opts.AnnualizationFactor); err != nil {
		return nil, fmt.Errorf("annualization factor: %w", err)
	}
	if opts.CostDecimals < 0 {
		return nil, fmt.Errorf("cost decimals must be >= 0, got %d", opts.CostDecimals)
	}
	return &Engine{
		logger:   logger,
		store:    store,
		plans:    plans,
		accounts: accounts,
		opts:     opts,
	}, nil
}

func (e *Engine) Plans() *Plans {
	return e.plans
}

func (e *Engine) Accounts() *Accounts {
	return e.accounts
}

// CompareReadings estimates usage once and prices it under every plan.
func (e *Engine) CompareReadings(readings []types.Reading) (map[string]decimal.Decimal, Usage, error) {
	usage, err := EstimateUsage(readings)
	if err != nil {
		return nil, Usage{}, err
	}

	costs := make(map[string]decimal.Decimal, e.plans.Len())
	for _, plan := range e.plans.plans {
		cost, err := plan.AnnualCost(usage, e.opts.AnnualizationFactor)
		if err != nil {
			return nil, Usage{}, err
		}
		costs[plan.ID] = cost.Round(e.opts.CostDecimals)
	}
	return costs, usage, nil
}

// CompareAll prices the stored readings of meter under every known plan.
func (e *Engine) CompareAll(ctx context.Context, meter types.MeterID) (Comparison, error) {
	current, registered := e.accounts.PlanFor(meter)
	if e.opts.RequireRegisteredMeter && !registered {
		return Comparison{}, fmt.Errorf("%w: %s", ErrUnknownMeter, meter)
	}

	readings, err := e.store.Get(ctx, meter)
	if err != nil {
		return Comparison{}, fmt.Errorf("reading meter %s: %w", meter, err)
	}

	costs, usage, err := e.CompareReadings(readings)
	if err != nil {
		return Comparison{}, fmt.Errorf("comparing plans for meter %s: %w", meter, err)
	}

	e.logger.Debug("compared price plans",
		slog.String("meter", meter.String()),
		slog.Int("readings", usage.Count()),
		slog.String("mean", usage.Mean.String()))

	c := Comparison{Costs: costs, Usage: usage, Current: maybe.None[string]()}
	if registered {
		c.Current = maybe.Some(current)
	}
	return c, nil
}

// Recommend ranks every plan for meter by ascending cost, ties broken by
// plan ID, keeping at most limit entries when a limit is given.
func (e *Engine) Recommend(ctx context.Context, meter types.MeterID, limit maybe.Maybe[int]) ([]Cost, error) {
	if limit.IsValid() && limit.Value() < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit.Value())
	}

	c, err := e.CompareAll(ctx, meter)
	if err != nil {
		return nil, err
	}
	return Rank(c.Costs, limit)
}

// Best is the cheapest plan of the comparison, ties broken by plan ID.
// It is None when there are no plans.
func (c Comparison) Best() maybe.Maybe[Cost] {
	ranked, err := Rank(c.Costs, maybe.Some(1))
	if err != nil || len(ranked) == 0 {
		return maybe.None[Cost]()
	}
	return maybe.Some(ranked[0])
}

// Rank orders costs ascending, ties broken by ascending plan ID. A limit
// larger than the number of plans returns all of them, zero returns none.
func Rank(costs map[string]decimal.Decimal, limit maybe.Maybe[int]) ([]Cost, error) {
	if limit.IsValid() && limit.Value() < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit.Value())
	}

	ranked := make([]Cost, 0, len(costs))
	for id, cost := range costs {
		ranked = append(ranked, Cost{PlanID: id, Cost: cost})
	}
	slices.SortFunc(ranked, func(a, b Cost) int {
		if c := a.Cost.Cmp(b.Cost); c != 0 {
			return c
		}
		return cmp.Compare(a.PlanID, b.PlanID)
	})

	if n := limit.ValueOrDefault(len(ranked)); n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked, nil
}
