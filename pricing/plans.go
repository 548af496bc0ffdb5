package pricing

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/icodeforyou/priceplan-go/types"
)

// Plans is the immutable set of price plans known to the process, ordered by ID.
type Plans struct {
	plans []PricePlan
	byID  map[string]int
}

func NewPlans(plans ...PricePlan) (*Plans, error) {
	sorted := slices.Clone(plans)
	slices.SortFunc(sorted, func(a, b PricePlan) int { return cmp.Compare(a.ID, b.ID) })

	byID := make(map[string]int, len(sorted))
	for i, p := range sorted {
		if err := validRate(p.UnitRate); err != nil {
			return nil, fmt.Errorf("price plan %s: %w", p.ID, err)
		}
		if _, exists := byID[p.ID]; exists {
			return nil, fmt.Errorf("duplicate price plan id %q", p.ID)
		}
		byID[p.ID] = i
	}

	return &Plans{plans: sorted, byID: byID}, nil
}

func (p *Plans) Len() int {
	return len(p.plans)
}

// All returns a copy of the plans ordered by ID.
func (p *Plans) All() []PricePlan {
	return slices.Clone(p.plans)
}

func (p *Plans) IDs() []string {
	ids := make([]string, len(p.plans))
	for i, plan := range p.plans {
		ids[i] = plan.ID
	}
	return ids
}

func (p *Plans) Lookup(id string) (PricePlan, error) {
	i, ok := p.byID[id]
	if !ok {
		return PricePlan{}, fmt.Errorf("%w: %q", ErrUnknownPlanReference, id)
	}
	return p.plans[i], nil
}

// Accounts maps meters to the price plan they are currently on.
// A nil *Accounts has no registered meters.
type Accounts struct {
	current map[types.MeterID]string
}

func NewAccounts(plans *Plans, current map[types.MeterID]string) (*Accounts, error) {
	a := &Accounts{current: make(map[types.MeterID]string, len(current))}
	for meter, planID := range current {
		if _, err := plans.Lookup(planID); err != nil {
			return nil, fmt.Errorf("account for meter %s: %w", meter, err)
		}
		a.current[meter] = planID
	}
	return a, nil
}

func (a *Accounts) Len() int {
	if a == nil {
		return 0
	}
	return len(a.current)
}

func (a *Accounts) Registered(meter types.MeterID) bool {
	_, ok := a.PlanFor(meter)
	return ok
}

func (a *Accounts) PlanFor(meter types.MeterID) (string, bool) {
	if a == nil {
		return "", false
	}
	planID, ok := a.current[meter]
	return planID, ok
}
