package www

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/pricing"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/icodeforyou/priceplan-go/types/maybe"
)

// NewCompareAllHandler prices the meter's readings under every plan.
// pricePlanId is the recommended plan and stays null unless ?recommend=true
// is given. currentPricePlanId is the meter's plan from its account.
func NewCompareAllHandler(logger *slog.Logger, engine *pricing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meter := types.MeterID(mux.Vars(r)["smartMeterId"])

		c, err := engine.CompareAll(r.Context(), meter)
		if err != nil {
			logger.Debug("compare all failed", slog.String("meter", meter.String()), slog.Any("error", err))
			writeEngineError(w, r, err)
			return
		}

		recommended := maybe.None[string]()
		if boolOrDefault(r.URL, "recommend", false) {
			if best := c.Best(); best.IsValid() {
				recommended = maybe.Some(best.Value().PlanID)
			}
		}

		costs := make(map[string]decimal.Decimal, len(c.Costs))
		for id, cost := range c.Costs {
			costs[id] = cost.Reduce()
		}

		_ = writeJSON(w, http.StatusOK, compareAllResponseJSON{
			PricePlanComparisons: costs,
			PricePlanID:          recommended.Ptr(),
			CurrentPricePlanID:   c.Current.Ptr(),
		})
	}
}

// NewRecommendHandler ranks plans cheapest first, optionally cut to ?limit=N.
// A given limit must be a positive integer.
func NewRecommendHandler(logger *slog.Logger, engine *pricing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meter := types.MeterID(mux.Vars(r)["smartMeterId"])

		limit, err := optionalInt(r.URL, "limit")
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "invalid_argument", err.Error())
			return
		}
		if limit.IsValid() && limit.Value() <= 0 {
			writeAPIError(w, r, http.StatusBadRequest, "invalid_argument",
				fmt.Sprintf("limit must be a positive integer, got %d", limit.Value()))
			return
		}

		ranked, err := engine.Recommend(r.Context(), meter, limit)
		if err != nil {
			logger.Debug("recommend failed", slog.String("meter", meter.String()), slog.Any("error", err))
			writeEngineError(w, r, err)
			return
		}

		_ = writeJSON(w, http.StatusOK, recommendationJSON(ranked))
	}
}

// recommendationJSON renders each entry as a single key object {planId: cost}.
// Costs drop trailing fractional zeros, 36000.00 is written as 36000.
func recommendationJSON(ranked []pricing.Cost) []map[string]decimal.Decimal {
	out := make([]map[string]decimal.Decimal, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, map[string]decimal.Decimal{c.PlanID: c.Cost.Reduce()})
	}
	return out
}

func NewPricePlansHandler(plans *pricing.Plans) http.HandlerFunc {
	out := make([]pricePlanJSON, 0, plans.Len())
	for _, p := range plans.All() {
		pj := pricePlanJSON{ID: p.ID, Supplier: p.Supplier, UnitRate: p.UnitRate}
		for _, m := range p.PeakTimeMultipliers {
			mj := peakTimeMultiplierJSON{
				From:       m.Window.From.String(),
				To:         m.Window.To.String(),
				Multiplier: m.Multiplier,
			}
			for _, d := range m.Days {
				mj.Days = append(mj.Days, d.String())
			}
			pj.PeakTimeMultipliers = append(pj.PeakTimeMultipliers, mj)
		}
		out = append(out, pj)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		_ = writeJSON(w, http.StatusOK, out)
	}
}

// recommendationPusher sends a fresh recommendation to the websocket
// subscribers of a meter after new readings were stored.
type recommendationPusher struct {
	logger  *slog.Logger
	engine  *pricing.Engine
	hub     *Hub
	timeout time.Duration
}

func (p *recommendationPusher) push(meter types.MeterID) {
	if !p.hub.HasSubscribers(meter) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		ranked, err := p.engine.Recommend(ctx, meter, maybe.None[int]())
		if err != nil {
			p.logger.Warn("recommendation for subscribers failed", slog.String("meter", meter.String()), slog.Any("error", err))
			return
		}
		data, err := json.Marshal(recommendationJSON(ranked))
		if err != nil {
			p.logger.Error("encoding recommendation", slog.Any("error", err))
			return
		}
		if p.hub.Publish(ctx, meter, data) {
			recommendationsPushedTotal.Inc()
		}
	}()
}
