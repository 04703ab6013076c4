package monitor

import (
	"time"

	"raptor/internal/models"
)

// EvaluateTrigger applies the spec §4.7 step 2 tie-break order — TP before SL
// before TRAIL before MAXHOLD — to a single price observation against p's
// immutable thresholds and st's live trailing/max-hold parameters. It never
// mutates p; callers persist peak_price and the trailing stop separately.
//
// TP and SL are inclusive bounds (price == threshold counts as a hit): TP
// fires at price >= tp_price, SL at price <= sl_price.
func EvaluateTrigger(p *models.Position, st *models.Strategy, price float64, now time.Time) string {
	if price >= p.TPPrice {
		return models.TriggerKindTP
	}
	if price <= p.SLPrice {
		return models.TriggerKindSL
	}
	if st.TrailingEnabled && p.TrailActivationPrice != nil && p.PeakPrice >= *p.TrailActivationPrice {
		trailStop := p.PeakPrice * (1 - st.TrailDistancePct/100)
		if price <= trailStop {
			return models.TriggerKindTrail
		}
	}
	if st.MaxHoldMinutes > 0 {
		held := now.Sub(p.OpenedAt)
		if held >= time.Duration(st.MaxHoldMinutes)*time.Minute {
			return models.TriggerKindMaxHold
		}
	}
	return ""
}
