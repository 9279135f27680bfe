package engine

import (
	"promokit/core"
)

// DiscountBase is the monetary amount a discount reward may touch, as a
// scalar plus a per-tax-bucket breakdown. The tax engine collaborator
// needs tax-homogeneous buckets to split price-included taxes correctly,
// so PerTax groups the base by each contributing line's tax-id set.
type DiscountBase struct {
	Discountable float64
	PerTax       map[string]float64
	TaxIDs       map[string][]core.TaxID

	// HalvePercent is set for cheapest-line rewards whose target line
	// already carries consumption overlap from an earlier reward in the
	// same pass (second-unit semantics).
	HalvePercent bool
}

// BaseLedger tracks, within one reconciliation pass, how much consumable
// amount each line has left. Earlier (higher-priority, already-applied)
// rewards decrement it so stacked discounts never double-count the same
// monetary base.
type BaseLedger map[core.LineID]float64

// NewBaseLedger seeds the ledger with every line's total with tax.
func NewBaseLedger(order *core.Order, te core.TaxEngine, rounding int) BaseLedger {
	ledger := make(BaseLedger, len(order.Lines))
	for _, l := range order.Lines {
		ledger[l.ID] = l.TotalWithTax(te, rounding)
	}
	return ledger
}

// Remaining returns the unconsumed amount for a line, falling back to
// full when the line was added after the ledger was seeded.
func (b BaseLedger) Remaining(l *core.OrderLine, te core.TaxEngine, rounding int) float64 {
	if amt, ok := b[l.ID]; ok {
		return amt
	}
	return l.TotalWithTax(te, rounding)
}

// Consume decrements a line's remaining consumable amount.
func (b BaseLedger) Consume(id core.LineID, amount float64) {
	b[id] -= amount
	if b[id] < 0 {
		b[id] = 0
	}
}

// ComputeDiscountBase computes the amount eligible for one discount
// reward, scoped per the reward's applicability. The result is always
// capped at the order's remaining total with tax; zero means "no reward
// lines produced", which is a normal outcome.
func (s *Service) ComputeDiscountBase(order *core.Order, e core.ClaimableReward, ledger BaseLedger) DiscountBase {
	base := DiscountBase{PerTax: make(map[string]float64), TaxIDs: make(map[string][]core.TaxID)}
	if e.Reward.Discount == nil {
		return base
	}
	switch e.Reward.Discount.Applicability {
	case core.DiscountOnOrder:
		s.orderBase(order, e, &base)
	case core.DiscountOnCheapest:
		s.cheapestBase(order, e, ledger, &base)
	case core.DiscountOnSpecific:
		s.specificBase(order, e, ledger, &base)
	}

	if cap := order.TotalWithTax(s.tax, s.rounding); base.Discountable > cap {
		base.Discountable = cap
	}
	base.Discountable = core.RoundHalfUp(base.Discountable, s.rounding)
	return base
}

// orderBase covers the entire order, excluding existing reward lines and
// global-discount lines. No per-tax breakdown: the order-level percentage
// combiner in the materializer handles this mode.
func (s *Service) orderBase(order *core.Order, e core.ClaimableReward, base *DiscountBase) {
	for _, l := range order.Lines {
		if l.IsRewardLine {
			continue
		}
		base.Discountable += l.TotalWithTax(s.tax, s.rounding)
	}
}

// cheapestBase covers the single lowest-priced qualifying line, one unit.
func (s *Service) cheapestBase(order *core.Order, e core.ClaimableReward, ledger BaseLedger, base *DiscountBase) {
	var cheapest *core.OrderLine
	for _, l := range order.Lines {
		if l.IsRewardLine || l.Qty <= 0 || l.UnitPrice <= 0 {
			continue
		}
		if cheapest == nil || l.UnitSubtotal() < cheapest.UnitSubtotal() {
			cheapest = l
		}
	}
	if cheapest == nil {
		return
	}
	unit := cheapest.TotalWithTax(s.tax, s.rounding) / cheapest.Qty
	remaining := ledger.Remaining(cheapest, s.tax, s.rounding)
	if remaining < cheapest.TotalWithTax(s.tax, s.rounding) {
		base.HalvePercent = true
	}
	if unit > remaining {
		unit = remaining
	}
	if unit <= 0 {
		return
	}
	key := cheapest.TaxKey()
	base.Discountable = unit
	base.PerTax[key] = unit
	base.TaxIDs[key] = append([]core.TaxID(nil), cheapest.TaxIDs...)
	ledger.Consume(cheapest.ID, unit)
}

// specificBase covers the qualifying target-product lines, each capped by
// the reward's per-order limit and by what earlier rewards left in the
// ledger.
func (s *Service) specificBase(order *core.Order, e core.ClaimableReward, ledger BaseLedger, base *DiscountBase) {
	d := e.Reward.Discount
	perUnitLimit := e.Program.Trigger == core.TriggerWithCode || e.Program.AppliesByBoxes
	for _, l := range order.Lines {
		if l.IsRewardLine || l.Qty <= 0 {
			continue
		}
		if !d.TargetsProduct(l.ProductID) {
			continue
		}
		amt := l.TotalWithTax(s.tax, s.rounding)
		if d.LimitPerOrder > 0 {
			limit := d.LimitPerOrder
			if perUnitLimit {
				limit *= l.Qty
			}
			if amt > limit {
				amt = limit
			}
		}
		if remaining := ledger.Remaining(l, s.tax, s.rounding); amt > remaining {
			amt = remaining
		}
		if amt <= 0 {
			continue
		}
		key := l.TaxKey()
		base.Discountable += amt
		base.PerTax[key] += amt
		if _, ok := base.TaxIDs[key]; !ok {
			base.TaxIDs[key] = append([]core.TaxID(nil), l.TaxIDs...)
		}
		ledger.Consume(l.ID, amt)
	}
}
