package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"promokit/core"
)

// Materialization errors. Both are per-reward conditions the reconciler
// logs and tolerates; they never abort a pass.
var (
	ErrNoEligibleLine    = errors.New("no eligible order line for reward")
	ErrNothingToDiscount = errors.New("nothing left to discount")
)

// MaterializeReward turns one claimed reward plus its granted quantity
// into concrete order-line records. qty is the quantity the point
// distributor granted (multiples for regular rewards, base units for
// box-quantized ones); available is the coupon's spendable balance.
//
// The returned lines are not yet attached to the order; the weekday-
// combined free-product path instead mutates the trigger line in place
// and returns no new lines.
func (s *Service) MaterializeReward(order *core.Order, e core.ClaimableReward, qty, available float64, ledger BaseLedger) ([]*core.OrderLine, error) {
	switch e.Reward.Kind {
	case core.RewardProduct:
		return s.materializeProduct(order, e, qty, available)
	case core.RewardDiscount:
		return s.materializeDiscount(order, e, qty, available, ledger)
	default:
		return nil, fmt.Errorf("unknown reward kind %q", e.Reward.Kind)
	}
}

func (s *Service) materializeProduct(order *core.Order, e core.ClaimableReward, qty, available float64) ([]*core.OrderLine, error) {
	reward := e.Reward
	pr := reward.Product
	trigger := triggerLine(order, pr)
	if trigger == nil {
		return nil, ErrNoEligibleLine
	}

	unclaimed := UnclaimedFreeQty(order, reward)
	if unclaimed <= 0 {
		return nil, ErrNoEligibleLine
	}
	count := math.Ceil(unclaimed / pr.Quantity)
	if reward.RequiredPoints > 0 && qty < count {
		count = qty
	}
	if count <= 0 {
		return nil, ErrNoEligibleLine
	}

	cost := count * reward.RequiredPoints
	if reward.ClearWallet {
		cost = available
	}
	freeQty := math.Min(unclaimed, pr.Quantity*count)

	// An independent weekday promotion folds the grant into the trigger
	// line's discount instead of adding a separate reward line.
	if wp := s.weekday.PercentFor(order.Date, trigger.ProductID); wp > 0 {
		combined := wp
		if trigger.DiscountPercent > 0 {
			combined = math.Max(trigger.DiscountPercent, wp)
		}
		reason := fmt.Sprintf("%s: %.2f%% reward combined with %.2f%% weekday promo",
			e.Program.Name, trigger.DiscountPercent, wp)
		if err := trigger.SetDiscount(combined, reason); err != nil {
			return nil, err
		}
		if err := trigger.MarkPartOfReward(e.Program.ID, reward.ID, e.CouponID, cost); err != nil {
			return nil, err
		}
		trigger.PercentApplied = combined
		return nil, nil
	}

	line := &core.OrderLine{
		ID:        core.LineID(uuid.NewString()),
		ProductID: trigger.ProductID,
		Qty:       freeQty,
		UnitPrice: -trigger.UnitPrice,
		TaxIDs:    append([]core.TaxID(nil), trigger.TaxIDs...),
	}
	if err := line.BindReward(e.Program.ID, reward.ID, e.CouponID); err != nil {
		return nil, err
	}
	line.PointsCost = cost
	line.RewardCode = uuid.NewString()
	line.PercentApplied = 100
	return []*core.OrderLine{line}, nil
}

// triggerLine finds the first non-reward line carrying one of the reward
// products.
func triggerLine(order *core.Order, pr *core.ProductReward) *core.OrderLine {
	for _, l := range order.Lines {
		if !l.IsRewardLine && l.Qty > 0 && pr.TargetsProduct(l.ProductID) {
			return l
		}
	}
	return nil
}

func (s *Service) materializeDiscount(order *core.Order, e core.ClaimableReward, qty, available float64, ledger BaseLedger) ([]*core.OrderLine, error) {
	d := e.Reward.Discount
	base := s.ComputeDiscountBase(order, e, ledger)
	if base.Discountable <= 0 {
		return nil, ErrNothingToDiscount
	}

	points := qty * e.Reward.RequiredPoints
	if e.Reward.ClearWallet {
		points = available
	}
	if e.Program.AppliesByBoxes {
		// Box-quantized grants arrive in base units, already point-valued.
		points = qty
	}

	effectivePercent := s.effectivePercent(order, e, base)
	maxDiscount := s.maxDiscount(d, effectivePercent, points, base.Discountable)
	if maxDiscount <= 0 {
		return nil, ErrNothingToDiscount
	}

	reason := ""
	if wp := s.weekdayPercentFor(order, e); wp > 0 {
		reason = fmt.Sprintf("%s: %.2f%% reward combined with %.2f%% weekday promo", e.Program.Name, d.Value, wp)
	}

	// Payment-like programs and whole-order rewards collapse to a single
	// negative price-tax-inclusive line; everything else splits per tax
	// bucket so price-included taxes stay correct.
	if e.Program.Payment != core.PaymentNone || d.Applicability == core.DiscountOnOrder {
		amount := math.Min(maxDiscount, base.Discountable)
		line := s.newDiscountLine(e, -core.RoundHalfUp(amount, s.rounding), nil)
		line.PointsCost = points
		line.PercentApplied = effectivePercent
		line.DiscountReason = reason
		return []*core.OrderLine{line}, nil
	}

	factor := math.Min(1, maxDiscount/base.Discountable)
	var lines []*core.OrderLine
	for _, key := range sortedKeys(base.PerTax) {
		amount := core.RoundHalfUp(base.PerTax[key]*factor, s.rounding)
		if amount == 0 {
			continue
		}
		line := s.newDiscountLine(e, -amount, base.TaxIDs[key])
		line.PercentApplied = effectivePercent
		line.DiscountReason = reason
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, ErrNothingToDiscount
	}
	// Points cost rides entirely on the first emitted line.
	lines[0].PointsCost = points
	return lines, nil
}

// effectivePercent resolves the display/compute percentage for a percent
// discount, merging the weekday promotion unless the combination is
// suppressed (main reward of a second-unit program). Whole-order rewards
// use the sequential/additive combiner; the rest use a clamped sum
// rounded to two decimals.
func (s *Service) effectivePercent(order *core.Order, e core.ClaimableReward, base DiscountBase) float64 {
	d := e.Reward.Discount
	if d.Mode != core.DiscountPercent {
		return 0
	}
	percent := d.Value
	if base.HalvePercent && d.Applicability == core.DiscountOnCheapest {
		percent /= 2
	}
	if e.Reward.IsMain && e.Program.SecondUnitPromo {
		return core.RoundHalfUp(core.ClampPercent(percent), 2)
	}
	wp := s.weekdayPercentFor(order, e)
	if wp == 0 {
		return core.RoundHalfUp(core.ClampPercent(percent), 2)
	}
	if d.Applicability == core.DiscountOnOrder {
		return core.CombinePercents(percent, wp, s.weekday.Mode)
	}
	return core.RoundHalfUp(core.ClampPercent(percent+wp), 2)
}

// weekdayPercentFor returns the weekday promotion percentage applicable
// to the reward's scope: the best across the target products for specific
// rewards, any product otherwise.
func (s *Service) weekdayPercentFor(order *core.Order, e core.ClaimableReward) float64 {
	d := e.Reward.Discount
	if d != nil && len(d.ProductIDs) > 0 {
		var best float64
		for _, pid := range d.ProductIDs {
			if wp := s.weekday.PercentFor(order.Date, pid); wp > best {
				best = wp
			}
		}
		return best
	}
	return s.weekday.PercentFor(order.Date, "")
}

func (s *Service) maxDiscount(d *core.DiscountReward, effectivePercent, points, discountable float64) float64 {
	var out float64
	switch d.Mode {
	case core.DiscountPerPoint:
		out = d.Value * points
	case core.DiscountPerOrder:
		out = d.Value
	case core.DiscountPercent:
		out = discountable * effectivePercent / 100
	}
	if d.MaxAmount > 0 && out > d.MaxAmount {
		out = d.MaxAmount
	}
	return out
}

func (s *Service) newDiscountLine(e core.ClaimableReward, price float64, taxIDs []core.TaxID) *core.OrderLine {
	line := &core.OrderLine{
		ID:        core.LineID(uuid.NewString()),
		ProductID: discountProductID(e),
		Qty:       1,
		UnitPrice: price,
		TaxIDs:    taxIDs,
	}
	// BindReward cannot fail here: program and reward ids are non-empty
	// catalog data.
	_ = line.BindReward(e.Program.ID, e.Reward.ID, e.CouponID)
	line.RewardCode = uuid.NewString()
	return line
}

// discountProductID names the synthetic product a discount line is booked
// on.
func discountProductID(e core.ClaimableReward) core.ProductID {
	return core.ProductID("discount:" + string(e.Reward.ID))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
