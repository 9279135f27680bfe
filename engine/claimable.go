package engine

import (
	"context"
	"sort"

	"promokit/core"
)

// AttachPointChanges binds the rule evaluator's output to coupon
// contexts on the order. Programs that earned points but have no coupon
// yet get an order-local accrual coupon (a nominative card when the
// program requires one); every unattributed change is assigned to that
// program's accrual coupon so available-point math never double counts.
func AttachPointChanges(order *core.Order, programs []*core.Program, changes map[core.ProgramID][]core.PointChange) {
	byID := make(map[core.ProgramID]*core.Program, len(programs))
	for _, p := range programs {
		byID[p.ID] = p
	}
	for pid, list := range changes {
		program := byID[pid]
		if program == nil {
			continue
		}
		coupon := accrualCoupon(order, program)
		for i := range list {
			if list[i].CouponID == "" {
				list[i].CouponID = coupon.ID
			}
		}
		changes[pid] = list
	}
	order.PointChanges = changes
}

// accrualCoupon finds or creates the coupon that collects a program's
// order-earned points.
func accrualCoupon(order *core.Order, program *core.Program) *core.Coupon {
	for _, c := range order.Coupons {
		if c.ProgramID == program.ID {
			return c
		}
	}
	id := core.CouponID("local:" + string(program.ID))
	c := &core.Coupon{ID: id, ProgramID: program.ID}
	if program.IsNominative {
		c.ID = core.CouponID("card:" + string(program.ID) + ":" + string(order.PartnerID))
		c.PartnerID = order.PartnerID
		id = c.ID
	}
	order.Coupons[id] = c
	return c
}

// AvailablePoints is the spendable balance for one coupon: stored balance
// plus unconsumed point changes minus points already spent by existing
// reward lines referencing the coupon.
func AvailablePoints(order *core.Order, coupon *core.Coupon) float64 {
	pts := coupon.Points
	for _, ch := range order.PointChanges[coupon.ProgramID] {
		if ch.CouponID == coupon.ID {
			pts += ch.Points
		}
	}
	return pts - order.SpentPoints(coupon.ID)
}

// ResolveClaimable filters the catalog down to the rewards the order can
// currently afford, applying the program-level gates. Unmet with_code
// minimums are signalled to the UI side channel via the event bus. An
// empty result is a normal outcome, not an error.
func (s *Service) ResolveClaimable(ctx context.Context, order *core.Order, programs []*core.Program) []core.ClaimableReward {
	var out []core.ClaimableReward
	orderTotal := order.TotalWithTax(s.tax, s.rounding)
	bestGlobal := currentGlobalDiscountPercent(order, programs)

	for _, program := range programs {
		if !program.ActiveAt(order.Date) || program.UsageExhausted() {
			continue
		}
		if !program.AppliesToPricelist(order.PricelistID) {
			continue
		}
		if program.Applicability == core.ApplyFuture {
			// Points accumulate for a later order; nothing to claim now.
			continue
		}
		if program.Trigger == core.TriggerWithCode {
			ok, reason := CanGenerateRewards(order, program, s.tax, s.rounding)
			if !ok {
				s.bus.Publish(ctx, core.NewMinimumNotMet(order.ID, program.ID, reason))
				continue
			}
		}
		for _, coupon := range orderedCoupons(order, program.ID) {
			if coupon.Expired(order.Date) {
				continue
			}
			available := AvailablePoints(order, coupon)
			for _, reward := range program.Rewards {
				if entry, ok := s.claimableEntry(ctx, order, program, reward, coupon, available, orderTotal, bestGlobal); ok {
					out = append(out, entry)
				}
			}
		}
	}
	return out
}

func (s *Service) claimableEntry(ctx context.Context, order *core.Order, program *core.Program, reward *core.Reward, coupon *core.Coupon, available, orderTotal, bestGlobal float64) (core.ClaimableReward, bool) {
	none := core.ClaimableReward{}
	if available < reward.RequiredPoints {
		return none, false
	}
	switch reward.Kind {
	case core.RewardDiscount:
		if orderTotal == 0 {
			return none, false
		}
		if reward.IsGlobalDiscount && reward.Discount != nil &&
			reward.Discount.Mode == core.DiscountPercent && reward.Discount.Value <= bestGlobal {
			return none, false
		}
		return core.ClaimableReward{Program: program, Reward: reward, CouponID: coupon.ID}, true
	case core.RewardProduct:
		if order.DisabledRewards[reward.ID] {
			return none, false
		}
		// A grant quantity of zero or less is broken catalog data; the
		// materializer's free-count division relies on it being positive.
		if reward.Product == nil || reward.Product.Quantity <= 0 {
			return none, false
		}
		qty := UnclaimedFreeQty(order, reward)
		if qty <= 0 {
			return none, false
		}
		if capped, ok := s.usageLimitQty(ctx, order, reward, qty); ok {
			qty = capped
		} else {
			return none, false
		}
		return core.ClaimableReward{Program: program, Reward: reward, CouponID: coupon.ID, PotentialQty: qty}, true
	}
	return none, false
}

// usageLimitQty caps a product reward's potential quantity by the
// per-reward usage limit from the persistence collaborator. A failed
// check degrades to "not claimable" rather than failing the pass.
func (s *Service) usageLimitQty(ctx context.Context, order *core.Order, reward *core.Reward, qty float64) (float64, bool) {
	if s.catalog == nil || reward.Product == nil || len(reward.Product.ProductIDs) == 0 {
		return qty, true
	}
	res, err := s.catalog.UsageLimit(ctx, UsageLimitRequest{
		ProductID: reward.Product.ProductIDs[0],
		RewardID:  reward.ID,
		PartnerID: order.PartnerID,
	})
	if err != nil {
		s.log.Warn("usage limit check failed", "reward", reward.ID, "error", err)
		return 0, false
	}
	if res.Unlimited {
		return qty, true
	}
	if res.Limit <= 0 {
		return 0, false
	}
	if qty > float64(res.Limit) {
		qty = float64(res.Limit)
	}
	return qty, true
}

// UnclaimedFreeQty is the quantity of a product reward's target products
// present on the order and not yet covered by that reward's lines. This
// is the one canonical free-quantity computation; distribution-side box
// rounding happens only in DistributePoints.
func UnclaimedFreeQty(order *core.Order, reward *core.Reward) float64 {
	if reward.Product == nil {
		return 0
	}
	var ordered, granted float64
	for _, l := range order.Lines {
		if l.IsRewardLine {
			if l.RewardID == reward.ID {
				granted += l.Qty
			}
			continue
		}
		if reward.Product.TargetsProduct(l.ProductID) {
			ordered += l.Qty
		}
	}
	return ordered - granted
}

// orderedCoupons returns the order's coupons for one program in a stable
// order (map iteration is randomized).
func orderedCoupons(order *core.Order, program core.ProgramID) []*core.Coupon {
	var out []*core.Coupon
	for _, c := range order.Coupons {
		if c.ProgramID == program {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// currentGlobalDiscountPercent is the best percent-mode global discount
// already applied to the order, resolved through the catalog.
func currentGlobalDiscountPercent(order *core.Order, programs []*core.Program) float64 {
	rewards := make(map[core.RewardID]*core.Reward)
	for _, p := range programs {
		for _, r := range p.Rewards {
			rewards[r.ID] = r
		}
	}
	var best float64
	for _, l := range order.RewardLines() {
		r := rewards[l.RewardID]
		if r == nil || !r.IsGlobalDiscount || r.Discount == nil || r.Discount.Mode != core.DiscountPercent {
			continue
		}
		if r.Discount.Value > best {
			best = r.Discount.Value
		}
	}
	return best
}
