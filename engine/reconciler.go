package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"promokit/core"
)

// ReconcileState is the orchestrator's observable position in one pass.
type ReconcileState int32

const (
	StateIdle ReconcileState = iota
	StateEvaluating
	StateApplying
)

func (s ReconcileState) String() string {
	switch s {
	case StateEvaluating:
		return "evaluating"
	case StateApplying:
		return "applying"
	default:
		return "idle"
	}
}

// Reconciler is the per-order orchestrator: whenever the order mutates it
// tears down previous reward lines, re-runs the allocation pipeline, and
// reapplies the results. Triggers are debounced, and at most one pass is
// in flight per order; a trigger arriving mid-pass queues exactly one
// follow-up pass instead of interleaving.
type Reconciler struct {
	svc   *Service
	order *core.Order
	deb   *debouncer
	state atomic.Int32

	mu       sync.Mutex
	inFlight bool
	queued   bool
}

// NewReconciler builds the orchestrator for one order.
func (s *Service) NewReconciler(order *core.Order) *Reconciler {
	return &Reconciler{svc: s, order: order, deb: newDebouncer(s.debounce)}
}

// State reports the current pass state.
func (r *Reconciler) State() ReconcileState {
	return ReconcileState(r.state.Load())
}

// NotifyChange signals an order mutation (line added/removed/quantity
// changed, partner changed, catalog refreshed). Bursts within the
// debounce window collapse into one reconciliation.
func (r *Reconciler) NotifyChange() {
	r.deb.Schedule(func() { r.run(context.Background()) })
}

// CancelPending drops a debounced reconciliation that has not fired yet.
func (r *Reconciler) CancelPending() {
	r.deb.CancelPending()
}

// ReconcileNow runs a pass synchronously, bypassing the debounce window
// but still honoring the single-flight gate.
func (r *Reconciler) ReconcileNow(ctx context.Context) error {
	return r.run(ctx)
}

// run serializes passes: a second trigger arriving while a pass is in
// flight is deferred, not dropped, and schedules exactly one follow-up.
func (r *Reconciler) run(ctx context.Context) error {
	r.mu.Lock()
	if r.inFlight {
		r.queued = true
		r.mu.Unlock()
		return nil
	}
	r.inFlight = true
	r.mu.Unlock()

	var err error
	for {
		err = r.pass(ctx)
		r.mu.Lock()
		if !r.queued {
			r.inFlight = false
			r.mu.Unlock()
			return err
		}
		r.queued = false
		r.mu.Unlock()
	}
}

// EnterCode redeems a promotional code against the catalog collaborator,
// attaches the resulting coupon, and triggers a reconciliation.
func (r *Reconciler) EnterCode(ctx context.Context, code string) error {
	order := r.order
	if order.PartnerID == "" {
		r.svc.bus.Publish(ctx, core.NewValidationFailed(order.ID, "no customer set"))
		return ErrNoPartner
	}
	for _, c := range order.Coupons {
		if c.Code == code {
			return ErrCodeAlreadyApplied
		}
	}
	res, err := r.svc.catalog.RedeemCode(ctx, RedeemRequest{
		Code:        code,
		OrderDate:   order.Date,
		PartnerID:   order.PartnerID,
		PricelistID: order.PricelistID,
	})
	if err != nil {
		return fmt.Errorf("redeem %q: %w", code, err)
	}
	order.Coupons[res.CouponID] = &core.Coupon{
		ID:         res.CouponID,
		ProgramID:  res.ProgramID,
		PartnerID:  res.PartnerID,
		Code:       code,
		Points:     res.Points,
		Expiration: res.Expiration,
	}
	r.svc.bus.Publish(ctx, core.NewCouponRedeemed(order.ID, res.ProgramID, res.CouponID, res.Points))
	if err := r.svc.catalog.MarkCouponUsed(ctx, code); err != nil {
		r.svc.log.Warn("mark coupon used failed", "code", code, "error", err)
	}
	r.NotifyChange()
	return nil
}

// pass executes one full reconciliation. All removals happen before any
// re-additions so the line list is never observed half mutated.
func (r *Reconciler) pass(ctx context.Context) error {
	order := r.order
	r.state.Store(int32(StateEvaluating))
	defer r.state.Store(int32(StateIdle))

	if order.PartnerID == "" {
		r.svc.bus.Publish(ctx, core.NewValidationFailed(order.ID, "no customer set"))
		return ErrNoPartner
	}

	r.teardown(order)

	programs, err := r.svc.catalog.FetchPrograms(ctx, order.ProductIDs())
	if err != nil {
		// Degrade to zero rewards; the order stays usable.
		r.svc.log.Warn("catalog fetch failed", "order", order.ID, "error", err)
		programs = nil
	}

	changes := EvaluateRules(order, programs, r.svc.tax, r.svc.rounding)
	AttachPointChanges(order, programs, changes)

	claimable := r.svc.ResolveClaimable(ctx, order, programs)
	if len(claimable) == 0 {
		r.cleanup(order)
		r.svc.bus.Publish(ctx, core.NewReconcileCompleted(order.ID, 0))
		return nil
	}

	r.state.Store(int32(StateApplying))
	r.apply(ctx, order, programs, claimable)

	r.dropOrphanRewardLines(order, programs)
	r.releaseOrphanCoupons(ctx, order)
	r.cleanup(order)
	r.svc.bus.Publish(ctx, core.NewReconcileCompleted(order.ID, len(order.RewardLines())))
	return nil
}

// apply distributes each coupon's points over its prioritized rewards and
// materializes the grants. A reward that cannot be applied is logged and
// skipped; the pass never aborts on one reward.
func (r *Reconciler) apply(ctx context.Context, order *core.Order, programs []*core.Program, claimable []core.ClaimableReward) {
	prioritized := PrioritizeRewards(claimable, order.SelectedRewards)
	ledger := NewBaseLedger(order, r.svc.tax, r.svc.rounding)

	allocs := make(map[core.CouponID]core.PointAllocation)
	for _, e := range prioritized {
		if _, ok := allocs[e.CouponID]; ok {
			continue
		}
		coupon := order.Coupons[e.CouponID]
		if coupon == nil {
			continue
		}
		allocs[e.CouponID] = DistributePoints(AvailablePoints(order, coupon), entriesFor(prioritized, e.CouponID), order.SelectedRewards)
	}

	orderLevelApplied := false
	for _, e := range prioritized {
		qty := allocs[e.CouponID].Granted[e.Reward.ID]
		if qty <= 0 {
			continue
		}
		if isOrderCoupon(e) {
			// Two simultaneous order-level coupons are undefined behavior;
			// the first by priority wins and the rest are surfaced as
			// advisories.
			if orderLevelApplied {
				r.svc.bus.Publish(ctx, core.NewRewardSkipped(order.ID, e.Program.ID, e.Reward.ID,
					"another order-level coupon is already applied"))
				continue
			}
			orderLevelApplied = true
		}
		coupon := order.Coupons[e.CouponID]
		available := AvailablePoints(order, coupon)
		lines, err := r.svc.MaterializeReward(order, e, qty, available, ledger)
		if err != nil {
			r.svc.log.Warn("reward could not be applied",
				"order", order.ID, "reward", e.Reward.ID, "error", err)
			r.svc.bus.Publish(ctx, core.NewRewardSkipped(order.ID, e.Program.ID, e.Reward.ID, err.Error()))
			continue
		}
		var amount, points float64
		for _, l := range lines {
			order.AddLine(l)
			amount += -l.Subtotal()
			points += l.PointsCost
		}
		r.svc.bus.Publish(ctx, core.NewRewardApplied(order.ID, e.Program.ID, e.Reward.ID, e.CouponID,
			core.RoundHalfUp(amount, r.svc.rounding), points))
	}
}

// teardown removes every reward line and all reward-coupon bookkeeping
// from the previous pass. Code-redeemed coupons survive; order-local
// accrual coupons are rebuilt from scratch each pass.
func (r *Reconciler) teardown(order *core.Order) {
	var kept []*core.OrderLine
	for _, l := range order.Lines {
		if l.IsRewardLine {
			continue
		}
		if l.IsPartOfReward {
			l.ClearReward()
		}
		kept = append(kept, l)
	}
	order.Lines = kept
	order.PointChanges = make(map[core.ProgramID][]core.PointChange)
	for id, c := range order.Coupons {
		if c.Code == "" && c.Points == 0 {
			delete(order.Coupons, id)
		}
	}
}

// dropOrphanRewardLines deletes reward-dependent lines whose triggering
// product line no longer exists.
func (r *Reconciler) dropOrphanRewardLines(order *core.Order, programs []*core.Program) {
	rewards := make(map[core.RewardID]*core.Reward)
	for _, p := range programs {
		for _, rw := range p.Rewards {
			rewards[rw.ID] = rw
		}
	}
	var kept []*core.OrderLine
	for _, l := range order.Lines {
		if l.IsRewardLine {
			if rw := rewards[l.RewardID]; rw != nil && rw.Kind == core.RewardProduct {
				if triggerLine(order, rw.Product) == nil {
					continue
				}
			}
		}
		kept = append(kept, l)
	}
	order.Lines = kept
}

// releaseOrphanCoupons hands code-redeemed coupons no longer referenced
// by any surviving line back to the persistence collaborator.
func (r *Reconciler) releaseOrphanCoupons(ctx context.Context, order *core.Order) {
	for id, c := range order.Coupons {
		if c.Code == "" {
			continue
		}
		referenced := false
		for _, l := range order.Lines {
			if l.CouponID == id {
				referenced = true
				break
			}
		}
		if referenced {
			continue
		}
		if err := r.svc.catalog.ReleaseCoupon(ctx, id); err != nil {
			r.svc.log.Warn("coupon release failed", "coupon", id, "error", err)
		}
		delete(order.Coupons, id)
		r.svc.bus.Publish(ctx, core.NewCouponReleased(order.ID, id))
	}
}

// cleanup consolidates duplicate normal lines and reapplies the weekday
// overlay, last, so it always reflects the final line set.
func (r *Reconciler) cleanup(order *core.Order) {
	order.ConsolidateLines()
	r.applyWeekdayOverlay(order)
}

// applyWeekdayOverlay sets the independent weekday promotional percentage
// on qualifying normal lines whenever it beats the line's current
// discount.
func (r *Reconciler) applyWeekdayOverlay(order *core.Order) {
	for _, l := range order.Lines {
		if l.IsRewardLine || l.IsPartOfReward {
			continue
		}
		wp := core.ClampPercent(r.svc.weekday.PercentFor(order.Date, l.ProductID))
		if wp <= 0 || wp <= l.DiscountPercent {
			continue
		}
		if err := l.SetDiscount(wp, fmt.Sprintf("%.2f%% weekday promo", wp)); err != nil {
			r.svc.log.Warn("weekday overlay rejected", "line", l.ID, "error", err)
		}
	}
}

func entriesFor(entries []core.ClaimableReward, coupon core.CouponID) []core.ClaimableReward {
	var out []core.ClaimableReward
	for _, e := range entries {
		if e.CouponID == coupon {
			out = append(out, e)
		}
	}
	return out
}
