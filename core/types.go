package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// LineID is the stable client-assigned identity of an order line.
type LineID string

// OrderLine is one line of a mutable shopping order. Reward lines are
// synthesized by the engine and never manually priced; writes that touch
// reward bookkeeping go through the mutators below so the line invariants
// hold at all times.
type OrderLine struct {
	ID              LineID    `json:"id"`
	ProductID       ProductID `json:"product_id"`
	Qty             float64   `json:"qty"`
	UnitPrice       float64   `json:"unit_price"`
	TaxIDs          []TaxID   `json:"tax_ids,omitempty"`
	DiscountPercent float64   `json:"discount_percent"`
	DiscountReason  string    `json:"discount_reason,omitempty"`
	IsRewardLine    bool      `json:"is_reward_line"`
	IsPartOfReward  bool      `json:"is_part_of_reward"`
	Selectable      bool      `json:"selectable"`
	Selected        bool      `json:"selected"`
	IgnorePoints    bool      `json:"ignore_points"`
	RewardID        RewardID  `json:"reward_id,omitempty"`
	CouponID        CouponID  `json:"coupon_id,omitempty"`
	ProgramID       ProgramID `json:"program_id,omitempty"`
	PointsCost      float64   `json:"points_cost"`
	RewardCode      string    `json:"reward_code,omitempty"`
	NonMergeable    bool      `json:"non_mergeable"`

	// PercentApplied is a display badge recording the effective reward
	// percentage behind the line's price. It never affects the price
	// itself; reward lines carry their final value in UnitPrice.
	PercentApplied float64 `json:"percent_applied,omitempty"`
}

// SetQuantity updates the line quantity.
func (l *OrderLine) SetQuantity(qty float64) error {
	if qty < 0 {
		return fmt.Errorf("line %s: negative quantity %v", l.ID, qty)
	}
	l.Qty = qty
	return nil
}

// SetDiscount updates the line's discount percentage and reason. The
// percentage must already be in [0, 100]; callers combine and clamp
// through CombinePercents first.
func (l *OrderLine) SetDiscount(percent float64, reason string) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("line %s: discount %v out of range", l.ID, percent)
	}
	l.DiscountPercent = percent
	l.DiscountReason = reason
	return nil
}

// BindReward marks the line as a reward line owned by the given
// program/reward/coupon triple. A line cannot be both the trigger product
// line and a reward line, and a reward binding is all-or-nothing.
func (l *OrderLine) BindReward(programID ProgramID, rewardID RewardID, couponID CouponID) error {
	if programID == "" || rewardID == "" {
		return errors.New("reward binding requires program and reward ids")
	}
	if l.IsPartOfReward {
		return fmt.Errorf("line %s already triggers a reward", l.ID)
	}
	l.IsRewardLine = true
	l.NonMergeable = true
	l.ProgramID = programID
	l.RewardID = rewardID
	l.CouponID = couponID
	return nil
}

// MarkPartOfReward ties a normal line into a reward's bookkeeping without
// turning it into a reward line, e.g. when a free-product grant is folded
// into the trigger line's discount. A reward line cannot also trigger one.
func (l *OrderLine) MarkPartOfReward(programID ProgramID, rewardID RewardID, couponID CouponID, points float64) error {
	if l.IsRewardLine {
		return fmt.Errorf("line %s is a reward line", l.ID)
	}
	if programID == "" || rewardID == "" {
		return errors.New("reward binding requires program and reward ids")
	}
	l.IsPartOfReward = true
	l.NonMergeable = true
	l.ProgramID = programID
	l.RewardID = rewardID
	l.CouponID = couponID
	l.PointsCost = points
	return nil
}

// ClearReward removes all reward bookkeeping from the line.
func (l *OrderLine) ClearReward() {
	l.IsRewardLine = false
	l.IsPartOfReward = false
	l.NonMergeable = false
	l.ProgramID = ""
	l.RewardID = ""
	l.CouponID = ""
	l.PointsCost = 0
	l.RewardCode = ""
	l.PercentApplied = 0
}

// Subtotal is the line amount after the line discount, before taxes that
// are not price-included.
func (l *OrderLine) Subtotal() float64 {
	return l.UnitPrice * l.Qty * (1 - l.DiscountPercent/100)
}

// UnitSubtotal is one unit's price after the line discount.
func (l *OrderLine) UnitSubtotal() float64 {
	return l.UnitPrice * (1 - l.DiscountPercent/100)
}

// TotalWithTax is the line amount including all taxes.
func (l *OrderLine) TotalWithTax(te TaxEngine, rounding int) float64 {
	if te == nil || len(l.TaxIDs) == 0 {
		return RoundHalfUp(l.Subtotal(), rounding)
	}
	res := te.Compute(l.TaxIDs, l.UnitSubtotal(), l.Qty, rounding)
	return res.TotalIncluded
}

// TotalWithoutTax is the line amount excluding all taxes.
func (l *OrderLine) TotalWithoutTax(te TaxEngine, rounding int) float64 {
	if te == nil || len(l.TaxIDs) == 0 {
		return RoundHalfUp(l.Subtotal(), rounding)
	}
	res := te.Compute(l.TaxIDs, l.UnitSubtotal(), l.Qty, rounding)
	return res.TotalExcluded
}

// TaxKey is a canonical string for the line's tax-id set, used to group
// discount bases into tax-homogeneous buckets.
func (l *OrderLine) TaxKey() string {
	ids := make([]string, len(l.TaxIDs))
	for i, t := range l.TaxIDs {
		ids[i] = string(t)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// Clone returns a deep copy of the line.
func (l *OrderLine) Clone() *OrderLine {
	cp := *l
	cp.TaxIDs = append([]TaxID(nil), l.TaxIDs...)
	return &cp
}

// Order exclusively owns its lines; all mutation of the line list goes
// through Order methods so reconciliation observes a consistent view.
type Order struct {
	ID          string
	PartnerID   PartnerID
	PricelistID string
	Date        time.Time
	Lines       []*OrderLine

	// Coupons holds one entry per active coupon on the order, keyed by
	// coupon id. Entries appear when a code is redeemed or a nominative
	// program auto-creates a card, and disappear when reconciliation
	// finds no remaining triggering line.
	Coupons map[CouponID]*Coupon

	// DisabledRewards are product rewards the user dismissed this session.
	DisabledRewards map[RewardID]bool

	// SelectedRewards are rewards the user explicitly picked in a prior
	// pass; they take distribution priority over regular rewards.
	SelectedRewards map[RewardID]bool

	// PointChanges is the rule evaluator's latest output, rebuilt on every
	// reconciliation pass.
	PointChanges map[ProgramID][]PointChange
}

// NewOrder builds an empty order for the given pricelist.
func NewOrder(id, pricelistID string) *Order {
	return &Order{
		ID:              id,
		PricelistID:     pricelistID,
		Date:            time.Now().UTC(),
		Coupons:         make(map[CouponID]*Coupon),
		DisabledRewards: make(map[RewardID]bool),
		SelectedRewards: make(map[RewardID]bool),
		PointChanges:    make(map[ProgramID][]PointChange),
	}
}

// AddLine appends a line to the order.
func (o *Order) AddLine(l *OrderLine) {
	o.Lines = append(o.Lines, l)
}

// FindLine returns the line with the given id, or nil.
func (o *Order) FindLine(id LineID) *OrderLine {
	for _, l := range o.Lines {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// RemoveLine deletes the line with the given id. Returns false when no
// such line exists.
func (o *Order) RemoveLine(id LineID) bool {
	for i, l := range o.Lines {
		if l.ID == id {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// RewardLines returns the engine-synthesized lines.
func (o *Order) RewardLines() []*OrderLine {
	var out []*OrderLine
	for _, l := range o.Lines {
		if l.IsRewardLine {
			out = append(out, l)
		}
	}
	return out
}

// NormalLines returns the lines the customer actually added.
func (o *Order) NormalLines() []*OrderLine {
	var out []*OrderLine
	for _, l := range o.Lines {
		if !l.IsRewardLine {
			out = append(out, l)
		}
	}
	return out
}

// ProductQty sums the quantity of non-reward lines for a product.
func (o *Order) ProductQty(p ProductID) float64 {
	var qty float64
	for _, l := range o.Lines {
		if !l.IsRewardLine && l.ProductID == p {
			qty += l.Qty
		}
	}
	return qty
}

// ProductIDs lists the distinct products on non-reward lines, in line
// order. Used to scope the catalog fetch.
func (o *Order) ProductIDs() []ProductID {
	seen := make(map[ProductID]struct{})
	var out []ProductID
	for _, l := range o.Lines {
		if l.IsRewardLine {
			continue
		}
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l.ProductID)
	}
	return out
}

// SpentPoints sums the points already consumed by lines bound to the
// given coupon, reward lines and reward-carrying trigger lines alike.
func (o *Order) SpentPoints(coupon CouponID) float64 {
	var spent float64
	for _, l := range o.Lines {
		if l.CouponID == coupon {
			spent += l.PointsCost
		}
	}
	return spent
}

// TotalWithTax is the order total including taxes.
func (o *Order) TotalWithTax(te TaxEngine, rounding int) float64 {
	var total float64
	for _, l := range o.Lines {
		total += l.TotalWithTax(te, rounding)
	}
	return RoundHalfUp(total, rounding)
}

// TotalWithoutTax is the order total excluding taxes.
func (o *Order) TotalWithoutTax(te TaxEngine, rounding int) float64 {
	var total float64
	for _, l := range o.Lines {
		total += l.TotalWithoutTax(te, rounding)
	}
	return RoundHalfUp(total, rounding)
}

// ConsolidateLines merges duplicate mergeable lines of the same product,
// price, tax set, and discount into one line. Reward lines and lines
// flagged non-mergeable are left alone.
func (o *Order) ConsolidateLines() {
	var out []*OrderLine
	for _, l := range o.Lines {
		if l.NonMergeable || l.IsRewardLine {
			out = append(out, l)
			continue
		}
		merged := false
		for _, kept := range out {
			if kept.NonMergeable || kept.IsRewardLine {
				continue
			}
			if kept.ProductID == l.ProductID && kept.UnitPrice == l.UnitPrice &&
				kept.DiscountPercent == l.DiscountPercent && kept.TaxKey() == l.TaxKey() {
				kept.Qty += l.Qty
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, l)
		}
	}
	o.Lines = out
}
