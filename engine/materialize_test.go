package engine

import (
	"errors"
	"testing"
	"time"

	"promokit/core"
)

func discountEntry(mode core.DiscountMode, applicability core.DiscountApplicability, value, required float64) core.ClaimableReward {
	return core.ClaimableReward{
		Program: &core.Program{ID: "p1", Name: "Promo", Trigger: core.TriggerAuto},
		Reward: &core.Reward{
			ID: "rw", ProgramID: "p1", Kind: core.RewardDiscount, RequiredPoints: required,
			Discount: &core.DiscountReward{
				Applicability: applicability,
				Mode:          mode,
				Value:         value,
				ProductIDs:    []core.ProductID{"a"},
			},
		},
		CouponID: "c1",
	}
}

func TestMaterializeSpecificPercentDiscount(t *testing.T) {
	svc := newTestService(t, nil)
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 1, UnitPrice: 100})
	ledger := NewBaseLedger(order, svc.Tax(), svc.Rounding())

	e := discountEntry(core.DiscountPercent, core.DiscountOnSpecific, 20, 0)
	lines, err := svc.MaterializeReward(order, e, 1, 10, ledger)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	l := lines[0]
	if l.UnitPrice != -20 {
		t.Fatalf("unit price = %v, want -20", l.UnitPrice)
	}
	if l.PercentApplied != 20 {
		t.Fatalf("percent badge = %v, want 20", l.PercentApplied)
	}
	if !l.IsRewardLine || l.RewardID != "rw" || l.CouponID != "c1" {
		t.Fatalf("reward bookkeeping wrong: %+v", l)
	}
	if l.ProductID != "discount:rw" {
		t.Fatalf("synthetic product = %s", l.ProductID)
	}
}

func TestMaterializePerPointDiscount(t *testing.T) {
	svc := newTestService(t, nil)
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 1, UnitPrice: 100})
	ledger := NewBaseLedger(order, svc.Tax(), svc.Rounding())

	e := discountEntry(core.DiscountPerPoint, core.DiscountOnSpecific, 0.5, 10)
	lines, err := svc.MaterializeReward(order, e, 2, 100, ledger)
	if err != nil {
		t.Fatal(err)
	}
	// 2 grants x 10 points x 0.5 per point = 10 off.
	if lines[0].UnitPrice != -10 {
		t.Fatalf("unit price = %v, want -10", lines[0].UnitPrice)
	}
	if lines[0].PointsCost != 20 {
		t.Fatalf("points cost = %v, want 20", lines[0].PointsCost)
	}
}

func TestMaterializePerOrderDiscountMaxAmount(t *testing.T) {
	svc := newTestService(t, nil)
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 1, UnitPrice: 100})
	ledger := NewBaseLedger(order, svc.Tax(), svc.Rounding())

	e := discountEntry(core.DiscountPerOrder, core.DiscountOnSpecific, 15, 0)
	e.Reward.Discount.MaxAmount = 12
	lines, err := svc.MaterializeReward(order, e, 1, 0, ledger)
	if err != nil {
		t.Fatal(err)
	}
	if lines[0].UnitPrice != -12 {
		t.Fatalf("unit price = %v, want capped -12", lines[0].UnitPrice)
	}
}

func TestMaterializePaymentSingleLine(t *testing.T) {
	svc := newTestService(t, nil)
	order := testOrder(
		&core.OrderLine{ID: "l1", ProductID: "a", Qty: 1, UnitPrice: 60},
		&core.OrderLine{ID: "l2", ProductID: "a", Qty: 1, UnitPrice: 40},
	)
	ledger := NewBaseLedger(order, svc.Tax(), svc.Rounding())

	e := discountEntry(core.DiscountPerPoint, core.DiscountOnSpecific, 1, 1)
	e.Program.Payment = core.PaymentGiftCard
	lines, err := svc.MaterializeReward(order, e, 30, 30, ledger)
	if err != nil {
		t.Fatal(err)
	}
	// Gift-card style programs always collapse to one tax-free line.
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0].UnitPrice != -30 {
		t.Fatalf("unit price = %v, want -30", lines[0].UnitPrice)
	}
	if len(lines[0].TaxIDs) != 0 {
		t.Fatal("payment line must carry no taxes")
	}
}

func TestMaterializeOrderPercentCombinesWeekday(t *testing.T) {
	wp := core.WeekdayPromo{Percents: map[time.Weekday]float64{time.Monday: 20}}
	svc := newTestService(t, nil, WithWeekdayPromo(wp))
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 1, UnitPrice: 100})
	ledger := NewBaseLedger(order, svc.Tax(), svc.Rounding())

	e := discountEntry(core.DiscountPercent, core.DiscountOnOrder, 10, 0)
	lines, err := svc.MaterializeReward(order, e, 1, 0, ledger)
	if err != nil {
		t.Fatal(err)
	}
	// Sequential combination: 10 + 20 - 10*20/100 = 28.
	if lines[0].PercentApplied != 28 {
		t.Fatalf("combined percent = %v, want 28", lines[0].PercentApplied)
	}
	if lines[0].UnitPrice != -28 {
		t.Fatalf("unit price = %v, want -28", lines[0].UnitPrice)
	}
}

func TestMaterializeSpecificWeekdayOnSecondTargetProduct(t *testing.T) {
	wp := core.WeekdayPromo{
		Percents: map[time.Weekday]float64{time.Monday: 25},
		Products: map[core.ProductID]bool{"b": true},
	}
	svc := newTestService(t, nil, WithWeekdayPromo(wp))
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 1, UnitPrice: 100})
	ledger := NewBaseLedger(order, svc.Tax(), svc.Rounding())

	e := discountEntry(core.DiscountPercent, core.DiscountOnSpecific, 20, 0)
	e.Reward.Discount.ProductIDs = []core.ProductID{"a", "b"}
	lines, err := svc.MaterializeReward(order, e, 1, 0, ledger)
	if err != nil {
		t.Fatal(err)
	}
	// The promo targets the reward's second product; the combination must
	// still pick it up: 20 + 25 = 45.
	if lines[0].PercentApplied != 45 {
		t.Fatalf("combined percent = %v, want 45", lines[0].PercentApplied)
	}
	if lines[0].UnitPrice != -45 {
		t.Fatalf("unit price = %v, want -45", lines[0].UnitPrice)
	}
}

func TestMaterializeNothingToDiscount(t *testing.T) {
	svc := newTestService(t, nil)
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "other", Qty: 1, UnitPrice: 100})
	ledger := NewBaseLedger(order, svc.Tax(), svc.Rounding())

	e := discountEntry(core.DiscountPercent, core.DiscountOnSpecific, 20, 0)
	if _, err := svc.MaterializeReward(order, e, 1, 0, ledger); !errors.Is(err, ErrNothingToDiscount) {
		t.Fatalf("err = %v, want ErrNothingToDiscount", err)
	}
}

func productEntry(required float64) core.ClaimableReward {
	return core.ClaimableReward{
		Program: &core.Program{ID: "p1", Name: "Freebies", Trigger: core.TriggerAuto},
		Reward: &core.Reward{
			ID: "free", ProgramID: "p1", Kind: core.RewardProduct, RequiredPoints: required,
			Product: &core.ProductReward{ProductIDs: []core.ProductID{"a"}, Quantity: 1},
		},
		CouponID: "c1",
	}
}

func TestMaterializeProductReward(t *testing.T) {
	svc := newTestService(t, nil)
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 3, UnitPrice: 10})

	lines, err := svc.MaterializeReward(order, productEntry(5), 2, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	l := lines[0]
	// Granted quantity caps the count at 2 even though 3 units qualify.
	if l.Qty != 2 {
		t.Fatalf("free qty = %v, want 2", l.Qty)
	}
	if l.UnitPrice != -10 {
		t.Fatalf("unit price = %v, want mirrored -10", l.UnitPrice)
	}
	if l.PointsCost != 10 {
		t.Fatalf("points cost = %v, want 10", l.PointsCost)
	}
	if l.PercentApplied != 100 {
		t.Fatalf("percent badge = %v, want 100", l.PercentApplied)
	}
	if l.RewardCode == "" {
		t.Fatal("reward line must carry a reward code")
	}
}

func TestMaterializeProductRewardClearWallet(t *testing.T) {
	svc := newTestService(t, nil)
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 1, UnitPrice: 10})

	e := productEntry(5)
	e.Reward.ClearWallet = true
	lines, err := svc.MaterializeReward(order, e, 1, 42, nil)
	if err != nil {
		t.Fatal(err)
	}
	if lines[0].PointsCost != 42 {
		t.Fatalf("points cost = %v, want the whole wallet", lines[0].PointsCost)
	}
}

func TestMaterializeProductRewardWeekdayFoldsIntoTrigger(t *testing.T) {
	wp := core.WeekdayPromo{Percents: map[time.Weekday]float64{time.Monday: 25}}
	svc := newTestService(t, nil, WithWeekdayPromo(wp))
	trigger := &core.OrderLine{ID: "l1", ProductID: "a", Qty: 2, UnitPrice: 10}
	order := testOrder(trigger)

	lines, err := svc.MaterializeReward(order, productEntry(5), 1, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if lines != nil {
		t.Fatal("weekday-combined grant must not add lines")
	}
	if !trigger.IsPartOfReward {
		t.Fatal("trigger line should carry the reward bookkeeping")
	}
	if trigger.DiscountPercent != 25 {
		t.Fatalf("trigger discount = %v, want 25", trigger.DiscountPercent)
	}
	if trigger.PointsCost != 5 {
		t.Fatalf("trigger points cost = %v, want 5", trigger.PointsCost)
	}
}

func TestMaterializeProductRewardNoTrigger(t *testing.T) {
	svc := newTestService(t, nil)
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "other", Qty: 1, UnitPrice: 10})

	if _, err := svc.MaterializeReward(order, productEntry(5), 1, 100, nil); !errors.Is(err, ErrNoEligibleLine) {
		t.Fatalf("err = %v, want ErrNoEligibleLine", err)
	}
}
