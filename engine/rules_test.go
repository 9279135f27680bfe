package engine

import (
	"testing"
	"time"

	"promokit/core"
	"promokit/tax"
)

func testOrder(lines ...*core.OrderLine) *core.Order {
	o := core.NewOrder("o1", "retail")
	o.PartnerID = "partner"
	o.Date = time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	for _, l := range lines {
		o.AddLine(l)
	}
	return o
}

func TestEvaluateRulesMoneyMode(t *testing.T) {
	program := &core.Program{
		ID: "p1", Trigger: core.TriggerAuto, Applicability: core.ApplyBoth,
		Rules: []*core.Rule{{ID: "r1", ProgramID: "p1", Mode: core.PointsPerMoney, PointAmount: 0.5}},
	}
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 2, UnitPrice: 10})

	changes := EvaluateRules(order, []*core.Program{program}, tax.NewEngine(), 2)
	list := changes["p1"]
	if len(list) != 1 {
		t.Fatalf("got %d changes, want 1", len(list))
	}
	if list[0].Points != 10 {
		t.Fatalf("points = %v, want 10", list[0].Points)
	}
	if len(list[0].RuleIDs) != 1 || list[0].RuleIDs[0] != "r1" {
		t.Fatalf("rule ids = %v", list[0].RuleIDs)
	}
}

func TestEvaluateRulesUnitAndOrderModes(t *testing.T) {
	program := &core.Program{
		ID: "p1", Trigger: core.TriggerAuto, Applicability: core.ApplyBoth,
		Rules: []*core.Rule{
			{ID: "flat", ProgramID: "p1", Mode: core.PointsPerOrder, PointAmount: 5},
			{ID: "per-unit", ProgramID: "p1", Mode: core.PointsPerUnit, PointAmount: 2},
		},
	}
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 3, UnitPrice: 10})

	changes := EvaluateRules(order, []*core.Program{program}, tax.NewEngine(), 2)
	list := changes["p1"]
	if len(list) != 2 {
		t.Fatalf("got %d changes, want 2", len(list))
	}
	if list[0].Points != 5 {
		t.Fatalf("flat points = %v, want 5", list[0].Points)
	}
	if list[1].Points != 6 {
		t.Fatalf("per-unit points = %v, want 6", list[1].Points)
	}
}

func TestEvaluateRulesMinimumsUnmet(t *testing.T) {
	program := &core.Program{
		ID: "p1", Trigger: core.TriggerAuto, Applicability: core.ApplyBoth,
		Rules: []*core.Rule{
			{ID: "amt", ProgramID: "p1", Mode: core.PointsPerOrder, PointAmount: 5, MinimumAmount: 50},
			{ID: "qty", ProgramID: "p1", Mode: core.PointsPerOrder, PointAmount: 5, MinimumQty: 10},
		},
	}
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 2, UnitPrice: 10})

	changes := EvaluateRules(order, []*core.Program{program}, tax.NewEngine(), 2)
	if len(changes) != 0 {
		t.Fatalf("expected no changes, got %v", changes)
	}
}

func TestEvaluateRulesExcludesForeignRewardLines(t *testing.T) {
	program := &core.Program{
		ID: "p1", Trigger: core.TriggerAuto, Applicability: core.ApplyBoth,
		Rules: []*core.Rule{{ID: "r1", ProgramID: "p1", Mode: core.PointsPerUnit, PointAmount: 1}},
	}
	foreign := &core.OrderLine{ID: "l2", ProductID: "a", Qty: 1, UnitPrice: 10}
	if err := foreign.BindReward("other-program", "rw", "c"); err != nil {
		t.Fatal(err)
	}
	own := &core.OrderLine{ID: "l3", ProductID: "a", Qty: 1, UnitPrice: 10}
	if err := own.BindReward("p1", "rw2", "c"); err != nil {
		t.Fatal(err)
	}
	order := testOrder(
		&core.OrderLine{ID: "l1", ProductID: "a", Qty: 2, UnitPrice: 10},
		&core.OrderLine{ID: "l4", ProductID: "a", Qty: 1, UnitPrice: 10, IgnorePoints: true},
		foreign,
		own,
	)

	changes := EvaluateRules(order, []*core.Program{program}, tax.NewEngine(), 2)
	// 2 units from l1 plus 1 from the program's own reward line; the
	// foreign reward line and the opted-out line never count.
	if got := changes["p1"][0].Points; got != 3 {
		t.Fatalf("points = %v, want 3", got)
	}
}

func TestEvaluateRulesSplitPerUnit(t *testing.T) {
	program := &core.Program{
		ID: "p1", Trigger: core.TriggerAuto, Applicability: core.ApplyFuture,
		Rules: []*core.Rule{{ID: "r1", ProgramID: "p1", Mode: core.PointsPerUnit, PointAmount: 2, SplitPerUnit: true}},
	}
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 3, UnitPrice: 10})

	changes := EvaluateRules(order, []*core.Program{program}, tax.NewEngine(), 2)
	list := changes["p1"]
	if len(list) != 3 {
		t.Fatalf("got %d changes, want one per unit", len(list))
	}
	for _, ch := range list {
		if ch.Points != 2 {
			t.Fatalf("per-unit points = %v, want 2", ch.Points)
		}
	}
}

func TestEvaluateRulesTaxInclusiveMinimum(t *testing.T) {
	te := tax.NewEngine(tax.Definition{ID: "vat", Percent: 21})
	program := &core.Program{
		ID: "p1", Trigger: core.TriggerAuto, Applicability: core.ApplyBoth,
		Rules: []*core.Rule{{
			ID: "r1", ProgramID: "p1", Mode: core.PointsPerOrder, PointAmount: 1,
			MinimumAmount: 110, MinimumAmountTaxIncl: true,
		}},
	}
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 1, UnitPrice: 100, TaxIDs: []core.TaxID{"vat"}})

	// 100 excl, 121 incl: the tax-inclusive minimum of 110 is met.
	changes := EvaluateRules(order, []*core.Program{program}, te, 2)
	if len(changes["p1"]) != 1 {
		t.Fatalf("expected the tax-inclusive minimum to pass, got %v", changes)
	}
}

func TestCanGenerateRewards(t *testing.T) {
	program := &core.Program{
		ID: "p1", Trigger: core.TriggerWithCode, Applicability: core.ApplyCurrent,
		Rules: []*core.Rule{{ID: "r1", ProgramID: "p1", Mode: core.PointsPerOrder, MinimumAmount: 50}},
	}
	order := testOrder(&core.OrderLine{ID: "l1", ProductID: "a", Qty: 1, UnitPrice: 10})

	ok, reason := CanGenerateRewards(order, program, tax.NewEngine(), 2)
	if ok {
		t.Fatal("expected unmet minimum")
	}
	if reason != "minimum amount not reached" {
		t.Fatalf("reason = %q", reason)
	}

	order.AddLine(&core.OrderLine{ID: "l2", ProductID: "a", Qty: 5, UnitPrice: 10})
	ok, _ = CanGenerateRewards(order, program, tax.NewEngine(), 2)
	if !ok {
		t.Fatal("expected minimum to be met")
	}
}
