package engine

import (
	"promokit/core"
)

// EvaluateRules computes the points every program earns from the current
// order lines. It is a pure function over the passed-in lines and catalog:
// no side effects, no external calls.
//
// Lines that are reward products of a different program and lines flagged
// to ignore loyalty points never contribute. Rules whose minimum amount or
// minimum quantity is unmet award nothing. Programs with `future`
// applicability whose rule requests point splitting emit one entry per
// unit (or per line, in money mode) so later consumption can be
// attributed per unit.
func EvaluateRules(order *core.Order, programs []*core.Program, te core.TaxEngine, rounding int) map[core.ProgramID][]core.PointChange {
	out := make(map[core.ProgramID][]core.PointChange)
	for _, program := range programs {
		changes := evaluateProgram(order, program, te, rounding)
		if len(changes) > 0 {
			out[program.ID] = changes
		}
	}
	return out
}

func evaluateProgram(order *core.Order, program *core.Program, te core.TaxEngine, rounding int) []core.PointChange {
	var changes []core.PointChange
	for _, rule := range program.Rules {
		lines := qualifyingLines(order, program, rule)
		if len(lines) == 0 {
			continue
		}
		var qty, amount float64
		for _, l := range lines {
			qty += l.Qty
			amount += ruleAmount(l, rule, te, rounding)
		}
		if rule.MinimumAmount > 0 && amount < rule.MinimumAmount {
			continue
		}
		if rule.MinimumQty > 0 && qty < rule.MinimumQty {
			continue
		}

		split := program.Applicability == core.ApplyFuture && rule.SplitPerUnit
		switch rule.Mode {
		case core.PointsPerOrder:
			changes = append(changes, change(program, rule, rule.PointAmount))
		case core.PointsPerMoney:
			if split {
				for _, l := range lines {
					pts := core.RoundHalfUp(rule.PointAmount*ruleAmount(l, rule, te, rounding), rounding)
					if pts != 0 {
						changes = append(changes, change(program, rule, pts))
					}
				}
			} else {
				pts := core.RoundHalfUp(rule.PointAmount*amount, rounding)
				if pts != 0 {
					changes = append(changes, change(program, rule, pts))
				}
			}
		case core.PointsPerUnit:
			if split {
				units := int(qty)
				for i := 0; i < units; i++ {
					changes = append(changes, change(program, rule, rule.PointAmount))
				}
			} else {
				changes = append(changes, change(program, rule, rule.PointAmount*qty))
			}
		}
	}
	return changes
}

// qualifyingLines returns the order lines the rule may count: product
// scope matches, the line is not a reward product of another program, and
// the line does not opt out of loyalty points.
func qualifyingLines(order *core.Order, program *core.Program, rule *core.Rule) []*core.OrderLine {
	var out []*core.OrderLine
	for _, l := range order.Lines {
		if l.IgnorePoints || l.Qty <= 0 {
			continue
		}
		if l.IsRewardLine && l.ProgramID != program.ID {
			continue
		}
		if !rule.MatchesProduct(l.ProductID) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// ruleAmount is the line amount the rule counts toward its minimum and
// money-mode points, honoring the rule's tax-inclusion mode.
func ruleAmount(l *core.OrderLine, rule *core.Rule, te core.TaxEngine, rounding int) float64 {
	if rule.MinimumAmountTaxIncl {
		return l.TotalWithTax(te, rounding)
	}
	return l.TotalWithoutTax(te, rounding)
}

func change(program *core.Program, rule *core.Rule, points float64) core.PointChange {
	return core.PointChange{
		ProgramID: program.ID,
		RuleIDs:   []core.RuleID{rule.ID},
		Points:    points,
	}
}

// CanGenerateRewards reports whether a with_code program's rule-level
// minimums are satisfied by the order. When false, reason carries the
// human-readable unmet minimum for the UI side channel.
func CanGenerateRewards(order *core.Order, program *core.Program, te core.TaxEngine, rounding int) (bool, string) {
	if len(program.Rules) == 0 {
		return true, ""
	}
	var reason string
	for _, rule := range program.Rules {
		lines := qualifyingLines(order, program, rule)
		var qty, amount float64
		for _, l := range lines {
			qty += l.Qty
			amount += ruleAmount(l, rule, te, rounding)
		}
		if rule.MinimumAmount > 0 && amount < rule.MinimumAmount {
			reason = "minimum amount not reached"
			continue
		}
		if rule.MinimumQty > 0 && qty < rule.MinimumQty {
			reason = "minimum quantity not reached"
			continue
		}
		return true, ""
	}
	return false, reason
}
