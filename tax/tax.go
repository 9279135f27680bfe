// Package tax provides the default tax-computation collaborator: a pure
// function over a catalog of percent taxes, supporting price-included and
// price-excluded definitions.
package tax

import (
	"promokit/core"
)

// Definition describes one percent tax.
type Definition struct {
	ID           core.TaxID `json:"id"`
	Name         string     `json:"name"`
	Percent      float64    `json:"percent"`
	PriceInclude bool       `json:"price_include"`
}

// Engine resolves tax ids against its catalog and computes totals. The
// zero value computes with an empty catalog (unknown ids are ignored).
type Engine struct {
	defs map[core.TaxID]Definition
}

// NewEngine builds an Engine over the given definitions.
func NewEngine(defs ...Definition) *Engine {
	e := &Engine{defs: make(map[core.TaxID]Definition, len(defs))}
	for _, d := range defs {
		e.defs[d.ID] = d
	}
	return e
}

// Compute splits price*qty into its tax-excluded base and per-tax
// amounts. Price-included taxes are peeled out of the price; the rest are
// added on top. Amounts are rounded half-up to the given precision.
func (e *Engine) Compute(taxIDs []core.TaxID, price float64, qty float64, rounding int) core.TaxResult {
	base := price * qty

	var includedPct float64
	var active []Definition
	for _, id := range taxIDs {
		d, ok := e.defs[id]
		if !ok {
			continue
		}
		active = append(active, d)
		if d.PriceInclude {
			includedPct += d.Percent
		}
	}

	excluded := base
	if includedPct > 0 {
		excluded = base / (1 + includedPct/100)
	}
	excluded = core.RoundHalfUp(excluded, rounding)

	res := core.TaxResult{TotalExcluded: excluded, TotalIncluded: excluded}
	for _, d := range active {
		amount := core.RoundHalfUp(excluded*d.Percent/100, rounding)
		res.Taxes = append(res.Taxes, core.TaxDetail{ID: d.ID, Amount: amount, PriceInclude: d.PriceInclude})
		res.TotalIncluded += amount
	}
	res.TotalIncluded = core.RoundHalfUp(res.TotalIncluded, rounding)
	return res
}

var _ core.TaxEngine = (*Engine)(nil)
