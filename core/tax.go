package core

// TaxID identifies a tax definition in the external tax catalog.
type TaxID string

// TaxDetail is one tax's share of a computed price.
type TaxDetail struct {
	ID           TaxID   `json:"id"`
	Amount       float64 `json:"amount"`
	PriceInclude bool    `json:"price_include"`
}

// TaxResult is the outcome of a tax computation over one price/quantity.
type TaxResult struct {
	TotalExcluded float64     `json:"total_excluded"`
	TotalIncluded float64     `json:"total_included"`
	Taxes         []TaxDetail `json:"taxes"`
}

// TaxEngine computes taxes over a price. The engine treats it as a pure
// function collaborator: same inputs, same result, no side effects.
type TaxEngine interface {
	Compute(taxIDs []TaxID, price float64, qty float64, rounding int) TaxResult
}
