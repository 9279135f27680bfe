package core

import "time"

// WeekdayPromo is an independent promotional percentage that varies by
// weekday. It is layered over the order after reward reconciliation and
// combined with reward discounts per CombinePercents.
type WeekdayPromo struct {
	// Percents maps each weekday to its promotional percentage. Missing
	// days mean no promotion.
	Percents map[time.Weekday]float64 `json:"percents"`

	// Products restricts the promotion to these products. Empty means the
	// promotion covers every product.
	Products map[ProductID]bool `json:"products,omitempty"`

	// Mode selects how the promotion combines with pre-existing line
	// discounts. Zero value defaults to sequential.
	Mode CombineMode `json:"mode,omitempty"`
}

// PercentFor returns the promotional percentage for a product on the
// given date, or 0 when none applies.
func (w WeekdayPromo) PercentFor(date time.Time, product ProductID) float64 {
	if len(w.Percents) == 0 {
		return 0
	}
	if len(w.Products) > 0 && !w.Products[product] {
		return 0
	}
	return w.Percents[date.Weekday()]
}
