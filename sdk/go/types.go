package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Line is one order line on the wire. Reward lines come back with
// IsRewardLine set and a negative UnitPrice.
type Line struct {
	ID              string   `json:"id"`
	ProductID       string   `json:"product_id"`
	Qty             float64  `json:"qty"`
	UnitPrice       float64  `json:"unit_price"`
	TaxIDs          []string `json:"tax_ids,omitempty"`
	DiscountPercent float64  `json:"discount_percent,omitempty"`
	DiscountReason  string   `json:"discount_reason,omitempty"`
	IsRewardLine    bool     `json:"is_reward_line,omitempty"`
	RewardID        string   `json:"reward_id,omitempty"`
	PointsCost      float64  `json:"points_cost,omitempty"`
	PercentApplied  float64  `json:"percent_applied,omitempty"`
}

// Coupon mirrors the API's coupon view.
type Coupon struct {
	ID        string  `json:"id"`
	ProgramID string  `json:"program_id"`
	Code      string  `json:"code,omitempty"`
	Points    float64 `json:"points"`
}

// Order mirrors the API's order view.
type Order struct {
	ID           string    `json:"id"`
	PartnerID    string    `json:"partner_id"`
	PricelistID  string    `json:"pricelist_id"`
	Date         time.Time `json:"date"`
	State        string    `json:"state"`
	Lines        []Line    `json:"lines"`
	Coupons      []Coupon  `json:"coupons"`
	Total        float64   `json:"total"`
	TotalUntaxed float64   `json:"total_untaxed"`
}

// NewOrderRequest creates an order; lines are optional, rewards attach
// once a partner is set.
type NewOrderRequest struct {
	ID          string `json:"id"`
	PricelistID string `json:"pricelist_id,omitempty"`
	PartnerID   string `json:"partner_id,omitempty"`
	Lines       []Line `json:"lines,omitempty"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("request failed: status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyOrderID is returned when an order id is missing.
var ErrEmptyOrderID = errors.New("order id is required")
