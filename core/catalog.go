package core

import "time"

// Identifier types for the promotional catalog. The catalog itself is
// immutable read-only data fetched from the persistence collaborator.
type (
	ProgramID string
	RuleID    string
	RewardID  string
	CouponID  string
	ProductID string
	PartnerID string
)

// ProgramTrigger tells how a program's rewards become available.
type ProgramTrigger string

const (
	TriggerAuto     ProgramTrigger = "auto"
	TriggerWithCode ProgramTrigger = "with_code"
)

// ProgramApplicability scopes when earned points may be consumed.
type ProgramApplicability string

const (
	ApplyBoth    ProgramApplicability = "both"
	ApplyCurrent ProgramApplicability = "current"
	ApplyFuture  ProgramApplicability = "future"
)

// PaymentKind marks programs whose rewards behave like a payment method.
type PaymentKind string

const (
	PaymentNone     PaymentKind = ""
	PaymentGiftCard PaymentKind = "gift_card"
	PaymentEWallet  PaymentKind = "ewallet"
)

// Program is a named promotional ruleset grouping Rules and Rewards.
type Program struct {
	ID              ProgramID            `json:"id"`
	Name            string               `json:"name"`
	Trigger         ProgramTrigger       `json:"trigger"`
	Applicability   ProgramApplicability `json:"applicability"`
	IsNominative    bool                 `json:"is_nominative"`
	PricelistIDs    []string             `json:"pricelist_ids,omitempty"`
	MaxUsage        int                  `json:"max_usage"`
	TotalUsed       int                  `json:"total_used"`
	IsMandatory     bool                 `json:"is_mandatory"`
	AppliesByBoxes  bool                 `json:"applies_by_boxes"`
	BoxUnit         float64              `json:"box_unit"`
	MaxBoxes        int                  `json:"max_boxes"`
	Payment         PaymentKind          `json:"payment,omitempty"`
	SecondUnitPromo bool                 `json:"second_unit_promo"`
	DateFrom        time.Time            `json:"date_from,omitempty"`
	DateTo          time.Time            `json:"date_to,omitempty"`
	Rules           []*Rule              `json:"rules"`
	Rewards         []*Reward            `json:"rewards"`
}

// ActiveAt reports whether the program's validity window covers t.
func (p *Program) ActiveAt(t time.Time) bool {
	if !p.DateFrom.IsZero() && t.Before(p.DateFrom) {
		return false
	}
	if !p.DateTo.IsZero() && t.After(p.DateTo) {
		return false
	}
	return true
}

// AppliesToPricelist reports whether the program is in scope for the
// order's pricelist. An empty scope means any pricelist.
func (p *Program) AppliesToPricelist(id string) bool {
	if len(p.PricelistIDs) == 0 {
		return true
	}
	for _, pl := range p.PricelistIDs {
		if pl == id {
			return true
		}
	}
	return false
}

// UsageExhausted reports whether the program's usage cap has been reached.
func (p *Program) UsageExhausted() bool {
	return p.MaxUsage > 0 && p.TotalUsed >= p.MaxUsage
}

// PointMode selects a rule's point-award formula.
type PointMode string

const (
	PointsPerOrder PointMode = "order"
	PointsPerMoney PointMode = "money"
	PointsPerUnit  PointMode = "unit"
)

// Rule is a condition plus a point-award formula within a Program.
type Rule struct {
	ID                   RuleID      `json:"id"`
	ProgramID            ProgramID   `json:"program_id"`
	MinimumAmount        float64     `json:"minimum_amount"`
	MinimumAmountTaxIncl bool        `json:"minimum_amount_tax_incl"`
	MinimumQty           float64     `json:"minimum_qty"`
	Mode                 PointMode   `json:"mode"`
	PointAmount          float64     `json:"point_amount"`
	ProductIDs           []ProductID `json:"product_ids,omitempty"`
	SplitPerUnit         bool        `json:"split_per_unit"`
}

// MatchesProduct reports whether the rule's product scope covers p. An
// empty scope matches any product.
func (r *Rule) MatchesProduct(p ProductID) bool {
	if len(r.ProductIDs) == 0 {
		return true
	}
	for _, id := range r.ProductIDs {
		if id == p {
			return true
		}
	}
	return false
}

// RewardKind tags the Reward variant.
type RewardKind string

const (
	RewardDiscount RewardKind = "discount"
	RewardProduct  RewardKind = "product"
)

// DiscountApplicability scopes what part of the order a discount reward
// may touch.
type DiscountApplicability string

const (
	DiscountOnOrder    DiscountApplicability = "order"
	DiscountOnCheapest DiscountApplicability = "cheapest"
	DiscountOnSpecific DiscountApplicability = "specific"
)

// DiscountMode selects how a discount reward's value is interpreted.
type DiscountMode string

const (
	DiscountPercent  DiscountMode = "percent"
	DiscountPerPoint DiscountMode = "per_point"
	DiscountPerOrder DiscountMode = "per_order"
)

// DiscountReward is the payload of a discount-kind reward.
type DiscountReward struct {
	Applicability DiscountApplicability `json:"applicability"`
	Mode          DiscountMode          `json:"mode"`
	Value         float64               `json:"value"`
	MaxAmount     float64               `json:"max_amount"`
	ProductIDs    []ProductID           `json:"product_ids,omitempty"`
	LimitPerOrder float64               `json:"limit_per_order"`
}

// TargetsProduct reports whether p is in the reward's product scope.
func (d *DiscountReward) TargetsProduct(p ProductID) bool {
	if len(d.ProductIDs) == 0 {
		return true
	}
	for _, id := range d.ProductIDs {
		if id == p {
			return true
		}
	}
	return false
}

// ProductReward is the payload of a free-product reward.
type ProductReward struct {
	ProductIDs   []ProductID `json:"product_ids"`
	Quantity     float64     `json:"quantity"`
	MultiProduct bool        `json:"multi_product"`
}

// TargetsProduct reports whether p is one of the reward products.
func (pr *ProductReward) TargetsProduct(p ProductID) bool {
	for _, id := range pr.ProductIDs {
		if id == p {
			return true
		}
	}
	return false
}

// Reward is a redeemable benefit gated by required points. Exactly one of
// Discount/Product is set, matching Kind.
type Reward struct {
	ID               RewardID        `json:"id"`
	ProgramID        ProgramID       `json:"program_id"`
	Kind             RewardKind      `json:"kind"`
	RequiredPoints   float64         `json:"required_points"`
	IsMain           bool            `json:"is_main"`
	IsGlobalDiscount bool            `json:"is_global_discount"`
	ClearWallet      bool            `json:"clear_wallet"`
	Description      string          `json:"description,omitempty"`
	Discount         *DiscountReward `json:"discount,omitempty"`
	Product          *ProductReward  `json:"product,omitempty"`
}

// Coupon is an instance of accumulated points tied to a program,
// optionally activated by a code.
type Coupon struct {
	ID         CouponID  `json:"id"`
	ProgramID  ProgramID `json:"program_id"`
	PartnerID  PartnerID `json:"partner_id,omitempty"`
	Code       string    `json:"code,omitempty"`
	Points     float64   `json:"points"`
	Expiration time.Time `json:"expiration,omitempty"`
}

// Expired reports whether the coupon is past its expiration date.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.Expiration.IsZero() && now.After(c.Expiration)
}

// PointChange is one rule-evaluator output entry: points earned on a
// program within the current pass, not yet persisted to a coupon.
type PointChange struct {
	ProgramID ProgramID `json:"program_id"`
	CouponID  CouponID  `json:"coupon_id,omitempty"`
	RuleIDs   []RuleID  `json:"rule_ids"`
	Points    float64   `json:"points"`
}

// ClaimableReward is an ephemeral (program, reward, coupon) triple the
// order can currently afford. Produced fresh on every reconciliation
// pass, never persisted.
type ClaimableReward struct {
	Program      *Program
	Reward       *Reward
	CouponID     CouponID
	PotentialQty float64
}

// PointAllocation is the Point Distributor's result for one coupon
// context: quantity granted per reward plus the unspent leftover.
type PointAllocation struct {
	Granted  map[RewardID]float64
	Leftover float64
}

// MergePrograms deduplicates two catalog result sets by program id,
// keeping first occurrence. The persistence collaborator answers "per
// product" and "general" queries separately; the engine merges them.
func MergePrograms(sets ...[]*Program) []*Program {
	seen := make(map[ProgramID]struct{})
	var out []*Program
	for _, set := range sets {
		for _, p := range set {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
