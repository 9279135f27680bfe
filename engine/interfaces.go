package engine

import (
	"context"
	"errors"
	"time"

	"promokit/core"
)

// Sentinel errors surfaced by the engine and its collaborators.
var (
	// ErrNoPartner blocks reconciliation: loyalty logic requires an
	// identified customer.
	ErrNoPartner = errors.New("order has no partner set")

	// ErrCodeInvalid is returned when a promotional code cannot be
	// redeemed.
	ErrCodeInvalid = errors.New("invalid or expired code")

	// ErrCodeAlreadyApplied is returned when the coupon behind a code is
	// already active on the order.
	ErrCodeAlreadyApplied = errors.New("code already applied to this order")
)

// RedeemRequest asks the persistence collaborator to redeem a code.
type RedeemRequest struct {
	Code        string
	OrderDate   time.Time
	PartnerID   core.PartnerID
	PricelistID string
}

// RedeemResult is a successful code redemption.
type RedeemResult struct {
	CouponID   core.CouponID
	ProgramID  core.ProgramID
	PartnerID  core.PartnerID
	Points     float64
	Expiration time.Time
}

// UsageLimitRequest asks how often a reward may still be used.
type UsageLimitRequest struct {
	ProductID core.ProductID
	RewardID  core.RewardID
	PartnerID core.PartnerID
}

// UsageLimitResult reports a reward's remaining usage budget.
type UsageLimitResult struct {
	Limit      int
	LimitItems int
	LimitLocal int
	Unlimited  bool
}

// CatalogSource is the persistence collaborator behind the engine: it
// serves the program/reward catalog and handles coupon lifecycle calls.
// FetchPrograms answers both the "per product" and "general" result sets
// already merged and deduplicated by id.
type CatalogSource interface {
	FetchPrograms(ctx context.Context, productIDs []core.ProductID) ([]*core.Program, error)
	RedeemCode(ctx context.Context, req RedeemRequest) (RedeemResult, error)
	UsageLimit(ctx context.Context, req UsageLimitRequest) (UsageLimitResult, error)

	// MarkCouponUsed is fire-and-forget; errors are logged, not surfaced.
	MarkCouponUsed(ctx context.Context, code string) error

	// ReleaseCoupon hands a coupon no longer referenced by any surviving
	// reward line back to the collaborator.
	ReleaseCoupon(ctx context.Context, id core.CouponID) error
}
