package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promokit/core"
	"promokit/engine"
)

func productProgram(id core.ProgramID, products ...core.ProductID) *core.Program {
	return &core.Program{
		ID:      id,
		Trigger: core.TriggerAuto,
		Rules:   []*core.Rule{{ID: core.RuleID(id) + "-r", ProgramID: id, ProductIDs: products}},
	}
}

func TestFetchProgramsScopesByProduct(t *testing.T) {
	src := New()
	src.SeedPrograms(
		productProgram("coffee", "espresso"),
		productProgram("hardware", "grinder"),
		productProgram("general"), // no product scope
	)

	out, err := src.FetchPrograms(context.Background(), []core.ProductID{"espresso"})
	require.NoError(t, err)

	ids := make(map[core.ProgramID]bool)
	for _, p := range out {
		ids[p.ID] = true
	}
	assert.True(t, ids["coffee"], "product-scoped program should match")
	assert.True(t, ids["general"], "general program always included")
	assert.False(t, ids["hardware"], "unrelated program should be filtered")
}

func TestRedeemCode(t *testing.T) {
	src := New()
	src.SeedCoupon("WELCOME", &core.Coupon{ID: "c1", ProgramID: "p1", Points: 5})
	src.SeedCoupon("EXPIRED", &core.Coupon{ID: "c2", ProgramID: "p1", Points: 5,
		Expiration: time.Now().Add(-time.Hour)})
	src.SeedCoupon("NOMINATIVE", &core.Coupon{ID: "c3", ProgramID: "p1", Points: 5,
		PartnerID: "alice"})

	ctx := context.Background()
	now := time.Now()

	res, err := src.RedeemCode(ctx, engine.RedeemRequest{Code: "WELCOME", OrderDate: now})
	require.NoError(t, err)
	assert.Equal(t, core.CouponID("c1"), res.CouponID)
	assert.Equal(t, 5.0, res.Points)

	_, err = src.RedeemCode(ctx, engine.RedeemRequest{Code: " WELCOME ", OrderDate: now})
	assert.NoError(t, err, "codes are trimmed before lookup")

	_, err = src.RedeemCode(ctx, engine.RedeemRequest{Code: "NOPE", OrderDate: now})
	assert.True(t, errors.Is(err, engine.ErrCodeInvalid))

	_, err = src.RedeemCode(ctx, engine.RedeemRequest{Code: "EXPIRED", OrderDate: now})
	assert.True(t, errors.Is(err, engine.ErrCodeInvalid))

	_, err = src.RedeemCode(ctx, engine.RedeemRequest{Code: "NOMINATIVE", OrderDate: now, PartnerID: "bob"})
	assert.True(t, errors.Is(err, engine.ErrCodeInvalid), "wrong partner must not redeem a nominative code")

	_, err = src.RedeemCode(ctx, engine.RedeemRequest{Code: "NOMINATIVE", OrderDate: now, PartnerID: "alice"})
	assert.NoError(t, err)
}

func TestUsageLimit(t *testing.T) {
	src := New()
	src.SeedUsageLimit("rw1", engine.UsageLimitResult{Limit: 3})

	res, err := src.UsageLimit(context.Background(), engine.UsageLimitRequest{RewardID: "rw1"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Limit)

	res, err = src.UsageLimit(context.Background(), engine.UsageLimitRequest{RewardID: "unknown"})
	require.NoError(t, err)
	assert.True(t, res.Unlimited, "unseeded rewards default to unlimited")
}

func TestCouponLifecycleCounters(t *testing.T) {
	src := New()
	ctx := context.Background()

	require.NoError(t, src.MarkCouponUsed(ctx, "CODE"))
	require.NoError(t, src.MarkCouponUsed(ctx, "CODE"))
	assert.Equal(t, 2, src.UsedCount("CODE"))

	require.NoError(t, src.ReleaseCoupon(ctx, "c1"))
	assert.Equal(t, 1, src.ReleasedCount("c1"))
	assert.Equal(t, 0, src.ReleasedCount("other"))
}
