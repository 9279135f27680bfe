package engine

import (
	"sort"

	"promokit/core"
)

// PrioritizeRewards orders claimable entries for application. The
// tie-break ladder, each criterion strictly dominating the next:
//
//  1. order-applicability rewards from code-triggered programs go last,
//  2. mandatory-promotion programs go first,
//  3. rewards the user selected in a prior pass,
//  4. is_main rewards,
//  5. stable insertion order.
//
// The sort is stable so equal entries keep their catalog order.
func PrioritizeRewards(entries []core.ClaimableReward, selected map[core.RewardID]bool) []core.ClaimableReward {
	out := append([]core.ClaimableReward(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := rank(out[i], selected), rank(out[j], selected)
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return out
}

func rank(e core.ClaimableReward, selected map[core.RewardID]bool) [4]int {
	var r [4]int
	if isOrderCoupon(e) {
		r[0] = 1
	}
	if !e.Program.IsMandatory {
		r[1] = 1
	}
	if !selected[e.Reward.ID] {
		r[2] = 1
	}
	if !e.Reward.IsMain {
		r[3] = 1
	}
	return r
}

// isOrderCoupon reports whether the entry is a code-triggered reward with
// whole-order applicability; those are processed after all others.
func isOrderCoupon(e core.ClaimableReward) bool {
	return e.Program.Trigger == core.TriggerWithCode &&
		e.Reward.Kind == core.RewardDiscount &&
		e.Reward.Discount != nil &&
		e.Reward.Discount.Applicability == core.DiscountOnOrder
}
