package engine

import (
	"testing"

	"promokit/core"
)

func TestPrioritizeRewardsLadder(t *testing.T) {
	orderCoupon := core.ClaimableReward{
		Program: &core.Program{ID: "codes", Trigger: core.TriggerWithCode},
		Reward: &core.Reward{ID: "order-coupon", Kind: core.RewardDiscount,
			Discount: &core.DiscountReward{Applicability: core.DiscountOnOrder}},
	}
	mandatory := core.ClaimableReward{
		Program: &core.Program{ID: "must", Trigger: core.TriggerAuto, IsMandatory: true},
		Reward:  &core.Reward{ID: "mandatory"},
	}
	picked := core.ClaimableReward{
		Program: &core.Program{ID: "auto", Trigger: core.TriggerAuto},
		Reward:  &core.Reward{ID: "picked"},
	}
	main := core.ClaimableReward{
		Program: &core.Program{ID: "auto", Trigger: core.TriggerAuto},
		Reward:  &core.Reward{ID: "main", IsMain: true},
	}
	plain := core.ClaimableReward{
		Program: &core.Program{ID: "auto", Trigger: core.TriggerAuto},
		Reward:  &core.Reward{ID: "plain"},
	}

	in := []core.ClaimableReward{plain, orderCoupon, main, picked, mandatory}
	out := PrioritizeRewards(in, map[core.RewardID]bool{"picked": true})

	want := []core.RewardID{"mandatory", "picked", "main", "plain", "order-coupon"}
	for i, id := range want {
		if out[i].Reward.ID != id {
			t.Fatalf("position %d: got %s, want %s", i, out[i].Reward.ID, id)
		}
	}
}

func TestPrioritizeRewardsStable(t *testing.T) {
	a := core.ClaimableReward{
		Program: &core.Program{ID: "p", Trigger: core.TriggerAuto},
		Reward:  &core.Reward{ID: "first"},
	}
	b := core.ClaimableReward{
		Program: &core.Program{ID: "p", Trigger: core.TriggerAuto},
		Reward:  &core.Reward{ID: "second"},
	}
	out := PrioritizeRewards([]core.ClaimableReward{a, b}, nil)
	if out[0].Reward.ID != "first" || out[1].Reward.ID != "second" {
		t.Fatal("equal entries should keep catalog order")
	}
}
