package engine

import (
	"math"
	"sort"

	"promokit/core"
)

// DistributePoints allocates one coupon's finite point budget across the
// prioritized rewards competing for it. Tiers run strictly in order, each
// consuming from the shared remaining-points accumulator:
//
//  1. zero-cost rewards get quantity 1 while any points remain,
//  2. code-triggered box-quantized rewards get whole boxes,
//  3. user-selected rewards get floor division,
//  4. is_main rewards not already selected get floor division,
//  5. the rest share round-robin in ascending cost order.
//
// Tiers 2-4 are hard business commitments (codes, explicit user choice,
// the flagged main reward) honored before any fair-share distribution.
func DistributePoints(total float64, entries []core.ClaimableReward, selected map[core.RewardID]bool) core.PointAllocation {
	alloc := core.PointAllocation{Granted: make(map[core.RewardID]float64), Leftover: total}
	remaining := total

	// Classify once, then drain tier by tier, so a reward's place in the
	// incoming (prioritized) list never lets it consume ahead of a higher
	// tier. Non-box code rewards compete with the regular pool.
	var boxed, picked, mains, regular []core.ClaimableReward
	for _, e := range entries {
		r := e.Reward
		switch {
		case r.RequiredPoints == 0:
			if remaining != 0 {
				alloc.Granted[r.ID] = 1
			}
		case e.Program.Trigger == core.TriggerWithCode && e.Program.AppliesByBoxes:
			boxed = append(boxed, e)
		case e.Program.Trigger == core.TriggerWithCode:
			regular = append(regular, e)
		case selected[r.ID]:
			picked = append(picked, e)
		case r.IsMain:
			mains = append(mains, e)
		default:
			regular = append(regular, e)
		}
	}

	for _, e := range boxed {
		if e.Program.BoxUnit <= 0 {
			continue
		}
		boxes := math.Floor(remaining / e.Program.BoxUnit)
		if e.Program.MaxBoxes > 0 && boxes > float64(e.Program.MaxBoxes) {
			boxes = float64(e.Program.MaxBoxes)
		}
		units := boxes * e.Program.BoxUnit
		if units > 0 {
			alloc.Granted[e.Reward.ID] = units
			remaining -= units
		}
	}
	for _, e := range picked {
		if n := grantByFloor(&remaining, e); n > 0 {
			alloc.Granted[e.Reward.ID] = n
		}
	}
	for _, e := range mains {
		if n := grantByFloor(&remaining, e); n > 0 {
			alloc.Granted[e.Reward.ID] = n
		}
	}
	distributeRoundRobin(&remaining, regular, alloc.Granted)
	alloc.Leftover = remaining
	return alloc
}

// grantByFloor grants floor(remaining/required) multiples, capped by the
// program's max-boxes limit when configured, and consumes the points.
func grantByFloor(remaining *float64, e core.ClaimableReward) float64 {
	req := e.Reward.RequiredPoints
	n := math.Floor(*remaining / req)
	if e.Program.MaxBoxes > 0 && n > float64(e.Program.MaxBoxes) {
		n = float64(e.Program.MaxBoxes)
	}
	if n <= 0 {
		return 0
	}
	*remaining -= n * req
	return n
}

// distributeRoundRobin loops the regular rewards in ascending cost order,
// granting one unit per fitting reward per pass until a full pass grants
// nothing. This keeps equal-priority rewards fair instead of greedily
// exhausting points on the cheapest one.
func distributeRoundRobin(remaining *float64, entries []core.ClaimableReward, granted map[core.RewardID]float64) {
	sorted := append([]core.ClaimableReward(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Reward.RequiredPoints < sorted[j].Reward.RequiredPoints
	})
	for {
		progressed := false
		for _, e := range sorted {
			req := e.Reward.RequiredPoints
			if req <= 0 || req > *remaining {
				continue
			}
			granted[e.Reward.ID]++
			*remaining -= req
			progressed = true
		}
		if !progressed {
			return
		}
	}
}
