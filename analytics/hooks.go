package analytics

import (
	"fmt"
	"math"
	"sync"
	"time"

	"promokit/core"
	"promokit/leaderboard"
)

// Hook receives engine events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// RedemptionMetrics tracks redemption KPIs across orders, programs and
// time buckets. All counters are keyed in UTC.
type RedemptionMetrics struct {
	mu sync.RWMutex

	// Order engagement: which orders saw engine activity per bucket.
	dailyActiveOrders   map[string]map[string]struct{}
	weeklyActiveOrders  map[string]map[string]struct{}
	monthlyActiveOrders map[string]map[string]struct{}

	// Discount value granted, currency units.
	discountByDay     map[string]float64
	discountByProgram map[core.ProgramID]float64

	// Loyalty points spent on rewards and issued via coupon codes.
	pointsSpentByDay   map[string]float64
	pointsIssuedByDay  map[string]float64
	rewardsAppliedByDay map[string]int64

	// Coupon lifecycle.
	couponsRedeemedByDay map[string]int64
	couponsReleasedByDay map[string]int64

	// Why rewards did not land.
	skipsByReason          map[string]int64
	minimumNotMetByProgram map[core.ProgramID]int64
	validationFailures     int64

	// Programs ranked by total discount granted, in cents.
	board *leaderboard.SkipList

	// Rolling counters for the last 24 hours.
	realtime struct {
		discount  float64
		points    float64
		rewards   int64
		lastReset time.Time
	}
}

func NewRedemptionMetrics() *RedemptionMetrics {
	m := &RedemptionMetrics{
		dailyActiveOrders:      make(map[string]map[string]struct{}),
		weeklyActiveOrders:     make(map[string]map[string]struct{}),
		monthlyActiveOrders:    make(map[string]map[string]struct{}),
		discountByDay:          make(map[string]float64),
		discountByProgram:      make(map[core.ProgramID]float64),
		pointsSpentByDay:       make(map[string]float64),
		pointsIssuedByDay:      make(map[string]float64),
		rewardsAppliedByDay:    make(map[string]int64),
		couponsRedeemedByDay:   make(map[string]int64),
		couponsReleasedByDay:   make(map[string]int64),
		skipsByReason:          make(map[string]int64),
		minimumNotMetByProgram: make(map[core.ProgramID]int64),
		board:                  leaderboard.NewSkipList(),
	}
	m.realtime.lastReset = time.Now()
	return m
}

func (m *RedemptionMetrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := e.Time.UTC().Format("2006-01-02")
	m.trackOrder(e.OrderID, day, weekKey(e.Time), monthKey(e.Time))

	switch e.Type {
	case core.EventRewardApplied:
		m.discountByDay[day] += e.Amount
		m.discountByProgram[e.ProgramID] += e.Amount
		m.pointsSpentByDay[day] += e.Points
		m.rewardsAppliedByDay[day]++
		m.board.Update(e.ProgramID, int64(math.Round(m.discountByProgram[e.ProgramID]*100)))
		m.realtime.discount += e.Amount
		m.realtime.points += e.Points
		m.realtime.rewards++
	case core.EventRewardSkipped:
		m.skipsByReason[e.Reason]++
	case core.EventMinimumNotMet:
		m.minimumNotMetByProgram[e.ProgramID]++
	case core.EventCouponRedeemed:
		m.couponsRedeemedByDay[day]++
		m.pointsIssuedByDay[day] += e.Points
	case core.EventCouponReleased:
		m.couponsReleasedByDay[day]++
	case core.EventValidationFailed:
		m.validationFailures++
	}

	if time.Since(m.realtime.lastReset) > 24*time.Hour {
		m.realtime.discount = 0
		m.realtime.points = 0
		m.realtime.rewards = 0
		m.realtime.lastReset = time.Now()
	}
}

func (m *RedemptionMetrics) trackOrder(orderID, day, week, month string) {
	if orderID == "" {
		return
	}
	if m.dailyActiveOrders[day] == nil {
		m.dailyActiveOrders[day] = make(map[string]struct{})
	}
	m.dailyActiveOrders[day][orderID] = struct{}{}

	if m.weeklyActiveOrders[week] == nil {
		m.weeklyActiveOrders[week] = make(map[string]struct{})
	}
	m.weeklyActiveOrders[week][orderID] = struct{}{}

	if m.monthlyActiveOrders[month] == nil {
		m.monthlyActiveOrders[month] = make(map[string]struct{})
	}
	m.monthlyActiveOrders[month][orderID] = struct{}{}
}

// DailyActiveOrders returns how many distinct orders had engine activity
// on a given day ("2006-01-02").
func (m *RedemptionMetrics) DailyActiveOrders(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dailyActiveOrders[day])
}

// WeeklyActiveOrders returns distinct active orders for an ISO week key
// ("2006-W01").
func (m *RedemptionMetrics) WeeklyActiveOrders(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weeklyActiveOrders[week])
}

// MonthlyActiveOrders returns distinct active orders for a month key
// ("2006-01").
func (m *RedemptionMetrics) MonthlyActiveOrders(month string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monthlyActiveOrders[month])
}

// DiscountGrantedByDay returns the discount value granted on a day.
func (m *RedemptionMetrics) DiscountGrantedByDay(day string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.discountByDay[day]
}

// DiscountGrantedByProgram returns the cumulative discount a program granted.
func (m *RedemptionMetrics) DiscountGrantedByProgram(program core.ProgramID) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.discountByProgram[program]
}

// PointsSpentByDay returns loyalty points consumed by rewards on a day.
func (m *RedemptionMetrics) PointsSpentByDay(day string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsSpentByDay[day]
}

// PointsIssuedByDay returns points issued via redeemed codes on a day.
func (m *RedemptionMetrics) PointsIssuedByDay(day string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsIssuedByDay[day]
}

// RewardsAppliedByDay returns how many rewards were materialized on a day.
func (m *RedemptionMetrics) RewardsAppliedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rewardsAppliedByDay[day]
}

// CouponsRedeemedByDay returns codes redeemed on a day.
func (m *RedemptionMetrics) CouponsRedeemedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.couponsRedeemedByDay[day]
}

// CouponsReleasedByDay returns orphaned coupons released on a day.
func (m *RedemptionMetrics) CouponsReleasedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.couponsReleasedByDay[day]
}

// SkipCount returns how often rewards were skipped for the given reason.
func (m *RedemptionMetrics) SkipCount(reason string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skipsByReason[reason]
}

// MinimumNotMetCount returns how often a program failed its minimums.
func (m *RedemptionMetrics) MinimumNotMetCount(program core.ProgramID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minimumNotMetByProgram[program]
}

// ValidationFailures returns the total validation failure count.
func (m *RedemptionMetrics) ValidationFailures() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validationFailures
}

// RealtimeStats returns the rolling 24h discount value, points spent and
// reward count.
func (m *RedemptionMetrics) RealtimeStats() (discount, points float64, rewards int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.realtime.discount, m.realtime.points, m.realtime.rewards
}

// TopPrograms returns up to limit programs ranked by discount granted.
func (m *RedemptionMetrics) TopPrograms(limit int) []leaderboard.Entry {
	return m.board.TopN(limit)
}

// Summary builds a reporting snapshot: ranked programs plus totals.
func (m *RedemptionMetrics) Summary(limit int) map[string]any {
	top := m.board.TopN(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ranked := make([]map[string]any, len(top))
	for i, e := range top {
		ranked[i] = map[string]any{
			"program":  e.Program,
			"discount": float64(e.Score) / 100,
		}
	}
	var totalDiscount float64
	for _, v := range m.discountByProgram {
		totalDiscount += v
	}
	var totalRewards int64
	for _, v := range m.rewardsAppliedByDay {
		totalRewards += v
	}
	return map[string]any{
		"top_programs_by_discount": ranked,
		"total_discount_granted":   totalDiscount,
		"total_rewards_applied":    totalRewards,
	}
}

func weekKey(t time.Time) string {
	tt := t.UTC()
	year, week := tt.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
