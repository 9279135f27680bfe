package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"promokit/core"
)

// AggregationPeriod selects the time bucket for aggregation.
type AggregationPeriod string

const (
	PeriodDaily   AggregationPeriod = "daily"
	PeriodWeekly  AggregationPeriod = "weekly"
	PeriodMonthly AggregationPeriod = "monthly"
)

// AggregatedData is one rolled-up redemption report.
type AggregatedData struct {
	Period    AggregationPeriod `json:"period"`
	Key       string            `json:"key"` // "2024-01-01", "2024-W01" or "2024-01"
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`

	ActiveOrders    int     `json:"active_orders"`
	DiscountGranted float64 `json:"discount_granted"`
	PointsSpent     float64 `json:"points_spent"`
	PointsIssued    float64 `json:"points_issued"`
	RewardsApplied  int64   `json:"rewards_applied"`
	CouponsRedeemed int64   `json:"coupons_redeemed"`
	CouponsReleased int64   `json:"coupons_released"`

	CreatedAt time.Time `json:"created_at"`
}

// AggregationEngine rolls per-day metrics up into daily, weekly and
// monthly reports on a fixed interval.
type AggregationEngine struct {
	mu sync.RWMutex

	metrics *RedemptionMetrics
	log     *slog.Logger

	daily   map[string]*AggregatedData
	weekly  map[string]*AggregatedData
	monthly map[string]*AggregatedData

	interval        time.Duration
	lastAggregation time.Time
}

func NewAggregationEngine(metrics *RedemptionMetrics, interval time.Duration) *AggregationEngine {
	return &AggregationEngine{
		metrics:         metrics,
		log:             slog.Default(),
		daily:           make(map[string]*AggregatedData),
		weekly:          make(map[string]*AggregatedData),
		monthly:         make(map[string]*AggregatedData),
		interval:        interval,
		lastAggregation: time.Now(),
	}
}

// OnEvent forwards events to the underlying metrics hook.
func (ae *AggregationEngine) OnEvent(e core.Event) {
	ae.metrics.OnEvent(e)
}

// AggregateNow forces an immediate aggregation of all periods.
func (ae *AggregationEngine) AggregateNow() error {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	now := time.Now().UTC()

	if err := ae.aggregateDaily(now); err != nil {
		return fmt.Errorf("aggregate daily: %w", err)
	}
	if err := ae.aggregateWeekly(now); err != nil {
		return fmt.Errorf("aggregate weekly: %w", err)
	}
	if err := ae.aggregateMonthly(now); err != nil {
		return fmt.Errorf("aggregate monthly: %w", err)
	}

	ae.lastAggregation = now
	return nil
}

func (ae *AggregationEngine) aggregateDaily(now time.Time) error {
	day := now.Format("2006-01-02")
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	data := ae.newReport(PeriodDaily, day, start, start.Add(24*time.Hour), now)
	data.ActiveOrders = ae.metrics.DailyActiveOrders(day)
	ae.addDay(data, day)

	ae.daily[day] = data
	return nil
}

func (ae *AggregationEngine) aggregateWeekly(now time.Time) error {
	wk := weekKey(now)

	// Week starts on Monday.
	daysSinceMonday := int(now.Weekday()-time.Monday) % 7
	if daysSinceMonday < 0 {
		daysSinceMonday += 7
	}
	start := time.Date(now.Year(), now.Month(), now.Day()-daysSinceMonday, 0, 0, 0, 0, time.UTC)

	data := ae.newReport(PeriodWeekly, wk, start, start.Add(7*24*time.Hour), now)
	data.ActiveOrders = ae.metrics.WeeklyActiveOrders(wk)
	for i := 0; i < 7; i++ {
		ae.addDay(data, start.AddDate(0, 0, i).Format("2006-01-02"))
	}

	ae.weekly[wk] = data
	return nil
}

func (ae *AggregationEngine) aggregateMonthly(now time.Time) error {
	mk := monthKey(now)

	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	data := ae.newReport(PeriodMonthly, mk, start, end, now)
	data.ActiveOrders = ae.metrics.MonthlyActiveOrders(mk)
	days := int(end.Sub(start).Hours() / 24)
	for i := 0; i < days; i++ {
		ae.addDay(data, start.AddDate(0, 0, i).Format("2006-01-02"))
	}

	ae.monthly[mk] = data
	return nil
}

func (ae *AggregationEngine) newReport(period AggregationPeriod, key string, start, end, now time.Time) *AggregatedData {
	return &AggregatedData{
		Period:    period,
		Key:       key,
		StartTime: start,
		EndTime:   end,
		CreatedAt: now,
	}
}

func (ae *AggregationEngine) addDay(data *AggregatedData, day string) {
	data.DiscountGranted += ae.metrics.DiscountGrantedByDay(day)
	data.PointsSpent += ae.metrics.PointsSpentByDay(day)
	data.PointsIssued += ae.metrics.PointsIssuedByDay(day)
	data.RewardsApplied += ae.metrics.RewardsAppliedByDay(day)
	data.CouponsRedeemed += ae.metrics.CouponsRedeemedByDay(day)
	data.CouponsReleased += ae.metrics.CouponsReleasedByDay(day)
}

// GetAggregatedData returns the report for a specific period and key.
func (ae *AggregationEngine) GetAggregatedData(period AggregationPeriod, key string) (*AggregatedData, bool) {
	ae.mu.RLock()
	defer ae.mu.RUnlock()

	m := ae.bucketFor(period)
	if m == nil {
		return nil, false
	}
	data, exists := m[key]
	return data, exists
}

// GetAllAggregatedData returns all reports for a period.
func (ae *AggregationEngine) GetAllAggregatedData(period AggregationPeriod) []*AggregatedData {
	ae.mu.RLock()
	defer ae.mu.RUnlock()

	m := ae.bucketFor(period)
	if m == nil {
		return nil
	}
	result := make([]*AggregatedData, 0, len(m))
	for _, data := range m {
		result = append(result, data)
	}
	return result
}

func (ae *AggregationEngine) bucketFor(period AggregationPeriod) map[string]*AggregatedData {
	switch period {
	case PeriodDaily:
		return ae.daily
	case PeriodWeekly:
		return ae.weekly
	case PeriodMonthly:
		return ae.monthly
	default:
		return nil
	}
}

// Start runs periodic aggregation until ctx is cancelled.
func (ae *AggregationEngine) Start(ctx context.Context) {
	ticker := time.NewTicker(ae.interval)
	defer ticker.Stop()

	if err := ae.AggregateNow(); err != nil {
		ae.log.Warn("initial aggregation failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ae.AggregateNow(); err != nil {
				ae.log.Warn("periodic aggregation failed", "error", err)
			}
		}
	}
}

// ExportData serializes all reports for a period to indented JSON.
func (ae *AggregationEngine) ExportData(period AggregationPeriod) ([]byte, error) {
	data := ae.GetAllAggregatedData(period)
	return json.MarshalIndent(data, "", "  ")
}
