package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promokit/core"
	"promokit/engine"
)

func TestRedemptionMetrics_OnEvent(t *testing.T) {
	metrics := NewRedemptionMetrics()
	now := time.Now().UTC()

	metrics.OnEvent(core.Event{
		Type: core.EventRewardApplied, OrderID: "order-1", Time: now,
		ProgramID: "loyalty", RewardID: "rw1", CouponID: "c1",
		Amount: 12.5, Points: 50,
	})
	metrics.OnEvent(core.Event{
		Type: core.EventCouponRedeemed, OrderID: "order-1", Time: now,
		ProgramID: "welcome", CouponID: "c2", Points: 5,
	})
	metrics.OnEvent(core.Event{
		Type: core.EventRewardSkipped, OrderID: "order-2", Time: now,
		ProgramID: "loyalty", RewardID: "rw1", Reason: "nothing to discount",
	})
	metrics.OnEvent(core.Event{
		Type: core.EventMinimumNotMet, OrderID: "order-2", Time: now,
		ProgramID: "welcome", Reason: "minimum amount not reached",
	})

	day := now.Format("2006-01-02")
	assert.Equal(t, 2, metrics.DailyActiveOrders(day))
	assert.Equal(t, 12.5, metrics.DiscountGrantedByDay(day))
	assert.Equal(t, 12.5, metrics.DiscountGrantedByProgram("loyalty"))
	assert.Equal(t, 50.0, metrics.PointsSpentByDay(day))
	assert.Equal(t, 5.0, metrics.PointsIssuedByDay(day))
	assert.Equal(t, int64(1), metrics.RewardsAppliedByDay(day))
	assert.Equal(t, int64(1), metrics.CouponsRedeemedByDay(day))
	assert.Equal(t, int64(1), metrics.SkipCount("nothing to discount"))
	assert.Equal(t, int64(1), metrics.MinimumNotMetCount("welcome"))

	discount, points, rewards := metrics.RealtimeStats()
	assert.Equal(t, 12.5, discount)
	assert.Equal(t, 50.0, points)
	assert.Equal(t, int64(1), rewards)
}

func TestRedemptionMetrics_TopPrograms(t *testing.T) {
	metrics := NewRedemptionMetrics()

	metrics.OnEvent(core.NewRewardApplied("o1", "loyalty", "rw1", "c1", 10, 50))
	metrics.OnEvent(core.NewRewardApplied("o2", "welcome", "rw2", "c2", 30, 10))
	metrics.OnEvent(core.NewRewardApplied("o3", "loyalty", "rw1", "c3", 5, 25))

	top := metrics.TopPrograms(5)
	require.Len(t, top, 2)
	assert.Equal(t, core.ProgramID("welcome"), top[0].Program)
	assert.Equal(t, int64(3000), top[0].Score, "score is discount in cents")
	assert.Equal(t, core.ProgramID("loyalty"), top[1].Program)
	assert.Equal(t, int64(1500), top[1].Score)

	summary := metrics.Summary(1)
	assert.Equal(t, 45.0, summary["total_discount_granted"])
	assert.Equal(t, int64(3), summary["total_rewards_applied"])
}

func TestAggregationEngine(t *testing.T) {
	metrics := NewRedemptionMetrics()
	aggregator := NewAggregationEngine(metrics, time.Hour)

	now := time.Now().UTC()
	metrics.OnEvent(core.Event{
		Type: core.EventRewardApplied, OrderID: "order-1", Time: now,
		ProgramID: "loyalty", Amount: 8, Points: 40,
	})

	require.NoError(t, aggregator.AggregateNow())

	day := now.Format("2006-01-02")
	daily, exists := aggregator.GetAggregatedData(PeriodDaily, day)
	require.True(t, exists)
	assert.Equal(t, PeriodDaily, daily.Period)
	assert.Equal(t, day, daily.Key)
	assert.Equal(t, 1, daily.ActiveOrders)
	assert.Equal(t, 8.0, daily.DiscountGranted)
	assert.Equal(t, 40.0, daily.PointsSpent)
	assert.Equal(t, int64(1), daily.RewardsApplied)

	out, err := aggregator.ExportData(PeriodDaily)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"discount_granted": 8`)
}

func TestStreamPublisher(t *testing.T) {
	metrics := NewRedemptionMetrics()
	publisher := NewStreamPublisher(metrics)

	subscriber := NewMemorySubscriber("test")
	publisher.Subscribe("test", subscriber)

	publisher.OnEvent(core.NewRewardApplied("order-1", "loyalty", "rw1", "c1", 25, 100))

	events := subscriber.Events()
	require.Len(t, events, 1)
	assert.Equal(t, string(core.EventRewardApplied), events[0].Type)
	assert.Equal(t, "order-1", events[0].OrderID)
	assert.Equal(t, 25.0, events[0].Amount)

	day := time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, 25.0, metrics.DiscountGrantedByDay(day), "publisher must also feed the metrics")

	publisher.Unsubscribe("test")
	publisher.OnEvent(core.NewRewardApplied("order-2", "loyalty", "rw1", "c1", 5, 25))
	assert.Len(t, subscriber.Events(), 1, "unsubscribed consumers receive nothing")
}

func TestChannelSubscriber(t *testing.T) {
	sub := NewChannelSubscriber("ws-1", 4)
	sub.OnStreamEvent(&StreamEvent{Type: "reward_applied", OrderID: "o1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := sub.ReadEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "o1", ev.OrderID)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "double close must be safe")
	_, err = sub.ReadEvent(ctx)
	assert.Error(t, err)
}

func TestDashboardManager(t *testing.T) {
	metrics := NewRedemptionMetrics()
	publisher := NewStreamPublisher(metrics)
	dashboard := NewDashboardManager(publisher, metrics, 2)

	for i := 0; i < 3; i++ {
		publisher.OnEvent(core.NewRewardApplied("order-1", "loyalty", "rw1", "c1", 1, 5))
	}

	data := dashboard.DashboardData()
	require.NotNil(t, data)
	assert.Len(t, data.RecentEvents, 2, "window is bounded at maxEvents")
	assert.NotNil(t, data.RealtimeStats)
	assert.NotNil(t, data.TopPrograms)
}

func TestBridgeHook(t *testing.T) {
	a := NewRedemptionMetrics()
	b := NewRedemptionMetrics()
	bridge := NewBridge(a, b)

	bridge.OnEvent(core.NewRewardApplied("o1", "loyalty", "rw1", "c1", 10, 50))

	day := time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, 10.0, a.DiscountGrantedByDay(day))
	assert.Equal(t, 10.0, b.DiscountGrantedByDay(day))
}

func TestServiceAttach(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()

	svc := NewService()
	svc.Attach(bus)

	bus.Publish(context.Background(), core.NewRewardApplied("order-1", "loyalty", "rw1", "c1", 7, 35))

	day := time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, 7.0, svc.Metrics().DiscountGrantedByDay(day))
	require.NoError(t, svc.ForceAggregation())

	stats := svc.RealtimeStats()
	assert.Equal(t, 7.0, stats["discount_granted_24h"])

	svc.Detach()
	bus.Publish(context.Background(), core.NewRewardApplied("order-2", "loyalty", "rw1", "c1", 3, 15))
	assert.Equal(t, 7.0, svc.Metrics().DiscountGrantedByDay(day), "detached pipeline stops counting")
}

func BenchmarkRedemptionMetrics(b *testing.B) {
	metrics := NewRedemptionMetrics()
	ev := core.NewRewardApplied("order-1", "loyalty", "rw1", "c1", 10, 50)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		metrics.OnEvent(ev)
	}
}

func BenchmarkStreamPublisher(b *testing.B) {
	metrics := NewRedemptionMetrics()
	publisher := NewStreamPublisher(metrics)
	publisher.Subscribe("bench", NewMemorySubscriber("bench"))

	ev := core.NewRewardApplied("order-1", "loyalty", "rw1", "c1", 10, 50)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		publisher.OnEvent(ev)
	}
}
