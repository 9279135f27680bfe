package analytics

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"promokit/core"
)

// StreamEvent is one redemption event shaped for live consumers.
type StreamEvent struct {
	Type      string         `json:"type"`
	OrderID   string         `json:"order_id"`
	ProgramID core.ProgramID `json:"program_id,omitempty"`
	RewardID  core.RewardID  `json:"reward_id,omitempty"`
	CouponID  core.CouponID  `json:"coupon_id,omitempty"`
	Amount    float64        `json:"amount,omitempty"`
	Points    float64        `json:"points,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// StreamSubscriber consumes live redemption events.
type StreamSubscriber interface {
	OnStreamEvent(event *StreamEvent)
	Close() error
}

// StreamPublisher feeds metrics and fans events out to subscribers.
type StreamPublisher struct {
	mu          sync.RWMutex
	subscribers map[string]StreamSubscriber
	metrics     *RedemptionMetrics
}

func NewStreamPublisher(metrics *RedemptionMetrics) *StreamPublisher {
	return &StreamPublisher{
		subscribers: make(map[string]StreamSubscriber),
		metrics:     metrics,
	}
}

// Subscribe registers a subscriber under an id; an existing id is replaced.
func (sp *StreamPublisher) Subscribe(id string, subscriber StreamSubscriber) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.subscribers[id] = subscriber
}

// Unsubscribe closes and removes a subscriber.
func (sp *StreamPublisher) Unsubscribe(id string) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if subscriber, exists := sp.subscribers[id]; exists {
		_ = subscriber.Close()
		delete(sp.subscribers, id)
	}
}

// PublishEvent delivers an event to all subscribers. A panicking
// subscriber never takes the publisher down.
func (sp *StreamPublisher) PublishEvent(event *StreamEvent) {
	sp.mu.RLock()
	subscribers := make([]StreamSubscriber, 0, len(sp.subscribers))
	for _, subscriber := range sp.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	sp.mu.RUnlock()

	for _, subscriber := range subscribers {
		func(sub StreamSubscriber) {
			defer func() { _ = recover() }()
			sub.OnStreamEvent(event)
		}(subscriber)
	}
}

// OnEvent records the event in the metrics and streams it out.
func (sp *StreamPublisher) OnEvent(e core.Event) {
	sp.metrics.OnEvent(e)
	sp.PublishEvent(toStreamEvent(e))
}

func toStreamEvent(e core.Event) *StreamEvent {
	return &StreamEvent{
		Type:      string(e.Type),
		OrderID:   e.OrderID,
		ProgramID: e.ProgramID,
		RewardID:  e.RewardID,
		CouponID:  e.CouponID,
		Amount:    e.Amount,
		Points:    e.Points,
		Reason:    e.Reason,
		Timestamp: e.Time,
	}
}

// RealtimeStats returns current rolling statistics.
func (sp *StreamPublisher) RealtimeStats() map[string]any {
	discount, points, rewards := sp.metrics.RealtimeStats()

	sp.mu.RLock()
	subs := len(sp.subscribers)
	sp.mu.RUnlock()

	return map[string]any{
		"discount_granted_24h": discount,
		"points_spent_24h":     points,
		"rewards_applied_24h":  rewards,
		"active_subscribers":   subs,
		"timestamp":            time.Now(),
	}
}

// ChannelSubscriber buffers events on a channel for pull-style consumers
// such as a WebSocket writer loop. Events are dropped when the buffer is
// full.
type ChannelSubscriber struct {
	id        string
	sendChan  chan *StreamEvent
	closeChan chan struct{}
	closeOnce sync.Once
}

func NewChannelSubscriber(id string, bufferSize int) *ChannelSubscriber {
	return &ChannelSubscriber{
		id:        id,
		sendChan:  make(chan *StreamEvent, bufferSize),
		closeChan: make(chan struct{}),
	}
}

func (cs *ChannelSubscriber) OnStreamEvent(event *StreamEvent) {
	select {
	case cs.sendChan <- event:
	case <-cs.closeChan:
	default:
	}
}

// ReadEvent blocks for the next event, the subscriber closing, or ctx.
func (cs *ChannelSubscriber) ReadEvent(ctx context.Context) (*StreamEvent, error) {
	select {
	case event := <-cs.sendChan:
		return event, nil
	case <-cs.closeChan:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cs *ChannelSubscriber) Close() error {
	cs.closeOnce.Do(func() { close(cs.closeChan) })
	return nil
}

// MemorySubscriber stores events in memory for testing and debugging.
type MemorySubscriber struct {
	id     string
	events []*StreamEvent
	mu     sync.RWMutex
}

func NewMemorySubscriber(id string) *MemorySubscriber {
	return &MemorySubscriber{id: id}
}

func (ms *MemorySubscriber) OnStreamEvent(event *StreamEvent) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.events = append(ms.events, event)
}

func (ms *MemorySubscriber) Events() []*StreamEvent {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	result := make([]*StreamEvent, len(ms.events))
	copy(result, ms.events)
	return result
}

func (ms *MemorySubscriber) ClearEvents() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.events = ms.events[:0]
}

func (ms *MemorySubscriber) Close() error { return nil }

// DashboardData is one snapshot for live redemption dashboards.
type DashboardData struct {
	RealtimeStats map[string]any `json:"realtime_stats"`
	TopPrograms   map[string]any `json:"top_programs"`
	RecentEvents  []*StreamEvent `json:"recent_events"`
	Timestamp     time.Time      `json:"timestamp"`
}

// DashboardManager keeps a bounded window of recent events and combines
// it with realtime stats and program rankings.
type DashboardManager struct {
	publisher    *StreamPublisher
	metrics      *RedemptionMetrics
	recentEvents []*StreamEvent
	maxEvents    int
	mu           sync.RWMutex
}

func NewDashboardManager(publisher *StreamPublisher, metrics *RedemptionMetrics, maxEvents int) *DashboardManager {
	dm := &DashboardManager{
		publisher:    publisher,
		metrics:      metrics,
		recentEvents: make([]*StreamEvent, 0, maxEvents),
		maxEvents:    maxEvents,
	}
	publisher.Subscribe("dashboard", dm)
	return dm
}

// OnStreamEvent implements StreamSubscriber.
func (dm *DashboardManager) OnStreamEvent(event *StreamEvent) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.recentEvents = append(dm.recentEvents, event)
	if len(dm.recentEvents) > dm.maxEvents {
		dm.recentEvents = dm.recentEvents[1:]
	}
}

// Close implements StreamSubscriber.
func (dm *DashboardManager) Close() error { return nil }

// DashboardData returns the current snapshot.
func (dm *DashboardManager) DashboardData() *DashboardData {
	dm.mu.RLock()
	recentEvents := make([]*StreamEvent, len(dm.recentEvents))
	copy(recentEvents, dm.recentEvents)
	dm.mu.RUnlock()

	return &DashboardData{
		RealtimeStats: dm.publisher.RealtimeStats(),
		TopPrograms:   dm.metrics.Summary(10),
		RecentEvents:  recentEvents,
		Timestamp:     time.Now(),
	}
}

// DashboardDataJSON returns the snapshot as JSON.
func (dm *DashboardManager) DashboardDataJSON() ([]byte, error) {
	return json.Marshal(dm.DashboardData())
}
