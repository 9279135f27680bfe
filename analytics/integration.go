package analytics

import (
	"context"
	"log/slog"
	"time"

	"promokit/core"
	"promokit/engine"
)

// Service bundles the full analytics pipeline: metrics, periodic
// aggregation, live streaming, dashboard snapshots and report export.
type Service struct {
	metrics    *RedemptionMetrics
	aggregator *AggregationEngine
	publisher  *StreamPublisher
	dashboard  *DashboardManager
	exporter   *ExportManager
	log        *slog.Logger

	exportInterval time.Duration
	unsubscribes   []func()
}

// Config tunes the analytics pipeline.
type Config struct {
	AggregationInterval time.Duration    `json:"aggregation_interval"`
	ExportInterval      time.Duration    `json:"export_interval"`
	MaxRecentEvents     int              `json:"max_recent_events"`
	Exporters           []ExporterConfig `json:"exporters"`
}

// ExporterConfig describes one export sink.
type ExporterConfig struct {
	Type      string `json:"type"` // "http", "file" or "log"
	Endpoint  string `json:"endpoint,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	Path      string `json:"path,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// NewService wires a pipeline with sensible defaults: hourly
// aggregation, six-hourly export to the structured log, and a hundred
// recent events for the dashboard.
func NewService() *Service {
	return NewServiceWithConfig(Config{
		AggregationInterval: time.Hour,
		ExportInterval:      6 * time.Hour,
		MaxRecentEvents:     100,
	})
}

// NewServiceWithConfig wires a pipeline from explicit configuration.
func NewServiceWithConfig(cfg Config) *Service {
	if cfg.AggregationInterval <= 0 {
		cfg.AggregationInterval = time.Hour
	}
	if cfg.ExportInterval <= 0 {
		cfg.ExportInterval = 6 * time.Hour
	}
	if cfg.MaxRecentEvents <= 0 {
		cfg.MaxRecentEvents = 100
	}

	metrics := NewRedemptionMetrics()
	publisher := NewStreamPublisher(metrics)

	exporters := make([]Exporter, 0, len(cfg.Exporters)+1)
	for _, ec := range cfg.Exporters {
		switch ec.Type {
		case "http":
			exporters = append(exporters, NewHTTPExporter(ec.Endpoint, ec.APIKey, ec.BatchSize))
		case "file":
			exporters = append(exporters, NewFileExporter(ec.Path))
		case "log":
			exporters = append(exporters, NewLogExporter(nil))
		}
	}
	if len(exporters) == 0 {
		exporters = append(exporters, NewLogExporter(nil))
	}

	return &Service{
		metrics:        metrics,
		aggregator:     NewAggregationEngine(metrics, cfg.AggregationInterval),
		publisher:      publisher,
		dashboard:      NewDashboardManager(publisher, metrics, cfg.MaxRecentEvents),
		exporter:       NewExportManager(exporters...),
		log:            slog.Default(),
		exportInterval: cfg.ExportInterval,
	}
}

// Hook returns the entry point to register with an event source; it
// feeds both the metrics and the live stream.
func (s *Service) Hook() Hook {
	return s.publisher
}

// Attach subscribes the pipeline to every engine event type on the bus.
// Detach reverses it.
func (s *Service) Attach(bus *engine.EventBus) {
	hook := s.Hook()
	for _, typ := range []core.EventType{
		core.EventRewardApplied,
		core.EventRewardSkipped,
		core.EventMinimumNotMet,
		core.EventCouponRedeemed,
		core.EventCouponReleased,
		core.EventValidationFailed,
		core.EventReconcileCompleted,
	} {
		s.unsubscribes = append(s.unsubscribes, bus.Subscribe(typ, func(_ context.Context, e core.Event) {
			hook.OnEvent(e)
		}))
	}
}

// Detach removes the bus subscriptions added by Attach.
func (s *Service) Detach() {
	for _, unsub := range s.unsubscribes {
		unsub()
	}
	s.unsubscribes = nil
}

// Start runs background aggregation and export until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go s.aggregator.Start(ctx)
	go s.runPeriodicExport(ctx)
}

func (s *Service) runPeriodicExport(ctx context.Context) {
	ticker := time.NewTicker(s.exportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			daily := s.aggregator.GetAllAggregatedData(PeriodDaily)
			if err := s.exporter.ExportData(ctx, daily); err != nil {
				s.log.Warn("report export failed", "error", err)
			}
		}
	}
}

// Metrics exposes the underlying counters.
func (s *Service) Metrics() *RedemptionMetrics { return s.metrics }

// RealtimeStats returns the rolling 24h statistics.
func (s *Service) RealtimeStats() map[string]any {
	return s.publisher.RealtimeStats()
}

// DashboardData returns the current dashboard snapshot.
func (s *Service) DashboardData() *DashboardData {
	return s.dashboard.DashboardData()
}

// ForceAggregation triggers an immediate aggregation pass.
func (s *Service) ForceAggregation() error {
	return s.aggregator.AggregateNow()
}

// SubscribeToStream adds a live event subscriber.
func (s *Service) SubscribeToStream(id string, subscriber StreamSubscriber) {
	s.publisher.Subscribe(id, subscriber)
}

// UnsubscribeFromStream removes a live event subscriber.
func (s *Service) UnsubscribeFromStream(id string) {
	s.publisher.Unsubscribe(id)
}
