// Package promo is the top-level builder for the reward allocation
// engine. It assembles an engine.Service from functional options and
// bridges engine events to an optional realtime hub for the host UI.
package promo

import (
	"context"
	"log/slog"
	"time"

	"promokit/adapters/memory"
	"promokit/core"
	"promokit/engine"
	"promokit/realtime"
	"promokit/tax"
)

// Option configures the engine builder.
type Option func(*config)

type config struct {
	catalog  engine.CatalogSource
	tax      core.TaxEngine
	mode     engine.DispatchMode
	logger   *slog.Logger
	hub      *realtime.Hub
	weekday  core.WeekdayPromo
	debounce time.Duration
	rounding int
}

// WithCatalog sets the catalog persistence collaborator.
func WithCatalog(c engine.CatalogSource) Option { return func(cfg *config) { cfg.catalog = c } }

// WithTaxEngine sets the tax computation collaborator.
func WithTaxEngine(t core.TaxEngine) Option { return func(cfg *config) { cfg.tax = t } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(cfg *config) { cfg.mode = m } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(cfg *config) { cfg.logger = l } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(cfg *config) { cfg.hub = h } }

// WithWeekdayPromo sets the independent weekday promotional overlay.
func WithWeekdayPromo(w core.WeekdayPromo) Option { return func(cfg *config) { cfg.weekday = w } }

// WithDebounce sets the reconciliation debounce window.
func WithDebounce(d time.Duration) Option { return func(cfg *config) { cfg.debounce = d } }

// WithRounding sets the currency precision in decimal places.
func WithRounding(decimals int) Option { return func(cfg *config) { cfg.rounding = decimals } }

// New builds a configured engine.Service. If not provided, defaults are
// used:
//   - catalog: empty in-memory source
//   - tax: empty tax catalog (no taxes)
//   - dispatch: sync
func New(opts ...Option) *engine.Service {
	cfg := &config{mode: engine.DispatchSync, rounding: 2}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.catalog == nil {
		cfg.catalog = memory.New()
	}
	if cfg.tax == nil {
		cfg.tax = tax.NewEngine()
	}

	bus := engine.NewEventBus(cfg.mode)
	sopts := []engine.ServiceOption{
		engine.WithBus(bus),
		engine.WithWeekdayPromo(cfg.weekday),
		engine.WithRounding(cfg.rounding),
	}
	if cfg.logger != nil {
		sopts = append(sopts, engine.WithLogger(cfg.logger))
	}
	if cfg.debounce > 0 {
		sopts = append(sopts, engine.WithDebounce(cfg.debounce))
	}
	svc := engine.NewService(cfg.catalog, cfg.tax, sopts...)

	if cfg.hub != nil {
		// Bridge all engine events to realtime
		for _, typ := range []core.EventType{
			core.EventRewardApplied,
			core.EventRewardSkipped,
			core.EventMinimumNotMet,
			core.EventCouponRedeemed,
			core.EventCouponReleased,
			core.EventValidationFailed,
			core.EventReconcileCompleted,
		} {
			bus.Subscribe(typ, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		}
	}
	return svc
}
