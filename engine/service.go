package engine

import (
	"log/slog"
	"time"

	"promokit/core"
)

// Service bundles the engine's collaborators: catalog source, tax engine,
// event bus, logger, and tuning. One Service serves many orders; per-order
// state lives in Reconciler.
type Service struct {
	catalog  CatalogSource
	tax      core.TaxEngine
	bus      *EventBus
	log      *slog.Logger
	rounding int
	weekday  core.WeekdayPromo
	debounce time.Duration
}

// NewService assembles a Service. Catalog and tax collaborators are
// required; the rest have defaults (sync bus, slog default logger, 2
// decimal currency precision, 250ms debounce).
func NewService(catalog CatalogSource, tax core.TaxEngine, opts ...ServiceOption) *Service {
	if catalog == nil || tax == nil {
		panic("NewService requires non-nil catalog and tax engine")
	}
	s := &Service{
		catalog:  catalog,
		tax:      tax,
		bus:      NewEventBus(DispatchSync),
		log:      slog.Default(),
		rounding: 2,
		debounce: 250 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBus replaces the event bus.
func WithBus(b *EventBus) ServiceOption {
	return func(s *Service) {
		if b != nil {
			s.bus = b
		}
	}
}

// WithLogger replaces the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRounding sets the currency precision in decimal places.
func WithRounding(decimals int) ServiceOption {
	return func(s *Service) { s.rounding = decimals }
}

// WithWeekdayPromo sets the independent weekday promotional overlay.
func WithWeekdayPromo(w core.WeekdayPromo) ServiceOption {
	return func(s *Service) { s.weekday = w }
}

// WithDebounce sets the reconciliation debounce window.
func WithDebounce(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// Catalog exposes the catalog collaborator.
func (s *Service) Catalog() CatalogSource { return s.catalog }

// Bus exposes the event bus for UI collaborators to subscribe on.
func (s *Service) Bus() *EventBus { return s.bus }

// Tax exposes the tax engine collaborator.
func (s *Service) Tax() core.TaxEngine { return s.tax }

// Rounding exposes the currency precision.
func (s *Service) Rounding() int { return s.rounding }

// Close shuts the event bus down.
func (s *Service) Close() { s.bus.Close() }
