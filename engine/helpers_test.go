package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"promokit/core"
	"promokit/tax"
)

// stubCatalog is an in-package CatalogSource with call counters, so tests
// can assert which external calls a pass makes.
type stubCatalog struct {
	mu         sync.Mutex
	programs   []*core.Program
	fetchErr   error
	fetchCalls int
	fetchHook  func()

	redeem   func(RedeemRequest) (RedeemResult, error)
	limits   map[core.RewardID]UsageLimitResult
	limitErr error

	used     map[string]int
	released map[core.CouponID]int
}

func newStubCatalog(programs ...*core.Program) *stubCatalog {
	return &stubCatalog{
		programs: programs,
		limits:   make(map[core.RewardID]UsageLimitResult),
		used:     make(map[string]int),
		released: make(map[core.CouponID]int),
	}
}

func (s *stubCatalog) FetchPrograms(_ context.Context, _ []core.ProductID) ([]*core.Program, error) {
	s.mu.Lock()
	s.fetchCalls++
	hook := s.fetchHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.programs, nil
}

func (s *stubCatalog) RedeemCode(_ context.Context, req RedeemRequest) (RedeemResult, error) {
	if s.redeem != nil {
		return s.redeem(req)
	}
	return RedeemResult{}, ErrCodeInvalid
}

func (s *stubCatalog) UsageLimit(_ context.Context, req UsageLimitRequest) (UsageLimitResult, error) {
	if s.limitErr != nil {
		return UsageLimitResult{}, s.limitErr
	}
	if res, ok := s.limits[req.RewardID]; ok {
		return res, nil
	}
	return UsageLimitResult{Unlimited: true}, nil
}

func (s *stubCatalog) MarkCouponUsed(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[code]++
	return nil
}

func (s *stubCatalog) ReleaseCoupon(_ context.Context, id core.CouponID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released[id]++
	return nil
}

func (s *stubCatalog) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

func newTestService(t *testing.T, catalog CatalogSource, opts ...ServiceOption) *Service {
	t.Helper()
	if catalog == nil {
		catalog = newStubCatalog()
	}
	opts = append([]ServiceOption{WithDebounce(time.Millisecond)}, opts...)
	svc := NewService(catalog, tax.NewEngine(), opts...)
	t.Cleanup(svc.Close)
	return svc
}

// collectEvents subscribes a recorder for one event type on the service bus.
func collectEvents(svc *Service, typ core.EventType) *eventRecorder {
	rec := &eventRecorder{}
	svc.Bus().Subscribe(typ, func(_ context.Context, e core.Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, e)
		rec.mu.Unlock()
	})
	return rec
}

type eventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// discountProgram builds a single-rule, single-reward percent program used
// across the engine tests.
func discountProgram(id core.ProgramID, required, percent float64) *core.Program {
	return &core.Program{
		ID:            id,
		Name:          string(id),
		Trigger:       core.TriggerAuto,
		Applicability: core.ApplyBoth,
		Rules: []*core.Rule{{
			ID:          core.RuleID(string(id) + "-rule"),
			ProgramID:   id,
			Mode:        core.PointsPerMoney,
			PointAmount: 1,
		}},
		Rewards: []*core.Reward{{
			ID:             core.RewardID(string(id) + "-reward"),
			ProgramID:      id,
			Kind:           core.RewardDiscount,
			RequiredPoints: required,
			IsMain:         true,
			Discount: &core.DiscountReward{
				Applicability: core.DiscountOnOrder,
				Mode:          core.DiscountPercent,
				Value:         percent,
			},
		}},
	}
}
