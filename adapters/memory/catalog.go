// Package memory is an in-memory CatalogSource for tests, demos, and
// hosts that load the promotional catalog themselves.
package memory

import (
	"context"
	"strings"
	"sync"

	"promokit/core"
	"promokit/engine"
)

// Source holds a seedable catalog plus coupon records keyed by code.
type Source struct {
	mu       sync.RWMutex
	programs []*core.Program
	coupons  map[string]*core.Coupon // by code
	limits   map[core.RewardID]engine.UsageLimitResult
	used     map[string]int
	released map[core.CouponID]int
}

func New() *Source {
	return &Source{
		coupons:  make(map[string]*core.Coupon),
		limits:   make(map[core.RewardID]engine.UsageLimitResult),
		used:     make(map[string]int),
		released: make(map[core.CouponID]int),
	}
}

// SeedPrograms replaces the catalog.
func (s *Source) SeedPrograms(programs ...*core.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs = programs
}

// SeedCoupon registers a redeemable code.
func (s *Source) SeedCoupon(code string, c *core.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.Code = code
	s.coupons[code] = &cp
}

// SeedUsageLimit sets the usage-limit answer for a reward.
func (s *Source) SeedUsageLimit(reward core.RewardID, res engine.UsageLimitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[reward] = res
}

// FetchPrograms returns the programs whose rules or rewards touch the
// given products, merged with the product-agnostic ones and deduplicated.
func (s *Source) FetchPrograms(_ context.Context, productIDs []core.ProductID) ([]*core.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[core.ProductID]struct{}, len(productIDs))
	for _, p := range productIDs {
		wanted[p] = struct{}{}
	}
	var perProduct, general []*core.Program
	for _, p := range s.programs {
		if programIsGeneral(p) {
			general = append(general, p)
			continue
		}
		if programTouches(p, wanted) {
			perProduct = append(perProduct, p)
		}
	}
	return core.MergePrograms(perProduct, general), nil
}

func programIsGeneral(p *core.Program) bool {
	for _, r := range p.Rules {
		if len(r.ProductIDs) > 0 {
			return false
		}
	}
	return true
}

func programTouches(p *core.Program, wanted map[core.ProductID]struct{}) bool {
	for _, r := range p.Rules {
		for _, id := range r.ProductIDs {
			if _, ok := wanted[id]; ok {
				return true
			}
		}
	}
	return false
}

func (s *Source) RedeemCode(_ context.Context, req engine.RedeemRequest) (engine.RedeemResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code := strings.TrimSpace(req.Code)
	c, ok := s.coupons[code]
	if !ok {
		return engine.RedeemResult{}, engine.ErrCodeInvalid
	}
	if c.Expired(req.OrderDate) {
		return engine.RedeemResult{}, engine.ErrCodeInvalid
	}
	if c.PartnerID != "" && c.PartnerID != req.PartnerID {
		return engine.RedeemResult{}, engine.ErrCodeInvalid
	}
	return engine.RedeemResult{
		CouponID:   c.ID,
		ProgramID:  c.ProgramID,
		PartnerID:  c.PartnerID,
		Points:     c.Points,
		Expiration: c.Expiration,
	}, nil
}

func (s *Source) UsageLimit(_ context.Context, req engine.UsageLimitRequest) (engine.UsageLimitResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if res, ok := s.limits[req.RewardID]; ok {
		return res, nil
	}
	return engine.UsageLimitResult{Unlimited: true}, nil
}

func (s *Source) MarkCouponUsed(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[code]++
	return nil
}

func (s *Source) ReleaseCoupon(_ context.Context, id core.CouponID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released[id]++
	return nil
}

// UsedCount reports how often a code was marked used.
func (s *Source) UsedCount(code string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used[code]
}

// ReleasedCount reports how often a coupon was released.
func (s *Source) ReleasedCount(id core.CouponID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.released[id]
}

var _ engine.CatalogSource = (*Source)(nil)
