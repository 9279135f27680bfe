package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	wsadapter "promokit/adapters/websocket"
	"promokit/core"
	"promokit/engine"
	"promokit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// orderSession pairs an order with its reconciler. The mutex serializes
// HTTP mutations of one order; different orders proceed in parallel.
type orderSession struct {
	mu    sync.Mutex
	order *core.Order
	rec   *engine.Reconciler
}

type api struct {
	svc    *engine.Service
	mu     sync.RWMutex
	orders map[string]*orderSession
}

// NewMux builds an http.Handler exposing the promotion engine as a REST
// API plus a WebSocket event stream.
// Routes:
//   - POST   {prefix}/orders
//   - GET    {prefix}/orders/{id}
//   - POST   {prefix}/orders/{id}/lines
//   - DELETE {prefix}/orders/{id}/lines/{lineID}
//   - POST   {prefix}/orders/{id}/codes
//   - POST   {prefix}/orders/{id}/rewards/{rewardID}
//   - GET    {prefix}/healthz
//   - WS     {prefix}/ws
func NewMux(svc *engine.Service, hub *realtime.Hub, opts Options) http.Handler {
	a := &api{svc: svc, orders: make(map[string]*orderSession)}
	mux := http.NewServeMux()

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), a.healthCheck)

	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/orders"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		a.createOrder(w, r)
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/orders/"), func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, opts.PathPrefix)
		parts := split(path, '/')
		if len(parts) < 2 {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		session := a.session(parts[1])
		if session == nil {
			writeError(w, http.StatusNotFound, "order_not_found", "unknown order", nil)
			return
		}
		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			a.getOrder(w, session)
		case len(parts) == 3 && parts[2] == "lines" && r.Method == http.MethodPost:
			a.addLine(w, r, session)
		case len(parts) == 4 && parts[2] == "lines" && r.Method == http.MethodDelete:
			a.removeLine(w, r, session, core.LineID(parts[3]))
		case len(parts) == 3 && parts[2] == "codes" && r.Method == http.MethodPost:
			a.enterCode(w, r, session)
		case len(parts) == 4 && parts[2] == "rewards" && r.Method == http.MethodPost:
			a.selectReward(w, r, session, core.RewardID(parts[3]))
		default:
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		}
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// Request and response payloads.

type lineRequest struct {
	ID        string   `json:"id"`
	ProductID string   `json:"product_id"`
	Qty       float64  `json:"qty"`
	UnitPrice float64  `json:"unit_price"`
	TaxIDs    []string `json:"tax_ids,omitempty"`
}

type orderRequest struct {
	ID          string        `json:"id"`
	PricelistID string        `json:"pricelist_id"`
	PartnerID   string        `json:"partner_id"`
	Date        *time.Time    `json:"date,omitempty"`
	Lines       []lineRequest `json:"lines"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type couponView struct {
	ID        core.CouponID  `json:"id"`
	ProgramID core.ProgramID `json:"program_id"`
	Code      string         `json:"code,omitempty"`
	Points    float64        `json:"points"`
}

type orderView struct {
	ID           string            `json:"id"`
	PartnerID    core.PartnerID    `json:"partner_id"`
	PricelistID  string            `json:"pricelist_id"`
	Date         time.Time         `json:"date"`
	State        string            `json:"state"`
	Lines        []*core.OrderLine `json:"lines"`
	Coupons      []couponView      `json:"coupons"`
	Total        float64           `json:"total"`
	TotalUntaxed float64           `json:"total_untaxed"`
}

// Handlers.

func (a *api) session(id string) *orderSession {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.orders[id]
}

func (a *api) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed order payload", nil)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_order", "order id is required", nil)
		return
	}

	order := core.NewOrder(req.ID, req.PricelistID)
	order.PartnerID = core.PartnerID(req.PartnerID)
	if req.Date != nil {
		order.Date = req.Date.UTC()
	}
	for _, lr := range req.Lines {
		order.AddLine(newLine(lr))
	}

	session := &orderSession{order: order, rec: a.svc.NewReconciler(order)}

	a.mu.Lock()
	if _, exists := a.orders[req.ID]; exists {
		a.mu.Unlock()
		writeError(w, http.StatusConflict, "order_exists", "order id already registered", nil)
		return
	}
	a.orders[req.ID] = session
	a.mu.Unlock()

	session.mu.Lock()
	defer session.mu.Unlock()
	// A draft without a customer is accepted as-is; rewards attach once
	// the partner is known.
	if order.PartnerID != "" {
		if err := session.rec.ReconcileNow(r.Context()); err != nil {
			writeReconcileError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, a.view(session))
}

func (a *api) getOrder(w http.ResponseWriter, session *orderSession) {
	session.mu.Lock()
	defer session.mu.Unlock()
	writeJSON(w, a.view(session))
}

func (a *api) addLine(w http.ResponseWriter, r *http.Request, session *orderSession) {
	var lr lineRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed line payload", nil)
		return
	}
	if lr.ID == "" || lr.ProductID == "" {
		writeError(w, http.StatusBadRequest, "invalid_line", "line id and product_id are required", nil)
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.order.AddLine(newLine(lr))
	if err := session.rec.ReconcileNow(r.Context()); err != nil {
		writeReconcileError(w, err)
		return
	}
	writeJSON(w, a.view(session))
}

func (a *api) removeLine(w http.ResponseWriter, r *http.Request, session *orderSession, lineID core.LineID) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if !session.order.RemoveLine(lineID) {
		writeError(w, http.StatusNotFound, "line_not_found", "unknown line", nil)
		return
	}
	if err := session.rec.ReconcileNow(r.Context()); err != nil {
		writeReconcileError(w, err)
		return
	}
	writeJSON(w, a.view(session))
}

func (a *api) enterCode(w http.ResponseWriter, r *http.Request, session *orderSession) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "a code is required", nil)
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if err := session.rec.EnterCode(r.Context(), req.Code); err != nil {
		switch {
		case errors.Is(err, engine.ErrNoPartner):
			writeError(w, http.StatusUnprocessableEntity, "no_partner", err.Error(), nil)
		case errors.Is(err, engine.ErrCodeAlreadyApplied):
			writeError(w, http.StatusConflict, "code_applied", err.Error(), nil)
		case errors.Is(err, engine.ErrCodeInvalid):
			writeError(w, http.StatusBadRequest, "invalid_code", err.Error(), nil)
		default:
			writeError(w, http.StatusBadGateway, "redeem_failed", err.Error(), nil)
		}
		return
	}
	// EnterCode schedules a debounced pass; run it now so the response
	// reflects the redeemed coupon.
	session.rec.CancelPending()
	if err := session.rec.ReconcileNow(r.Context()); err != nil {
		writeReconcileError(w, err)
		return
	}
	writeJSON(w, a.view(session))
}

func (a *api) selectReward(w http.ResponseWriter, r *http.Request, session *orderSession, rewardID core.RewardID) {
	if rewardID == "" {
		writeError(w, http.StatusBadRequest, "invalid_reward", "reward id is required", nil)
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.order.SelectedRewards[rewardID] = true
	if err := session.rec.ReconcileNow(r.Context()); err != nil {
		writeReconcileError(w, err)
		return
	}
	writeJSON(w, a.view(session))
}

// healthCheck probes the catalog collaborator with an unscoped fetch.
func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	_, err := a.svc.Catalog().FetchPrograms(r.Context(), nil)

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"catalog": "ok",
		},
	}
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["catalog"] = "failed"
	} else {
		w.WriteHeader(http.StatusOK)
	}
	writeJSON(w, status)
}

func (a *api) view(session *orderSession) orderView {
	order := session.order
	coupons := make([]couponView, 0, len(order.Coupons))
	for _, c := range order.Coupons {
		coupons = append(coupons, couponView{
			ID: c.ID, ProgramID: c.ProgramID, Code: c.Code, Points: c.Points,
		})
	}
	return orderView{
		ID:           order.ID,
		PartnerID:    order.PartnerID,
		PricelistID:  order.PricelistID,
		Date:         order.Date,
		State:        session.rec.State().String(),
		Lines:        order.Lines,
		Coupons:      coupons,
		Total:        order.TotalWithTax(a.svc.Tax(), a.svc.Rounding()),
		TotalUntaxed: order.TotalWithoutTax(a.svc.Tax(), a.svc.Rounding()),
	}
}

func newLine(lr lineRequest) *core.OrderLine {
	taxIDs := make([]core.TaxID, 0, len(lr.TaxIDs))
	for _, id := range lr.TaxIDs {
		taxIDs = append(taxIDs, core.TaxID(id))
	}
	return &core.OrderLine{
		ID:        core.LineID(lr.ID),
		ProductID: core.ProductID(lr.ProductID),
		Qty:       lr.Qty,
		UnitPrice: lr.UnitPrice,
		TaxIDs:    taxIDs,
	}
}

func writeReconcileError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNoPartner) {
		writeError(w, http.StatusUnprocessableEntity, "no_partner", err.Error(), nil)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
}

// Helpers.

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func split(p string, sep rune) []string {
	var parts []string
	cur := make([]rune, 0, len(p))
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for _, r := range p {
		if r == sep {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
