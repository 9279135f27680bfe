package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"promokit/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the promokit HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// CreateOrder registers an order with the engine and returns it with any
// rewards already applied.
func (c *Client) CreateOrder(ctx context.Context, req NewOrderRequest) (Order, error) {
	if strings.TrimSpace(req.ID) == "" {
		return Order{}, ErrEmptyOrderID
	}
	return c.doOrder(ctx, http.MethodPost, c.baseURL+"/orders", req)
}

// GetOrder fetches the current state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return Order{}, ErrEmptyOrderID
	}
	u := fmt.Sprintf("%s/orders/%s", c.baseURL, url.PathEscape(orderID))
	return c.doOrder(ctx, http.MethodGet, u, nil)
}

// AddLine appends a product line and returns the reconciled order.
func (c *Client) AddLine(ctx context.Context, orderID string, line Line) (Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return Order{}, ErrEmptyOrderID
	}
	u := fmt.Sprintf("%s/orders/%s/lines", c.baseURL, url.PathEscape(orderID))
	return c.doOrder(ctx, http.MethodPost, u, line)
}

// RemoveLine deletes a line and returns the reconciled order.
func (c *Client) RemoveLine(ctx context.Context, orderID, lineID string) (Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return Order{}, ErrEmptyOrderID
	}
	u := fmt.Sprintf("%s/orders/%s/lines/%s", c.baseURL, url.PathEscape(orderID), url.PathEscape(lineID))
	return c.doOrder(ctx, http.MethodDelete, u, nil)
}

// EnterCode redeems a promotional code against the order.
func (c *Client) EnterCode(ctx context.Context, orderID, code string) (Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return Order{}, ErrEmptyOrderID
	}
	u := fmt.Sprintf("%s/orders/%s/codes", c.baseURL, url.PathEscape(orderID))
	return c.doOrder(ctx, http.MethodPost, u, map[string]string{"code": code})
}

// SelectReward marks a reward as explicitly picked so it takes
// distribution priority.
func (c *Client) SelectReward(ctx context.Context, orderID, rewardID string) (Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return Order{}, ErrEmptyOrderID
	}
	u := fmt.Sprintf("%s/orders/%s/rewards/%s", c.baseURL, url.PathEscape(orderID), url.PathEscape(rewardID))
	return c.doOrder(ctx, http.MethodPost, u, nil)
}

// Health probes /healthz and returns status plus the catalog check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) doOrder(ctx context.Context, method, u string, payload any) (Order, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Order{}, err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Order{}, err
	}
	defer resp.Body.Close()

	var order Order
	if err := decodeJSON(resp, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
