package clore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://api.clore.ai/v1"

	// Upstream enforces 1 request/second; 1.1s leaves headroom
	DefaultRequestSpacing = 1100 * time.Millisecond
)

// Client talks to the Clore marketplace API. All calls go through do,
// which serializes concurrent callers and enforces a minimum spacing
// between successive requests. The client performs no retries; retry
// policy belongs to the polling loops.
type Client struct {
	apiKey  string
	baseURL string
	spacing time.Duration
	http    *resty.Client

	mu          sync.Mutex
	lastRequest time.Time

	// Injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

func NewClient(apiKey string) *Client {
	return NewClientWith(apiKey, DefaultBaseURL, DefaultRequestSpacing)
}

func NewClientWith(apiKey, baseURL string, spacing time.Duration) *Client {
	httpClient := resty.New()
	httpClient.SetTimeout(30 * time.Second)

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		spacing: spacing,
		http:    httpClient,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// do performs one rate-limited request and returns the raw response body.
// Callers issued concurrently queue on the mutex in arrival order; each
// waits out the remainder of the spacing window before dispatch.
func (c *Client) do(ctx context.Context, method, endpoint string, query map[string]string, body interface{}) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastRequest.IsZero() {
		if wait := c.spacing - c.now().Sub(c.lastRequest); wait > 0 {
			c.sleep(wait)
		}
	}
	c.lastRequest = c.now()

	req := c.http.R().
		SetContext(ctx).
		SetHeader("auth", c.apiKey)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body)
	}

	resp, err := req.Execute(method, c.baseURL+"/"+endpoint)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.IsError() {
		return nil, &APIError{
			Kind:    KindTransport,
			Code:    -1,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), resp.Status()),
			Raw:     resp.Body(),
		}
	}

	raw := resp.Body()
	var status statusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, &APIError{Kind: KindTransport, Code: -1, Message: "decode failed: " + err.Error(), Raw: raw}
	}
	if status.Code != 0 {
		msg, ok := errorCodes[status.Code]
		if !ok {
			msg = "Unknown error"
		}
		if status.Code == 6 && status.Error != "" {
			msg = status.Error
		}
		return nil, &APIError{Kind: kindForCode(status.Code), Code: status.Code, Message: msg, Raw: raw}
	}

	return raw, nil
}

// GetWallets returns the wallet balances for the account
func (c *Client) GetWallets(ctx context.Context) ([]Wallet, error) {
	raw, err := c.do(ctx, "GET", "wallets", nil, nil)
	if err != nil {
		return nil, err
	}
	var out walletsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &APIError{Kind: KindTransport, Code: -1, Message: "decode wallets: " + err.Error(), Raw: raw}
	}
	return out.Wallets, nil
}

// GetMarketplace returns all advertised rentable servers
func (c *Client) GetMarketplace(ctx context.Context) ([]Server, error) {
	raw, err := c.do(ctx, "GET", "marketplace", nil, nil)
	if err != nil {
		return nil, err
	}
	var out marketplaceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &APIError{Kind: KindTransport, Code: -1, Message: "decode marketplace: " + err.Error(), Raw: raw}
	}
	return out.Servers, nil
}

// GetMyServers returns the servers the account offers for rent
func (c *Client) GetMyServers(ctx context.Context) ([]Server, error) {
	raw, err := c.do(ctx, "GET", "my_servers", nil, nil)
	if err != nil {
		return nil, err
	}
	var out myServersResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &APIError{Kind: KindTransport, Code: -1, Message: "decode my_servers: " + err.Error(), Raw: raw}
	}
	return out.Servers, nil
}

// GetMyOrders returns the account's rentals. With returnCompleted false
// only currently active orders are included.
func (c *Client) GetMyOrders(ctx context.Context, returnCompleted bool) ([]Order, error) {
	raw, err := c.do(ctx, "GET", "my_orders", map[string]string{
		"return_completed": strconv.FormatBool(returnCompleted),
	}, nil)
	if err != nil {
		return nil, err
	}
	var out myOrdersResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &APIError{Kind: KindTransport, Code: -1, Message: "decode my_orders: " + err.Error(), Raw: raw}
	}
	return out.Orders, nil
}

// GetSpotMarketplace returns the spot bids for one server
func (c *Client) GetSpotMarketplace(ctx context.Context, serverID int) ([]SpotOffer, error) {
	raw, err := c.do(ctx, "GET", "spot_marketplace", map[string]string{
		"market": strconv.Itoa(serverID),
	}, nil)
	if err != nil {
		return nil, err
	}
	var out spotMarketplaceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &APIError{Kind: KindTransport, Code: -1, Message: "decode spot_marketplace: " + err.Error(), Raw: raw}
	}
	return out.Offers, nil
}

// GetPoHBalance returns the proof-of-holding balance
func (c *Client) GetPoHBalance(ctx context.Context) (float64, error) {
	raw, err := c.do(ctx, "GET", "poh_balance", nil, nil)
	if err != nil {
		return 0, err
	}
	var out pohBalanceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, &APIError{Kind: KindTransport, Code: -1, Message: "decode poh_balance: " + err.Error(), Raw: raw}
	}
	return out.Balance, nil
}

// CreateOrder places a rental order. Parameters are validated locally
// before anything is sent; credential fields are clamped to the bounds
// the upstream endpoint enforces.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) error {
	if req.Currency == "" {
		return &ValidationError{Field: "currency", Reason: "required"}
	}
	if req.Image == "" {
		return &ValidationError{Field: "image", Reason: "required"}
	}
	if req.RentingServer <= 0 {
		return &ValidationError{Field: "renting_server", Reason: "must be a positive server id"}
	}
	if req.Type != OrderTypeOnDemand && req.Type != OrderTypeSpot {
		return &ValidationError{Field: "type", Reason: "must be on-demand or spot"}
	}
	if req.Type == OrderTypeSpot && req.SpotPrice == nil {
		return &ValidationError{Field: "spotprice", Reason: "required for spot orders"}
	}
	req.JupyterToken = clamp(req.JupyterToken, 32)
	req.SSHPassword = clamp(req.SSHPassword, 32)
	req.SSHKey = clamp(req.SSHKey, 3072)

	_, err := c.do(ctx, "POST", "create_order", nil, req)
	return err
}

// CancelOrder cancels a rental, with an optional free-text reason
func (c *Client) CancelOrder(ctx context.Context, orderID int, issue string) error {
	payload := map[string]interface{}{"id": orderID}
	if issue != "" {
		payload["issue"] = clamp(issue, 2048)
	}
	_, err := c.do(ctx, "POST", "cancel_order", nil, payload)
	return err
}

// SetServerSettings updates availability and pricing for an owned server
func (c *Client) SetServerSettings(ctx context.Context, name string, availability bool, mrl int64, onDemand, spot, cloreOnDemand, cloreSpot float64) error {
	payload := map[string]interface{}{
		"name":                       name,
		"availability":               availability,
		"mrl":                        mrl,
		"on_demand":                  onDemand,
		"spot":                       spot,
		"CLORE-Blockchain_on_demand": cloreOnDemand,
		"CLORE-Blockchain_spot":      cloreSpot,
	}
	_, err := c.do(ctx, "POST", "set_server_settings", nil, payload)
	return err
}

// SetSpotPrice adjusts the desired price of a spot order
func (c *Client) SetSpotPrice(ctx context.Context, orderID int, desiredPrice float64) error {
	payload := map[string]interface{}{
		"order_id":      orderID,
		"desired_price": desiredPrice,
	}
	_, err := c.do(ctx, "POST", "set_spot_price", nil, payload)
	return err
}

// clamp truncates to max characters, never splitting a rune
func clamp(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}
