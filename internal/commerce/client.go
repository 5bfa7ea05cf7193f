package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the commerce backend over HTTP. It implements API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient creates a Client for the backend at baseURL. apiKey may be empty
// when the backend does not require one.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// apiResponse is the backend's uniform success envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// do runs one request and decodes the success envelope into out. A non-2xx
// status or success=false becomes an error carrying the backend's message.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("commerce: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("commerce: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("commerce: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("commerce: read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("commerce: %s %s: status %d, undecodable body", method, path, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("commerce: %s %s: %s", method, path, msg)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("commerce: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) VerifyUser(ctx context.Context, phone string) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(phone), nil, &u)
	return u, err
}

func (c *Client) RegisterUser(ctx context.Context, phone, name string) (User, error) {
	var u User
	err := c.do(ctx, http.MethodPost, "/api/users", map[string]string{
		"phone": phone,
		"name":  name,
	}, &u)
	return u, err
}

func (c *Client) ListProducts(ctx context.Context, merchantID string) ([]Product, error) {
	var products []Product
	err := c.do(ctx, http.MethodGet, "/api/merchants/"+url.PathEscape(merchantID)+"/products", nil, &products)
	return products, err
}

func (c *Client) SearchProducts(ctx context.Context, merchantID, query string) ([]Product, error) {
	var products []Product
	path := "/api/merchants/" + url.PathEscape(merchantID) + "/products?q=" + url.QueryEscape(query)
	err := c.do(ctx, http.MethodGet, path, nil, &products)
	return products, err
}

func (c *Client) GetCart(ctx context.Context, phone, merchantID string) (Cart, error) {
	var cart Cart
	path := "/api/carts/" + url.PathEscape(phone) + "?merchant_id=" + url.QueryEscape(merchantID)
	err := c.do(ctx, http.MethodGet, path, nil, &cart)
	return cart, err
}

func (c *Client) AddToCart(ctx context.Context, phone, merchantID, productID string, quantity int) (int, error) {
	var result struct {
		ItemsCount int `json:"items_count"`
	}
	err := c.do(ctx, http.MethodPost, "/api/carts/"+url.PathEscape(phone)+"/items", map[string]interface{}{
		"merchant_id": merchantID,
		"product_id":  productID,
		"quantity":    quantity,
	}, &result)
	return result.ItemsCount, err
}

func (c *Client) RemoveFromCart(ctx context.Context, phone, merchantID, productID string) error {
	path := "/api/carts/" + url.PathEscape(phone) + "/items/" + url.PathEscape(productID) +
		"?merchant_id=" + url.QueryEscape(merchantID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) ClearCart(ctx context.Context, phone, merchantID string) error {
	path := "/api/carts/" + url.PathEscape(phone) + "?merchant_id=" + url.QueryEscape(merchantID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	var order Order
	err := c.do(ctx, http.MethodPost, "/api/orders", req, &order)
	return order, err
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var order Order
	err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(orderID), nil, &order)
	return order, err
}

func (c *Client) ListCustomerOrders(ctx context.Context, phone, merchantID string) ([]Order, error) {
	var orders []Order
	path := "/api/orders?customer=" + url.QueryEscape(phone) + "&merchant_id=" + url.QueryEscape(merchantID)
	err := c.do(ctx, http.MethodGet, path, nil, &orders)
	return orders, err
}

func (c *Client) ListMerchantOrders(ctx context.Context, merchantID string) ([]Order, error) {
	var orders []Order
	err := c.do(ctx, http.MethodGet, "/api/orders?merchant_id="+url.QueryEscape(merchantID), nil, &orders)
	return orders, err
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, status string) (Order, error) {
	var order Order
	err := c.do(ctx, http.MethodPatch, "/api/orders/"+url.PathEscape(orderID), map[string]string{
		"status": status,
	}, &order)
	return order, err
}

func (c *Client) PendingMerchants(ctx context.Context) ([]Merchant, error) {
	var merchants []Merchant
	err := c.do(ctx, http.MethodGet, "/api/admin/merchants?status=pending", nil, &merchants)
	return merchants, err
}

func (c *Client) GetMerchant(ctx context.Context, merchantID string) (Merchant, error) {
	var m Merchant
	err := c.do(ctx, http.MethodGet, "/api/merchants/"+url.PathEscape(merchantID), nil, &m)
	return m, err
}

func (c *Client) ApproveMerchant(ctx context.Context, merchantID string) error {
	return c.do(ctx, http.MethodPost, "/api/admin/merchants/"+url.PathEscape(merchantID)+"/approve", nil, nil)
}

func (c *Client) RejectMerchant(ctx context.Context, merchantID string) error {
	return c.do(ctx, http.MethodPost, "/api/admin/merchants/"+url.PathEscape(merchantID)+"/reject", nil, nil)
}

func (c *Client) SuspendMerchant(ctx context.Context, merchantID string) error {
	return c.do(ctx, http.MethodPost, "/api/admin/merchants/"+url.PathEscape(merchantID)+"/suspend", nil, nil)
}

func (c *Client) SystemAnalytics(ctx context.Context) (Analytics, error) {
	var a Analytics
	err := c.do(ctx, http.MethodGet, "/api/admin/analytics", nil, &a)
	return a, err
}

func (c *Client) SystemAlerts(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	err := c.do(ctx, http.MethodGet, "/api/admin/alerts", nil, &alerts)
	return alerts, err
}

func (c *Client) SendBroadcast(ctx context.Context, message string) (int, error) {
	var result struct {
		Recipients int `json:"recipients"`
	}
	err := c.do(ctx, http.MethodPost, "/api/admin/broadcast", map[string]string{
		"message": message,
	}, &result)
	return result.Recipients, err
}

var _ API = (*Client)(nil)
