// Package commerce defines the platform's commerce entities and the API
// surface the bot uses to read and mutate them.
package commerce

import "time"

// Product is one sellable item in a merchant's catalog.
type Product struct {
	ID          string  `json:"id"`
	MerchantID  string  `json:"merchant_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category,omitempty"`
	InStock     bool    `json:"in_stock"`
}

// CartItem is one product line in a customer's cart.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Cart is a customer's current cart for one merchant.
type Cart struct {
	Phone      string     `json:"phone"`
	MerchantID string     `json:"merchant_id"`
	Items      []CartItem `json:"items"`
	Total      float64    `json:"total"`
}

// OrderItem is one product line captured on an order at checkout time.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Order statuses move forward through this lifecycle; "cancelled" may be
// entered from any non-terminal state.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderPreparing = "preparing"
	OrderReady     = "ready"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// Order is a placed order.
type Order struct {
	ID            string      `json:"id"`
	MerchantID    string      `json:"merchant_id"`
	CustomerPhone string      `json:"customer_phone"`
	Items         []OrderItem `json:"items"`
	TotalAmount   float64     `json:"total_amount"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderRequest is the checkout payload: the cart lines are copied verbatim,
// never re-priced.
type OrderRequest struct {
	MerchantID    string      `json:"merchant_id"`
	CustomerPhone string      `json:"customer_phone"`
	Items         []OrderItem `json:"items"`
	TotalAmount   float64     `json:"total_amount"`
	Status        string      `json:"status"`
}

// User roles recognised by the bot.
const (
	RoleCustomer   = "customer"
	RoleMerchant   = "merchant"
	RoleSuperAdmin = "super_admin"
)

// User is a chat-side identity resolved from a phone number.
type User struct {
	Phone      string `json:"phone"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role"`
	MerchantID string `json:"merchant_id,omitempty"`
}

// Merchant is a tenant on the platform.
type Merchant struct {
	ID           string    `json:"id"`
	BusinessName string    `json:"business_name"`
	Phone        string    `json:"phone"`
	Status       string    `json:"status"` // pending, approved, rejected, suspended
	CreatedAt    time.Time `json:"created_at"`
}

// Analytics is the platform-wide snapshot shown to super admins.
type Analytics struct {
	TotalMerchants  int     `json:"total_merchants"`
	ActiveMerchants int     `json:"active_merchants"`
	TotalOrders     int     `json:"total_orders"`
	TotalRevenue    float64 `json:"total_revenue"`
	OrdersToday     int     `json:"orders_today"`
	RevenueToday    float64 `json:"revenue_today"`
}

// Alert is a system health warning surfaced to super admins.
type Alert struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
