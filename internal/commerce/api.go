package commerce

import "context"

// API is the commerce backend as seen by the bot. The production
// implementation is Client; tests substitute fakes.
type API interface {
	// Identity.
	VerifyUser(ctx context.Context, phone string) (User, error)
	RegisterUser(ctx context.Context, phone, name string) (User, error)

	// Catalog.
	ListProducts(ctx context.Context, merchantID string) ([]Product, error)
	SearchProducts(ctx context.Context, merchantID, query string) ([]Product, error)

	// Cart. AddToCart returns the item count after the add.
	GetCart(ctx context.Context, phone, merchantID string) (Cart, error)
	AddToCart(ctx context.Context, phone, merchantID, productID string, quantity int) (int, error)
	RemoveFromCart(ctx context.Context, phone, merchantID, productID string) error
	ClearCart(ctx context.Context, phone, merchantID string) error

	// Orders.
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListCustomerOrders(ctx context.Context, phone, merchantID string) ([]Order, error)
	ListMerchantOrders(ctx context.Context, merchantID string) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) (Order, error)

	// Platform administration.
	PendingMerchants(ctx context.Context) ([]Merchant, error)
	GetMerchant(ctx context.Context, merchantID string) (Merchant, error)
	ApproveMerchant(ctx context.Context, merchantID string) error
	RejectMerchant(ctx context.Context, merchantID string) error
	SuspendMerchant(ctx context.Context, merchantID string) error
	SystemAnalytics(ctx context.Context) (Analytics, error)
	SystemAlerts(ctx context.Context) ([]Alert, error)
	SendBroadcast(ctx context.Context, message string) (int, error)
}
