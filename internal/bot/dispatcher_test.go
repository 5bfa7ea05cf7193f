package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/musika/commerce/internal/commerce"
	"github.com/musika/commerce/internal/session"
)

// fakeAPI implements commerce.API in memory for dispatcher tests.
type fakeAPI struct {
	users    map[string]commerce.User
	products []commerce.Product
	carts    map[string]*commerce.Cart

	createOrderErr error
	createdOrders  []commerce.OrderRequest
	addCalls       []addCall
	statusUpdates  []string

	merchants  []commerce.Merchant
	approved   []string
	broadcasts []string
}

type addCall struct {
	productID string
	quantity  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users: map[string]commerce.User{},
		carts: map[string]*commerce.Cart{},
	}
}

func (f *fakeAPI) VerifyUser(ctx context.Context, phone string) (commerce.User, error) {
	u, ok := f.users[phone]
	if !ok {
		return commerce.User{}, errors.New("not found")
	}
	return u, nil
}

func (f *fakeAPI) RegisterUser(ctx context.Context, phone, name string) (commerce.User, error) {
	u := commerce.User{Phone: phone, Name: name, Role: commerce.RoleCustomer}
	f.users[phone] = u
	return u, nil
}

func (f *fakeAPI) ListProducts(ctx context.Context, merchantID string) ([]commerce.Product, error) {
	return f.products, nil
}

func (f *fakeAPI) SearchProducts(ctx context.Context, merchantID, query string) ([]commerce.Product, error) {
	var out []commerce.Product
	q := strings.ToLower(query)
	for _, p := range f.products {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetCart(ctx context.Context, phone, merchantID string) (commerce.Cart, error) {
	if c, ok := f.carts[phone]; ok {
		return *c, nil
	}
	return commerce.Cart{}, nil
}

func (f *fakeAPI) AddToCart(ctx context.Context, phone, merchantID, productID string, quantity int) (int, error) {
	f.addCalls = append(f.addCalls, addCall{productID: productID, quantity: quantity})
	cart, ok := f.carts[phone]
	if !ok {
		cart = &commerce.Cart{Phone: phone, MerchantID: merchantID}
		f.carts[phone] = cart
	}
	for _, p := range f.products {
		if p.ID == productID {
			cart.Items = append(cart.Items, commerce.CartItem{
				ProductID: p.ID, Name: p.Name, Quantity: quantity, Price: p.Price,
			})
			cart.Total += float64(quantity) * p.Price
		}
	}
	return len(cart.Items), nil
}

func (f *fakeAPI) RemoveFromCart(ctx context.Context, phone, merchantID, productID string) error {
	return nil
}

func (f *fakeAPI) ClearCart(ctx context.Context, phone, merchantID string) error {
	delete(f.carts, phone)
	return nil
}

func (f *fakeAPI) CreateOrder(ctx context.Context, req commerce.OrderRequest) (commerce.Order, error) {
	if f.createOrderErr != nil {
		return commerce.Order{}, f.createOrderErr
	}
	f.createdOrders = append(f.createdOrders, req)
	return commerce.Order{
		ID:          "ord_1",
		MerchantID:  req.MerchantID,
		Items:       req.Items,
		TotalAmount: req.TotalAmount,
		Status:      req.Status,
		CreatedAt:   time.Now(),
	}, nil
}

func (f *fakeAPI) GetOrder(ctx context.Context, orderID string) (commerce.Order, error) {
	return commerce.Order{ID: orderID, Status: commerce.OrderConfirmed, TotalAmount: 10, CreatedAt: time.Now()}, nil
}

func (f *fakeAPI) ListCustomerOrders(ctx context.Context, phone, merchantID string) ([]commerce.Order, error) {
	return []commerce.Order{{ID: "ord_c1", Status: commerce.OrderDelivered, TotalAmount: 3}}, nil
}

func (f *fakeAPI) ListMerchantOrders(ctx context.Context, merchantID string) ([]commerce.Order, error) {
	return []commerce.Order{{ID: "ord_9", Status: commerce.OrderPending, TotalAmount: 5}}, nil
}

func (f *fakeAPI) UpdateOrderStatus(ctx context.Context, orderID, status string) (commerce.Order, error) {
	f.statusUpdates = append(f.statusUpdates, orderID+":"+status)
	return commerce.Order{ID: orderID, Status: status}, nil
}

func (f *fakeAPI) PendingMerchants(ctx context.Context) ([]commerce.Merchant, error) {
	return f.merchants, nil
}

func (f *fakeAPI) GetMerchant(ctx context.Context, merchantID string) (commerce.Merchant, error) {
	for _, m := range f.merchants {
		if m.ID == merchantID {
			return m, nil
		}
	}
	return commerce.Merchant{}, errors.New("not found")
}

func (f *fakeAPI) ApproveMerchant(ctx context.Context, merchantID string) error {
	f.approved = append(f.approved, merchantID)
	return nil
}

func (f *fakeAPI) RejectMerchant(ctx context.Context, merchantID string) error  { return nil }
func (f *fakeAPI) SuspendMerchant(ctx context.Context, merchantID string) error { return nil }

func (f *fakeAPI) SystemAnalytics(ctx context.Context) (commerce.Analytics, error) {
	return commerce.Analytics{TotalMerchants: 3, TotalOrders: 42, TotalRevenue: 1234.5}, nil
}

func (f *fakeAPI) SystemAlerts(ctx context.Context) ([]commerce.Alert, error) { return nil, nil }

func (f *fakeAPI) SendBroadcast(ctx context.Context, message string) (int, error) {
	f.broadcasts = append(f.broadcasts, message)
	return 7, nil
}

var _ commerce.API = (*fakeAPI)(nil)

func newTestDispatcher(api commerce.API) *Dispatcher {
	return NewDispatcher(api, session.NewMemoryCache(time.Minute))
}

func TestHandleMessageIgnoresPlainChatter(t *testing.T) {
	d := newTestDispatcher(newFakeAPI())
	if replies := d.HandleMessage(context.Background(), "+263770000001", "ok thanks bye", "m1"); replies != nil {
		t.Errorf("replies = %+v, want none", replies)
	}
	if replies := d.HandleMessage(context.Background(), "+263770000001", "   ", "m1"); replies != nil {
		t.Errorf("blank input: replies = %+v, want none", replies)
	}
}

func TestUnknownCommandGetsHelpPointer(t *testing.T) {
	d := newTestDispatcher(newFakeAPI())
	replies := d.HandleMessage(context.Background(), "+263770000001", "!frobnicate", "m1")
	if len(replies) != 1 || !strings.Contains(replies[0].Content, "Unknown command: frobnicate") {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestAddMatchesCatalogByWordWithQuantity(t *testing.T) {
	api := newFakeAPI()
	api.products = []commerce.Product{
		{ID: "p1", Name: "Chicken & Rice", Price: 4.5, InStock: true},
		{ID: "p2", Name: "Sadza", Price: 2, InStock: true},
	}
	d := newTestDispatcher(api)

	replies := d.HandleMessage(context.Background(), "+263770000001", "!add Chicken 3", "m1")
	if len(replies) != 1 {
		t.Fatalf("replies = %+v", replies)
	}
	if !strings.Contains(replies[0].Content, "3x Chicken & Rice") {
		t.Errorf("content = %q", replies[0].Content)
	}
	if !strings.Contains(replies[0].Content, "1 total items") {
		t.Errorf("content = %q", replies[0].Content)
	}
	if len(api.addCalls) != 1 || api.addCalls[0].quantity != 3 || api.addCalls[0].productID != "p1" {
		t.Errorf("addCalls = %+v", api.addCalls)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	d := newTestDispatcher(newFakeAPI())
	replies := d.HandleMessage(context.Background(), "+263770000001", "!checkout", "m1")
	if len(replies) != 1 || !strings.Contains(replies[0].Content, "Your cart is empty") {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestCheckoutCopiesCartLinesAndClears(t *testing.T) {
	api := newFakeAPI()
	api.products = []commerce.Product{{ID: "p2", Name: "Sadza", Price: 2}}
	d := newTestDispatcher(api)
	phone := "+263770000001"

	d.HandleMessage(context.Background(), phone, "!add Sadza 2", "m1")
	replies := d.HandleMessage(context.Background(), phone, "!checkout", "m1")

	if len(replies) != 1 || !strings.Contains(replies[0].Content, "Order placed successfully") {
		t.Fatalf("replies = %+v", replies)
	}
	if !strings.Contains(replies[0].Content, "ord_1") {
		t.Errorf("content = %q, want order id", replies[0].Content)
	}

	if len(api.createdOrders) != 1 {
		t.Fatalf("createdOrders = %+v", api.createdOrders)
	}
	req := api.createdOrders[0]
	if req.Status != commerce.OrderPending {
		t.Errorf("status = %q, want pending", req.Status)
	}
	if len(req.Items) != 1 || req.Items[0].Quantity != 2 || req.Items[0].Price != 2 {
		t.Errorf("items = %+v, want the cart lines verbatim", req.Items)
	}
	if req.TotalAmount != 4 {
		t.Errorf("total = %v, want 4", req.TotalAmount)
	}

	if _, ok := api.carts[phone]; ok {
		t.Error("cart should be cleared after a successful checkout")
	}
}

func TestCheckoutReportsOrderCreated(t *testing.T) {
	api := newFakeAPI()
	api.products = []commerce.Product{{ID: "p2", Name: "Sadza", Price: 2}}
	d := newTestDispatcher(api)
	rec := &recordingEvents{}
	d.AttachEvents(rec)
	phone := "+263770000001"

	d.HandleMessage(context.Background(), phone, "!add Sadza 2", "m1")
	rec.orders = nil
	d.HandleMessage(context.Background(), phone, "!checkout", "m1")

	if len(rec.orders) != 1 || rec.orders[0] != "ord_1" {
		t.Fatalf("reported orders = %v, want the placed order", rec.orders)
	}

	api.createOrderErr = errors.New("backend down")
	d.HandleMessage(context.Background(), phone, "!add Sadza 1", "m1")
	rec.orders = nil
	d.HandleMessage(context.Background(), phone, "!checkout", "m1")
	if len(rec.orders) != 0 {
		t.Errorf("failed checkout reported orders = %v", rec.orders)
	}
}

func TestCheckoutFailureLeavesCartIntact(t *testing.T) {
	api := newFakeAPI()
	api.products = []commerce.Product{{ID: "p2", Name: "Sadza", Price: 2}}
	api.createOrderErr = errors.New("backend down")
	d := newTestDispatcher(api)
	phone := "+263770000001"

	d.HandleMessage(context.Background(), phone, "!add Sadza 1", "m1")
	replies := d.HandleMessage(context.Background(), phone, "!checkout", "m1")

	if len(replies) != 1 || !strings.Contains(replies[0].Content, "Failed to place order") {
		t.Fatalf("replies = %+v", replies)
	}
	if _, ok := api.carts[phone]; !ok {
		t.Error("cart must be untouched when checkout fails")
	}
}

func TestOrdersCommandScopesByRole(t *testing.T) {
	api := newFakeAPI()
	api.users["+263770000001"] = commerce.User{Phone: "+263770000001", Role: commerce.RoleCustomer}
	api.users["+263770000002"] = commerce.User{Phone: "+263770000002", Role: commerce.RoleMerchant, MerchantID: "m1"}
	d := newTestDispatcher(api)

	mine := d.HandleMessage(context.Background(), "+263770000001", "!orders", "m1")
	if len(mine) != 1 || !strings.Contains(mine[0].Content, "ord_c1") {
		t.Fatalf("customer replies = %+v", mine)
	}
	if strings.Contains(mine[0].Content, "ord_9") {
		t.Errorf("customer sees merchant orders: %+v", mine)
	}

	store := d.HandleMessage(context.Background(), "+263770000002", "!orders", "m1")
	if len(store) != 1 || !strings.Contains(store[0].Content, "ord_9") {
		t.Fatalf("merchant replies = %+v", store)
	}
}

func TestUpdateOrderStatusCommand(t *testing.T) {
	api := newFakeAPI()
	api.users["+263770000001"] = commerce.User{Phone: "+263770000001", Role: commerce.RoleCustomer}
	api.users["+263770000002"] = commerce.User{Phone: "+263770000002", Role: commerce.RoleMerchant, MerchantID: "m1"}
	d := newTestDispatcher(api)
	rec := &recordingEvents{}
	d.AttachEvents(rec)

	denied := d.HandleMessage(context.Background(), "+263770000001", "!update ord_9 confirmed", "m1")
	if len(denied) != 1 || !strings.Contains(denied[0].Content, "Access denied") {
		t.Fatalf("customer replies = %+v", denied)
	}

	bad := d.HandleMessage(context.Background(), "+263770000002", "!update ord_9 shipped", "m1")
	if len(bad) != 1 || !strings.Contains(bad[0].Content, "Unknown status") {
		t.Fatalf("bad status replies = %+v", bad)
	}
	if len(api.statusUpdates) != 0 {
		t.Fatalf("rejected status reached the backend: %v", api.statusUpdates)
	}

	ok := d.HandleMessage(context.Background(), "+263770000002", "!update ord_9 confirmed", "m1")
	if len(ok) != 1 || !strings.Contains(ok[0].Content, "ord_9 is now confirmed") {
		t.Fatalf("merchant replies = %+v", ok)
	}
	if len(api.statusUpdates) != 1 || api.statusUpdates[0] != "ord_9:confirmed" {
		t.Errorf("backend updates = %v", api.statusUpdates)
	}
	if len(rec.statusChanges) != 1 || rec.statusChanges[0] != "ord_9:confirmed" {
		t.Errorf("reported transitions = %v", rec.statusChanges)
	}
}

func TestOrderIntentAddsMatchedProducts(t *testing.T) {
	api := newFakeAPI()
	api.products = []commerce.Product{
		{ID: "p1", Name: "Sadza", Price: 2},
		{ID: "p2", Name: "Chicken & Rice", Price: 4.5},
		{ID: "p3", Name: "Cola", Price: 1},
	}
	d := newTestDispatcher(api)

	replies := d.HandleMessage(context.Background(), "+263770000001", "I want 2 sadza please", "m1")
	if len(replies) != 1 || !strings.Contains(replies[0].Content, "Added 1 item(s)") {
		t.Fatalf("replies = %+v", replies)
	}
	if len(api.addCalls) != 1 || api.addCalls[0].productID != "p1" || api.addCalls[0].quantity != 2 {
		t.Errorf("addCalls = %+v", api.addCalls)
	}
}

func TestMenuNumberFlowAddsChoice(t *testing.T) {
	api := newFakeAPI()
	api.products = []commerce.Product{
		{ID: "p1", Name: "Sadza", Price: 2, Category: "Mains"},
		{ID: "p2", Name: "Cola", Price: 1, Category: "Drinks"},
	}
	d := newTestDispatcher(api)
	phone := "+263770000001"

	menu := d.HandleMessage(context.Background(), phone, "!menu", "m1")
	if len(menu) != 1 || !strings.Contains(menu[0].Content, "1. Sadza") {
		t.Fatalf("menu = %+v", menu)
	}

	replies := d.HandleMessage(context.Background(), phone, "2", "m1")
	if len(replies) != 1 || !strings.Contains(replies[0].Content, "Added Cola") {
		t.Fatalf("replies = %+v", replies)
	}
	if len(api.addCalls) != 1 || api.addCalls[0].productID != "p2" {
		t.Errorf("addCalls = %+v", api.addCalls)
	}

	// The flow is single-shot; a second number is ignored.
	if again := d.HandleMessage(context.Background(), phone, "1", "m1"); again != nil {
		t.Errorf("second numeric reply = %+v, want none", again)
	}
}

func TestAdminRequiresSuperAdmin(t *testing.T) {
	api := newFakeAPI()
	api.users["+263770000002"] = commerce.User{Phone: "+263770000002", Role: commerce.RoleMerchant}
	api.users["+263770000009"] = commerce.User{Phone: "+263770000009", Role: commerce.RoleSuperAdmin}
	api.merchants = []commerce.Merchant{{ID: "m7", BusinessName: "Mama's Kitchen", Status: "pending"}}
	d := newTestDispatcher(api)

	denied := d.HandleMessage(context.Background(), "+263770000002", "!admin merchants", "m1")
	if len(denied) != 1 || !strings.Contains(denied[0].Content, "Access denied") {
		t.Fatalf("merchant replies = %+v", denied)
	}

	approved := d.HandleMessage(context.Background(), "+263770000009", "!admin approve m7", "m1")
	if len(approved) != 1 || !strings.Contains(approved[0].Content, "Merchant Approved") {
		t.Fatalf("admin replies = %+v", approved)
	}
	if len(api.approved) != 1 || api.approved[0] != "m7" {
		t.Errorf("approved = %+v", api.approved)
	}

	missing := d.HandleMessage(context.Background(), "+263770000009", "!admin approve nope", "m1")
	if len(missing) != 1 || !strings.Contains(missing[0].Content, "not found") {
		t.Fatalf("missing merchant replies = %+v", missing)
	}
}

type recordingEvents struct {
	commands      []string
	statuses      []string
	orders        []string
	statusChanges []string
	activities    []string
}

func (r *recordingEvents) CommandExecuted(from, command string, args []string, status string) {
	r.commands = append(r.commands, command)
	r.statuses = append(r.statuses, status)
}

func (r *recordingEvents) OrderCreated(order interface{}) {
	if o, ok := order.(commerce.Order); ok {
		r.orders = append(r.orders, o.ID)
	}
}

func (r *recordingEvents) OrderStatusChanged(orderID, status string) {
	r.statusChanges = append(r.statusChanges, orderID+":"+status)
}

func (r *recordingEvents) UserActivity(action string, details json.RawMessage) {
	r.activities = append(r.activities, action)
}

func (r *recordingEvents) ErrorOccurred(context, message string) {}

var _ Events = (*recordingEvents)(nil)

func TestCommandExecutionIsReported(t *testing.T) {
	d := newTestDispatcher(newFakeAPI())
	rec := &recordingEvents{}
	d.AttachEvents(rec)

	d.HandleMessage(context.Background(), "+263770000001", "!help", "m1")

	if len(rec.commands) != 1 || rec.commands[0] != "help" || rec.statuses[0] != "ok" {
		t.Errorf("recorded = %+v / %+v", rec.commands, rec.statuses)
	}
}

func TestIntentTurnsReportUserActivity(t *testing.T) {
	api := newFakeAPI()
	api.products = []commerce.Product{{ID: "p1", Name: "Sadza", Price: 2}}
	d := newTestDispatcher(api)
	rec := &recordingEvents{}
	d.AttachEvents(rec)

	d.HandleMessage(context.Background(), "+263770000001", "show me the menu", "m1")
	if len(rec.activities) != 1 || rec.activities[0] != IntentBrowse {
		t.Fatalf("activities = %v, want the detected intent", rec.activities)
	}

	rec.activities = nil
	d.HandleMessage(context.Background(), "+263770000001", "!help", "m1")
	if len(rec.activities) != 0 {
		t.Errorf("command turns should not report user activity, got %v", rec.activities)
	}
}
