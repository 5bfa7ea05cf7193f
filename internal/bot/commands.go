package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/musika/commerce/internal/commerce"
	"github.com/musika/commerce/internal/session"
)

func (d *Dispatcher) cmdRegister(ctx context.Context, phone string, args []string) ([]Message, error) {
	name := strings.Join(args, " ")
	if name == "" {
		name = "Customer"
	}
	if _, err := d.api.RegisterUser(ctx, phone, name); err != nil {
		return []Message{Text("Registration failed: " + err.Error())}, nil
	}
	return []Message{Text("✅ Welcome " + name + "! You're now registered. Type !menu to see our products.")}, nil
}

// cmdShowMenu renders the catalog grouped by category and arms a session so
// the customer can answer with a line number instead of typing !add.
func (d *Dispatcher) cmdShowMenu(ctx context.Context, phone, merchantID string) ([]Message, error) {
	products, err := d.api.ListProducts(ctx, merchantID)
	if err != nil {
		return []Message{Text("Could not load menu. Please try again.")}, nil
	}
	if len(products) == 0 {
		return []Message{Text("The menu is empty right now. Please check back later.")}, nil
	}

	byCategory := make(map[string][]commerce.Product)
	var categories []string
	for _, p := range products {
		cat := p.Category
		if cat == "" {
			cat = "Other"
		}
		if _, seen := byCategory[cat]; !seen {
			categories = append(categories, cat)
		}
		byCategory[cat] = append(byCategory[cat], p)
	}

	var b strings.Builder
	b.WriteString("🍽️ *Our Menu*\n\n")

	flowContext := make(map[string]string)
	line := 0
	for _, cat := range categories {
		fmt.Fprintf(&b, "*%s*\n", cat)
		for _, p := range byCategory[cat] {
			line++
			fmt.Fprintf(&b, "%d. %s - $%.2f\n", line, p.Name, p.Price)
			flowContext["choice_"+strconv.Itoa(line)] = p.ID
			flowContext["name_"+strconv.Itoa(line)] = p.Name
		}
		b.WriteString("\n")
	}
	b.WriteString(`Reply with a number, type !add [product name] [qty], or just say "I want..."`)

	if err := d.sessions.Put(ctx, phone, session.State{
		Step:    stepAwaitingMenuChoice,
		Context: flowContext,
	}); err != nil {
		log.Printf("bot: save menu session for %s: %v", phone, err)
	}

	return []Message{Text(b.String())}, nil
}

func (d *Dispatcher) cmdSearch(ctx context.Context, query, merchantID string) ([]Message, error) {
	if query == "" {
		return []Message{Text("What would you like to search for?")}, nil
	}

	results, err := d.api.SearchProducts(ctx, merchantID, query)
	if err != nil || len(results) == 0 {
		return []Message{Text(`No products found matching "` + query + `". Type !menu to browse.`)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d product(s):\n\n", len(results))
	for _, p := range results {
		fmt.Fprintf(&b, "• %s - $%.2f\n", p.Name, p.Price)
	}
	return []Message{Text(b.String())}, nil
}

func (d *Dispatcher) cmdShowCart(ctx context.Context, phone, merchantID string) ([]Message, error) {
	cart, err := d.api.GetCart(ctx, phone, merchantID)
	if err != nil || len(cart.Items) == 0 {
		return []Message{Text("Your cart is empty. Type !menu to add items.")}, nil
	}

	var b strings.Builder
	b.WriteString("🛒 *Your Cart*\n\n")
	for _, item := range cart.Items {
		subtotal := float64(item.Quantity) * item.Price
		fmt.Fprintf(&b, "%dx %s\n$%.2f each = $%.2f\n\n", item.Quantity, item.Name, item.Price, subtotal)
	}
	fmt.Fprintf(&b, "*Total: $%.2f*\n\n", cart.Total)
	b.WriteString("Type: !checkout to order or !add [product] to add more")

	return []Message{Text(b.String())}, nil
}

// cmdAddToCart treats the last argument as a quantity when it parses as a
// positive number, otherwise defaults to one and searches on all the words.
func (d *Dispatcher) cmdAddToCart(ctx context.Context, phone string, args []string, merchantID string) ([]Message, error) {
	if len(args) == 0 {
		return []Message{Text("Usage: !add [product name] [quantity]")}, nil
	}

	qty := 1
	query := strings.Join(args, " ")
	if n, err := strconv.Atoi(args[len(args)-1]); err == nil && n > 0 {
		qty = n
		query = strings.Join(args[:len(args)-1], " ")
	}
	if query == "" {
		return []Message{Text("Usage: !add [product name] [quantity]")}, nil
	}

	results, err := d.api.SearchProducts(ctx, merchantID, query)
	if err != nil || len(results) == 0 {
		return []Message{Text(`Product "` + query + `" not found. Type !menu to browse.`)}, nil
	}

	product := results[0]
	count, err := d.api.AddToCart(ctx, phone, merchantID, product.ID, qty)
	if err != nil {
		return []Message{Text("Failed to add item to cart. Please try again.")}, nil
	}

	return []Message{Text(fmt.Sprintf("✅ Added %dx %s to cart! (%d total items)\nType !cart to view or !checkout to order.", qty, product.Name, count))}, nil
}

func (d *Dispatcher) cmdRemoveFromCart(ctx context.Context, phone, productName, merchantID string) ([]Message, error) {
	if productName == "" {
		return []Message{Text("Which product would you like to remove?")}, nil
	}

	results, err := d.api.SearchProducts(ctx, merchantID, productName)
	if err != nil || len(results) == 0 {
		return []Message{Text("Product not found.")}, nil
	}

	if err := d.api.RemoveFromCart(ctx, phone, merchantID, results[0].ID); err != nil {
		return nil, err
	}
	return []Message{Text("✅ Item removed from cart.")}, nil
}

func (d *Dispatcher) cmdClearCart(ctx context.Context, phone, merchantID string) ([]Message, error) {
	if err := d.api.ClearCart(ctx, phone, merchantID); err != nil {
		return nil, err
	}
	return []Message{Text("🗑️ Cart cleared. Type !menu to start shopping again.")}, nil
}

// cmdCheckout copies the cart lines onto a pending order as they are. On
// success the cart is cleared; on failure it is left untouched so the
// customer can simply retry.
func (d *Dispatcher) cmdCheckout(ctx context.Context, phone, merchantID string) ([]Message, error) {
	cart, err := d.api.GetCart(ctx, phone, merchantID)
	if err != nil || len(cart.Items) == 0 {
		return []Message{Text("Your cart is empty. Type !menu to add items.")}, nil
	}

	items := make([]commerce.OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		items = append(items, commerce.OrderItem{
			ProductID: ci.ProductID,
			Name:      ci.Name,
			Quantity:  ci.Quantity,
			Price:     ci.Price,
		})
	}

	order, err := d.api.CreateOrder(ctx, commerce.OrderRequest{
		MerchantID:    merchantID,
		CustomerPhone: phone,
		Items:         items,
		TotalAmount:   cart.Total,
		Status:        commerce.OrderPending,
	})
	if err != nil {
		log.Printf("bot: checkout for %s failed: %v", phone, err)
		return []Message{Text("Failed to place order. Please try again.")}, nil
	}

	if d.events != nil {
		d.events.OrderCreated(order)
	}

	if err := d.api.ClearCart(ctx, phone, merchantID); err != nil {
		log.Printf("bot: clear cart after checkout for %s: %v", phone, err)
	}

	return []Message{Text(fmt.Sprintf(
		"✅ Order placed successfully!\nOrder ID: %s\nTotal: $%.2f\n\nYou will receive payment details shortly. Type !status %s to track.",
		order.ID, cart.Total, order.ID))}, nil
}

// cmdShowOrders lists the caller's own orders for customers and the store's
// orders for merchants. The optional status filter applies to both.
func (d *Dispatcher) cmdShowOrders(ctx context.Context, phone, role, merchantID, statusFilter string) ([]Message, error) {
	var (
		orders []commerce.Order
		err    error
	)
	if role == commerce.RoleMerchant || role == commerce.RoleSuperAdmin {
		orders, err = d.api.ListMerchantOrders(ctx, merchantID)
	} else {
		orders, err = d.api.ListCustomerOrders(ctx, phone, merchantID)
	}
	if err != nil {
		return nil, err
	}
	if statusFilter != "" {
		filtered := orders[:0]
		for _, o := range orders {
			if o.Status == statusFilter {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	if len(orders) == 0 {
		return []Message{Text("No orders found.")}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📦 Orders (%d)\n\n", len(orders))
	shown := orders
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, o := range shown {
		fmt.Fprintf(&b, "Order: %s\nStatus: %s\nTotal: $%.2f\n\n", o.ID, o.Status, o.TotalAmount)
	}
	return []Message{Text(b.String())}, nil
}

func (d *Dispatcher) cmdOrderStatus(ctx context.Context, orderID string) ([]Message, error) {
	if orderID == "" {
		return []Message{Text("Please provide an order ID. Usage: !status <order-id>")}, nil
	}

	order, err := d.api.GetOrder(ctx, orderID)
	if err != nil {
		return []Message{Text("Order not found.")}, nil
	}

	return []Message{Text(fmt.Sprintf(
		"📦 *Order %s*\n\nStatus: %s\nTotal: $%.2f\nPlaced: %s",
		order.ID, order.Status, order.TotalAmount, order.CreatedAt.Format("2 Jan 2006")))}, nil
}

// cmdUpdateOrderStatus moves an order through its lifecycle on behalf of a
// merchant and pushes the transition to the dashboard.
func (d *Dispatcher) cmdUpdateOrderStatus(ctx context.Context, role string, args []string) ([]Message, error) {
	if role != commerce.RoleMerchant && role != commerce.RoleSuperAdmin {
		return []Message{Text("Access denied. Merchant access required.")}, nil
	}
	if len(args) < 2 {
		return []Message{Text("Usage: !update <order-id> <status>")}, nil
	}

	orderID := args[0]
	status := strings.ToLower(args[1])
	switch status {
	case commerce.OrderPending, commerce.OrderConfirmed, commerce.OrderPreparing,
		commerce.OrderReady, commerce.OrderDelivered, commerce.OrderCancelled:
	default:
		return []Message{Text("Unknown status: " + status + ". Use pending, confirmed, preparing, ready, delivered or cancelled.")}, nil
	}

	order, err := d.api.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return []Message{Text("Order not found.")}, nil
	}
	if d.events != nil {
		d.events.OrderStatusChanged(order.ID, order.Status)
	}
	return []Message{Text(fmt.Sprintf("✅ Order %s is now %s.", order.ID, order.Status))}, nil
}

func (d *Dispatcher) cmdMerchantDashboard(role string) ([]Message, error) {
	if role != commerce.RoleMerchant && role != commerce.RoleSuperAdmin {
		return []Message{Text("Access denied. Merchant access required.")}, nil
	}
	return []Message{Text("Dashboard feature coming soon. Use the web platform for full analytics.")}, nil
}
