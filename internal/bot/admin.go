package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/musika/commerce/internal/commerce"
)

// handleAdmin routes the admin subcommands. Every subcommand requires the
// super_admin role.
func (d *Dispatcher) handleAdmin(ctx context.Context, phone string, args []string, role string) ([]Message, error) {
	if role != commerce.RoleSuperAdmin {
		return []Message{ErrorCard("Access denied", "Super admin privileges required")}, nil
	}
	if len(args) == 0 {
		return []Message{Text("Usage: !admin <merchants|approve|reject|suspend|sales|logs|broadcast|stats|alerts>")}, nil
	}

	sub := strings.ToLower(args[0])
	rest := args[1:]

	switch sub {
	case "merchants":
		return d.adminMerchants(ctx)
	case "approve":
		return d.adminModerate(ctx, "approve", rest)
	case "reject":
		return d.adminModerate(ctx, "reject", rest)
	case "suspend":
		return d.adminModerate(ctx, "suspend", rest)
	case "sales":
		return d.adminSales(ctx, rest)
	case "logs":
		return d.adminLogs(ctx, rest)
	case "broadcast":
		return d.adminBroadcast(ctx, rest)
	case "stats":
		return d.adminStats(ctx)
	case "alerts":
		return d.adminAlerts(ctx)
	default:
		return []Message{Text("Unknown admin command: " + sub + ". Type !help for available commands.")}, nil
	}
}

func (d *Dispatcher) adminMerchants(ctx context.Context) ([]Message, error) {
	merchants, err := d.api.PendingMerchants(ctx)
	if err != nil {
		return []Message{ErrorCard("Failed to fetch merchants", "Try again later", "Check your connection")}, nil
	}
	if len(merchants) == 0 {
		return []Message{Text("No pending merchants found.")}, nil
	}

	items := make([]ListItem, 0, 10)
	for i, m := range merchants {
		if i == 10 {
			break
		}
		items = append(items, ListItem{
			ID:          "approve_" + m.ID,
			Title:       fmt.Sprintf("%d. %s", i+1, m.BusinessName),
			Description: m.Phone,
		})
	}

	footer := "Select to approve"
	if len(merchants) > 10 {
		footer = fmt.Sprintf("Showing 10 of %d", len(merchants))
	}
	return []Message{ListMessage(
		"👥 PENDING MERCHANTS",
		fmt.Sprintf("Found %d merchant(s)", len(merchants)),
		items,
		footer,
	)}, nil
}

// adminModerate handles approve, reject and suspend, which differ only in
// the backend call and the confirmation wording.
func (d *Dispatcher) adminModerate(ctx context.Context, action string, args []string) ([]Message, error) {
	if len(args) == 0 {
		return []Message{ErrorCard("Merchant ID required",
			"Usage: !admin "+action+" <merchant_id>",
			"Get ID from !admin merchants")}, nil
	}
	merchantID := args[0]

	merchant, err := d.api.GetMerchant(ctx, merchantID)
	if err != nil {
		return []Message{ErrorCard("Merchant " + merchantID + " not found")}, nil
	}

	switch action {
	case "approve":
		err = d.api.ApproveMerchant(ctx, merchantID)
	case "reject":
		err = d.api.RejectMerchant(ctx, merchantID)
	case "suspend":
		err = d.api.SuspendMerchant(ctx, merchantID)
	}
	if err != nil {
		return []Message{ErrorCard("Failed to " + action + ": " + err.Error())}, nil
	}

	var title, detail string
	switch action {
	case "approve":
		title, detail = "Merchant Approved", merchant.BusinessName+" has been approved!"
	case "reject":
		title, detail = "Merchant Rejected", merchant.BusinessName+" application rejected"
	case "suspend":
		title, detail = "Merchant Suspended", merchant.BusinessName+" account suspended"
	}
	return []Message{SuccessCard(title, detail,
		Button{Label: "📊 View Stats", ID: "admin_stats"},
		Button{Label: "👥 View Merchants", ID: "admin_merchants"},
	)}, nil
}

func (d *Dispatcher) adminSales(ctx context.Context, args []string) ([]Message, error) {
	timeframe := "today"
	if len(args) > 0 {
		timeframe = strings.ToLower(args[0])
	}

	analytics, err := d.api.SystemAnalytics(ctx)
	if err != nil {
		return []Message{ErrorCard("Failed to fetch analytics")}, nil
	}

	items := []StatusItem{
		{Emoji: "📦", Label: "Total Orders", Value: fmt.Sprintf("%d", analytics.TotalOrders)},
		{Emoji: "💰", Label: "Revenue", Value: fmt.Sprintf("$%.2f", analytics.TotalRevenue)},
		{Emoji: "🏪", Label: "Merchants", Value: fmt.Sprintf("%d", analytics.TotalMerchants)},
		{Emoji: "📈", Label: "Orders Today", Value: fmt.Sprintf("%d", analytics.OrdersToday)},
		{Emoji: "💵", Label: "Revenue Today", Value: fmt.Sprintf("$%.2f", analytics.RevenueToday)},
	}
	return []Message{StatusCard(
		"📊 Sales - "+strings.ToUpper(timeframe),
		items,
		Button{Label: "📈 Detailed Report", ID: "sales_report"},
		Button{Label: "📋 Menu", ID: "menu"},
	)}, nil
}

func (d *Dispatcher) adminLogs(ctx context.Context, args []string) ([]Message, error) {
	if d.audit == nil {
		return []Message{Text("Log store is not configured.")}, nil
	}

	level := ""
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "errors":
			level = "error"
		case "warnings":
			level = "warning"
		default:
			level = strings.ToLower(args[0])
		}
	}

	entries, err := d.audit.Recent(ctx, level, 10)
	if err != nil {
		return []Message{ErrorCard("Failed to fetch logs")}, nil
	}
	if len(entries) == 0 {
		return []Message{Text("No recent log entries.")}, nil
	}

	items := make([]ListItem, 0, len(entries))
	for i, e := range entries {
		items = append(items, ListItem{
			ID:          fmt.Sprintf("log_%d", i+1),
			Title:       e.EventType,
			Description: fmt.Sprintf("%s • %s", e.Level, e.CreatedAt.Format("15:04")),
		})
	}
	return []Message{ListMessage("📋 SYSTEM LOGS", fmt.Sprintf("%d recent entries", len(entries)), items, "")}, nil
}

func (d *Dispatcher) adminBroadcast(ctx context.Context, args []string) ([]Message, error) {
	if len(args) == 0 {
		return []Message{ErrorCard("Message required", "Usage: !admin broadcast <message>")}, nil
	}

	recipients, err := d.api.SendBroadcast(ctx, strings.Join(args, " "))
	if err != nil {
		return []Message{ErrorCard("Failed to send broadcast")}, nil
	}
	return []Message{SuccessCard(
		"Broadcast Sent",
		fmt.Sprintf("Message sent to %d users", recipients),
		Button{Label: "📊 Stats", ID: "admin_stats"},
		Button{Label: "📋 Menu", ID: "menu"},
	)}, nil
}

func (d *Dispatcher) adminStats(ctx context.Context) ([]Message, error) {
	analytics, err := d.api.SystemAnalytics(ctx)
	if err != nil {
		return []Message{ErrorCard("Failed to fetch statistics")}, nil
	}

	items := []StatusItem{
		{Emoji: "🏪", Label: "Merchants", Value: fmt.Sprintf("%d", analytics.TotalMerchants)},
		{Emoji: "✅", Label: "Active Merchants", Value: fmt.Sprintf("%d", analytics.ActiveMerchants)},
		{Emoji: "📦", Label: "Total Orders", Value: fmt.Sprintf("%d", analytics.TotalOrders)},
		{Emoji: "💰", Label: "Total Revenue", Value: fmt.Sprintf("$%.2f", analytics.TotalRevenue)},
	}
	return []Message{StatusCard(
		"📈 SYSTEM STATISTICS",
		items,
		Button{Label: "📋 Menu", ID: "menu"},
	)}, nil
}

func (d *Dispatcher) adminAlerts(ctx context.Context) ([]Message, error) {
	alerts, err := d.api.SystemAlerts(ctx)
	if err != nil {
		return []Message{ErrorCard("Failed to fetch alerts")}, nil
	}
	if len(alerts) == 0 {
		return []Message{Text("✅ No active alerts")}, nil
	}

	items := make([]ListItem, 0, len(alerts))
	for i, a := range alerts {
		items = append(items, ListItem{
			ID:          fmt.Sprintf("alert_%d", i),
			Title:       a.Message,
			Description: a.Level,
		})
	}
	return []Message{ListMessage(
		"🚨 SYSTEM ALERTS",
		fmt.Sprintf("%d active alert(s)", len(alerts)),
		items,
		"Review and take action",
	)}, nil
}
