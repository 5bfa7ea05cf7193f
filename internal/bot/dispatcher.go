package bot

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/musika/commerce/internal/commerce"
	"github.com/musika/commerce/internal/metrics"
	"github.com/musika/commerce/internal/session"
)

// Events receives notable bot activity for fanout to dashboards. A nil
// Events on the Dispatcher disables reporting.
type Events interface {
	CommandExecuted(from, command string, args []string, status string)
	OrderCreated(order interface{})
	OrderStatusChanged(orderID, status string)
	UserActivity(action string, details json.RawMessage)
	ErrorOccurred(context, message string)
}

// AuditReader serves the admin logs command. A nil reader makes the command
// report that no log store is configured.
type AuditReader interface {
	Recent(ctx context.Context, level string, limit int) ([]AuditEntry, error)
}

// AuditEntry is one row surfaced by the admin logs command.
type AuditEntry struct {
	EventType  string
	MerchantID string
	Level      string
	CreatedAt  time.Time
}

// Session steps for multi-turn flows.
const stepAwaitingMenuChoice = "awaiting_menu_choice"

// Dispatcher routes incoming chat messages to command and intent handlers.
type Dispatcher struct {
	api      commerce.API
	sessions session.Cache
	events   Events
	audit    AuditReader
}

// NewDispatcher creates a Dispatcher. sessions must be non-nil; events and
// audit are optional.
func NewDispatcher(api commerce.API, sessions session.Cache) *Dispatcher {
	return &Dispatcher{api: api, sessions: sessions}
}

// AttachEvents wires activity reporting.
func (d *Dispatcher) AttachEvents(ev Events) { d.events = ev }

// AttachAudit wires the audit log reader behind the admin logs command.
func (d *Dispatcher) AttachAudit(ar AuditReader) { d.audit = ar }

// HandleMessage processes one inbound chat message and returns the replies.
// Messages that are neither commands, known intents, nor answers to an
// active flow produce no reply at all; a failing handler produces a single
// apologetic fallback so the customer is never left hanging.
func (d *Dispatcher) HandleMessage(ctx context.Context, phone, text, merchantID string) []Message {
	started := time.Now()
	defer func() {
		metrics.BotTurnDuration.Observe(time.Since(started).Seconds())
	}()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if replies, handled := d.continueFlow(ctx, phone, trimmed, merchantID); handled {
		return replies
	}

	isCmd := IsCommand(trimmed)
	intent := DetectIntent(trimmed)
	if !isCmd && intent == "" {
		return nil
	}

	var (
		replies []Message
		err     error
	)
	if isCmd {
		replies, err = d.handleCommand(ctx, phone, trimmed, merchantID)
	} else {
		replies, err = d.handleIntent(ctx, phone, trimmed, merchantID, intent)
		if err == nil && d.events != nil {
			details, _ := json.Marshal(map[string]string{"from": phone, "text": trimmed})
			d.events.UserActivity(intent, details)
		}
	}
	if err != nil {
		log.Printf("bot: handle %q from %s: %v", trimmed, phone, err)
		if d.events != nil {
			d.events.ErrorOccurred("bot", err.Error())
		}
		return []Message{Text("Sorry, something went wrong. Please try again or type !help for assistance.")}
	}
	return replies
}

// continueFlow resumes an in-progress multi-turn flow. It reports handled
// only when the message was consumed by the flow.
func (d *Dispatcher) continueFlow(ctx context.Context, phone, text, merchantID string) ([]Message, bool) {
	state, ok, err := d.sessions.Get(ctx, phone)
	if err != nil {
		log.Printf("bot: session lookup for %s: %v", phone, err)
		return nil, false
	}
	if !ok || state.Step != stepAwaitingMenuChoice {
		return nil, false
	}

	choice, convErr := strconv.Atoi(text)
	if convErr != nil {
		// Not an answer to the menu; fall through to normal handling but
		// keep the flow alive for the next numeric reply.
		return nil, false
	}

	productID := state.Context["choice_"+strconv.Itoa(choice)]
	_ = d.sessions.Delete(ctx, phone)
	if productID == "" {
		return []Message{Text("That number is not on the menu. Type !menu to see it again.")}, true
	}

	count, err := d.api.AddToCart(ctx, phone, merchantID, productID, 1)
	if err != nil {
		log.Printf("bot: add menu choice for %s: %v", phone, err)
		return []Message{Text("Failed to add item to cart. Please try again.")}, true
	}
	name := state.Context["name_"+strconv.Itoa(choice)]
	return []Message{Text("✅ Added " + name + " to cart! (" + strconv.Itoa(count) + " total items)\nType !cart to view or !checkout to order.")}, true
}

// handleCommand resolves the caller's role and routes an explicit command.
func (d *Dispatcher) handleCommand(ctx context.Context, phone, text, merchantID string) ([]Message, error) {
	cmd := ParseCommand(text)
	if cmd == nil {
		return nil, nil
	}

	role := commerce.RoleCustomer
	if user, err := d.api.VerifyUser(ctx, phone); err == nil && user.Role != "" {
		role = user.Role
	}

	replies, err := d.route(ctx, phone, cmd, merchantID, role)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.BotCommandsTotal.WithLabelValues(cmd.Name, status).Inc()
	if d.events != nil {
		d.events.CommandExecuted(phone, cmd.Name, cmd.Args, status)
	}
	return replies, err
}

func (d *Dispatcher) route(ctx context.Context, phone string, cmd *Command, merchantID, role string) ([]Message, error) {
	switch cmd.Name {
	case "register":
		return d.cmdRegister(ctx, phone, cmd.Args)
	case "menu", "m":
		return d.cmdShowMenu(ctx, phone, merchantID)
	case "search":
		return d.cmdSearch(ctx, strings.Join(cmd.Args, " "), merchantID)
	case "cart", "c":
		return d.cmdShowCart(ctx, phone, merchantID)
	case "add":
		return d.cmdAddToCart(ctx, phone, cmd.Args, merchantID)
	case "remove":
		return d.cmdRemoveFromCart(ctx, phone, firstArg(cmd.Args), merchantID)
	case "clear":
		return d.cmdClearCart(ctx, phone, merchantID)
	case "checkout", "pay":
		return d.cmdCheckout(ctx, phone, merchantID)
	case "orders":
		return d.cmdShowOrders(ctx, phone, role, merchantID, firstArg(cmd.Args))
	case "status", "track":
		return d.cmdOrderStatus(ctx, firstArg(cmd.Args))
	case "update":
		return d.cmdUpdateOrderStatus(ctx, role, cmd.Args)
	case "dashboard":
		return d.cmdMerchantDashboard(role)
	case "admin":
		return d.handleAdmin(ctx, phone, cmd.Args, role)
	case "help":
		return []Message{Text(helpText)}, nil
	default:
		return []Message{Text("Unknown command: " + cmd.Name + ". Type !help for available commands.")}, nil
	}
}

// handleIntent routes a detected natural language intent.
func (d *Dispatcher) handleIntent(ctx context.Context, phone, text, merchantID, intent string) ([]Message, error) {
	switch intent {
	case IntentOrder:
		return d.processOrderIntent(ctx, phone, text, merchantID)
	case IntentBrowse:
		return d.cmdShowMenu(ctx, phone, merchantID)
	case IntentCheckout:
		return d.cmdCheckout(ctx, phone, merchantID)
	case IntentStatus:
		return []Message{Text("Please provide your order ID to check status. Type: !status <order-id>")}, nil
	case IntentGreet:
		return []Message{Text("Hello! 👋 Welcome! Type !menu to see our products or !help for commands.")}, nil
	case IntentHelp:
		return []Message{Text(helpText)}, nil
	default:
		return nil, nil
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

const helpText = `📚 *Available Commands*

👥 *Customer:*
!register [name] - Register
!menu / !m - View products
!search [query] - Search products
!add [product] [qty] - Add to cart
!cart / !c - View cart
!remove [product] - Remove from cart
!clear - Clear cart
!checkout / !pay - Place order
!status [order-id] - Check order
!orders - Your orders

🏪 *Merchant:*
!orders [status] - View orders
!orders pending - Filter by status
!update [order-id] [status] - Update order
!dashboard - Business stats

*Natural Language:*
Just message: "I want 2 sadza please"
or "Can I get chicken and rice?"

Type !help for this message`
