package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/musika/commerce/internal/audit"
	"github.com/musika/commerce/internal/bot"
	"github.com/musika/commerce/internal/commerce"
	"github.com/musika/commerce/internal/emitter"
	"github.com/musika/commerce/internal/metrics"
	"github.com/musika/commerce/internal/session"
)

// auditAdapter exposes the audit store through the dispatcher's reader
// interface.
type auditAdapter struct {
	store *audit.Store
}

func (a auditAdapter) Recent(ctx context.Context, level string, limit int) ([]bot.AuditEntry, error) {
	events, err := a.store.Recent(ctx, level, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]bot.AuditEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, bot.AuditEntry{
			EventType:  e.EventType,
			MerchantID: e.MerchantID,
			Level:      e.Level,
			CreatedAt:  e.CreatedAt,
		})
	}
	return entries, nil
}

type webhookRequest struct {
	From       string `json:"from"`
	Text       string `json:"text"`
	MerchantID string `json:"merchant_id"`
	HasMedia   bool   `json:"has_media,omitempty"`
}

type webhookResponse struct {
	Messages []bot.Message `json:"messages"`
}

func main() {
	listenAddr := ":5175"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}

	apiURL := os.Getenv("COMMERCE_API_URL")
	if apiURL == "" {
		log.Fatal("COMMERCE_API_URL is required")
	}
	api := commerce.NewClient(apiURL, os.Getenv("COMMERCE_API_KEY"))

	// --- Conversation cache: Redis when configured, in-process otherwise ---
	var sessions session.Cache
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cache, err := session.NewRedisCache(redisAddr, session.DefaultTTL)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		defer cache.Close()
		sessions = cache
	} else {
		sessions = session.NewMemoryCache(session.DefaultTTL)
	}

	dispatcher := bot.NewDispatcher(api, sessions)

	// --- Realtime event bridge ---
	dashboardURL := strings.TrimRight(os.Getenv("DASHBOARD_URL"), "/")
	events := emitter.New(dashboardURL)
	dispatcher.AttachEvents(events)

	// --- Audit log behind the admin logs command (optional) ---
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		store, err := audit.Open(dsn)
		if err != nil {
			log.Fatalf("failed to open audit store: %v", err)
		}
		defer store.Close()
		dispatcher.AttachAudit(auditAdapter{store: store})
	}

	log.Printf("musika bot starting")
	log.Printf("  listen_addr:   %s", listenAddr)
	log.Printf("  commerce_api:  %s", apiURL)
	log.Printf("  dashboard:     %s", dashboardURL)

	if dashboardURL != "" {
		go probeDashboard(dashboardURL, events)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.From == "" || req.MerchantID == "" {
			http.Error(w, "from and merchant_id are required", http.StatusBadRequest)
			return
		}

		events.MessageReceived(req.From, req.Text, req.HasMedia)

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()
		replies := dispatcher.HandleMessage(ctx, req.From, req.Text, req.MerchantID)

		for _, reply := range replies {
			events.MessageSent(req.From, reply.Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(webhookResponse{Messages: replies})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		queued, sent, dropped, connected := events.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "ok",
			"bridge_up":      connected,
			"events_queued":  queued,
			"events_sent":    sent,
			"events_dropped": dropped,
		})
	})
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down...")
	events.BotDisconnected("shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("goodbye")
}

// probeDashboard polls the realtime server's health endpoint and keeps the
// emitter's link state in sync so offline events queue instead of failing.
func probeDashboard(baseURL string, events *emitter.Emitter) {
	httpc := &http.Client{Timeout: 3 * time.Second}
	check := func() {
		resp, err := httpc.Get(baseURL + "/health")
		if err != nil {
			events.SetConnected(false)
			return
		}
		resp.Body.Close()
		events.SetConnected(resp.StatusCode == http.StatusOK)
	}

	check()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		check()
	}
}
