package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/musika/commerce/internal/audit"
	"github.com/musika/commerce/internal/relay"
	"github.com/musika/commerce/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("HISTORY_REPLAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.HistoryReplay = n
		}
	}

	server := ws.NewServer(config)

	// --- NATS relay (optional, for multi-instance deployments) ---
	var natsRelay *relay.Relay
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		origin, _ := os.Hostname()
		if v := os.Getenv("SERVER_NAME"); v != "" {
			origin = v
		}
		if origin == "" {
			origin = "rtserver-1"
		}

		r, err := relay.Connect(relay.DefaultConfig(natsURL, origin))
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		natsRelay = r

		if err := r.SubscribeRooms(server.RemoteBroadcastToRoom); err != nil {
			log.Fatalf("failed to subscribe to relay rooms: %v", err)
		}
		if err := r.SubscribeBroadcast(server.RemoteBroadcastAll); err != nil {
			log.Fatalf("failed to subscribe to relay broadcast: %v", err)
		}
		server.AttachRelay(r)
	}

	// --- Audit store (optional) ---
	var auditStore *audit.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		store, err := audit.Open(dsn)
		if err != nil {
			log.Fatalf("failed to open audit store: %v", err)
		}
		auditStore = store
		server.AttachRecorder(store)
	}

	log.Printf("musika realtime server starting")
	log.Printf("  listen_addr:       %s", config.ListenAddr)
	log.Printf("  max_connections:   %d", config.MaxConnections)
	log.Printf("  write_timeout:     %s", config.WriteTimeout)
	log.Printf("  heartbeat:         %s", config.HeartbeatInterval)
	log.Printf("  history_replay:    %d", config.HistoryReplay)
	log.Printf("  relay:             %t", natsRelay != nil)
	log.Printf("  audit:             %t", auditStore != nil)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down...")
	if err := server.Shutdown(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if natsRelay != nil {
		natsRelay.Close()
	}
	if auditStore != nil {
		_ = auditStore.Close()
	}
	log.Println("goodbye")
}
