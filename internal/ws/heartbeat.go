package ws

import (
	"log"
	"time"
)

// heartbeatLoop periodically sweeps all connections. A connection that did
// not produce any traffic since the previous sweep is considered dead and is
// forcibly terminated with full disconnect cleanup; every other connection
// has its liveness flag reset and receives a ping frame, which the peer's
// pong flips back. This sweep is the sole mechanism for reaping half-open
// connections.
func (s *Server) heartbeatLoop() {
	interval := s.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepConnections()
		}
	}
}

// sweepConnections performs one heartbeat pass over the registry snapshot.
func (s *Server) sweepConnections() {
	for _, c := range s.conns.All() {
		if !c.Alive() {
			log.Printf("ws: terminating unresponsive client %s (connected %s ago)",
				c.ID, time.Since(c.ConnectedAt).Round(time.Second))
			s.Disconnect(c.ID)
			continue
		}

		c.resetAlive()
		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed for %s: %v", c.ID, err)
			s.Disconnect(c.ID)
		}
	}
}
