package ws

import (
	"log"
	"time"

	"github.com/gobwas/ws"
)

// Epoll readiness only fires for sockets that deliver bytes. A client whose
// network died silently (pulled cable, suspended laptop) never becomes
// readable, so a background sweep pings every live connection and evicts
// the ones whose last activity has fallen behind the configured interval
// plus timeout.

// startHeartbeat launches the sweep goroutine. Cadence and grace come from
// ServerConfig.HeartbeatInterval and ServerConfig.HeartbeatTimeout; the
// goroutine exits when the server's done channel closes.
func (s *Server) startHeartbeat() {
	go func() {
		ticker := time.NewTicker(s.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.sweepStaleConnections()
			}
		}
	}()
}

// sweepStaleConnections walks the live connections once. A connection with
// no successful read inside HeartbeatInterval + HeartbeatTimeout is
// evicted; the rest receive a protocol-level ping frame (opcode 0x9),
// which browsers answer with a pong automatically.
func (s *Server) sweepStaleConnections() {
	maxIdle := s.config.HeartbeatInterval + s.config.HeartbeatTimeout
	now := time.Now()

	for _, c := range s.conns.All() {
		idle := now.Sub(c.LastPing)
		if idle > maxIdle {
			log.Printf("ws: evicting stale session=%s user=%s idle=%s",
				c.ID, c.UserID, idle.Round(time.Second))
			s.RemoveConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed session=%s: %v", c.ID, err)
			s.RemoveConnection(c)
		}
	}
}

// WritePing sends a ping control frame on the connection. The write mutex
// keeps it from interleaving with an in-flight application frame.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}
