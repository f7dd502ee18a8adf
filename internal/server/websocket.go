package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"lookbook/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon binds to loopback; cross-origin pages cannot reach it.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 45 * time.Second
	wsSendBuffer   = 64
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// handleWebSocket streams a user's generation progress events. The
// subscription is scoped to the X-User-ID header (or ?user= for browser
// clients that cannot set headers on WebSocket upgrades).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		user = r.URL.Query().Get("user")
	}
	if user == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	sub := s.bus.Subscribe(user, wsSendBuffer)

	s.logger.Debug("websocket connected", logging.String(logging.FieldUserID, user))

	done := make(chan struct{})
	go client.writePump(done)
	go func() {
		defer close(client.send)
		for {
			select {
			case <-done:
				return
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				payload, err := json.Marshal(event)
				if err != nil {
					continue
				}
				select {
				case client.send <- payload:
				default:
					// Slow client: drop rather than stall the bridge.
				}
			}
		}
	}()

	client.readPump(done)
	sub.Close()
	s.logger.Debug("websocket disconnected", logging.String(logging.FieldUserID, user))
}

// readPump discards inbound frames and detects disconnects.
func (c *wsClient) readPump(done chan struct{}) {
	defer func() {
		close(done)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump(done chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
