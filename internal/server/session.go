package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cryptoview/market-data/internal/gateway"
)

// Client-facing protocol errors.
const (
	errNotJSON     = "Message is not JSON format"
	errMissingKeys = "In message not needed keys"
	errBadAction   = "Bad 'action' value"
)

const maxMessageSize = 4096

// request is one inbound client message.
type request struct {
	Action string `json:"action"`
	DataID string `json:"data_id"`
}

// session is one websocket client. Deliver enqueues on a buffered channel;
// the write pump drains it in order. A session whose queue overflows is
// closed rather than allowed to stall fan-out.
type session struct {
	id   string
	srv  *server
	conn *websocket.Conn

	send chan gateway.Outbound

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(s *server, conn *websocket.Conn) *session {
	buffer := s.cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &session{
		id:   uuid.NewString(),
		srv:  s,
		conn: conn,
		send: make(chan gateway.Outbound, buffer),
		done: make(chan struct{}),
	}
}

// Deliver implements gateway.Session.
func (c *session) Deliver(msg gateway.Outbound) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.srv.logger.Warn("session send queue full, dropping client", "session", c.id)
		c.close()
	}
}

// close tears the connection down once. The read pump notices the closed
// socket and unregisters the session.
func (c *session) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump reads client requests until the socket fails, then unregisters.
func (c *session) readPump() {
	defer func() {
		c.srv.unregister(c)
		c.close()
	}()

	pongWait := c.srv.cfg.PongTimeout
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.srv.logger.Warn("session read failed", "session", c.id, "error", err)
			}
			return
		}
		c.handle(message)
	}
}

// handle dispatches one inbound request to the demand table.
func (c *session) handle(message []byte) {
	var req request
	if err := json.Unmarshal(message, &req); err != nil {
		c.Deliver(gateway.Outbound{Error: errNotJSON})
		return
	}
	if req.Action == "" || req.DataID == "" {
		c.Deliver(gateway.Outbound{Error: errMissingKeys})
		return
	}

	switch req.Action {
	case "sub":
		c.srv.table.Attach(c, req.DataID)
	case "unsub":
		c.srv.table.Detach(c, req.DataID)
	default:
		c.Deliver(gateway.Outbound{Error: errBadAction})
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *session) writePump() {
	writeWait := c.srv.cfg.WriteTimeout
	if writeWait <= 0 {
		writeWait = 2 * time.Second
	}
	pongWait := c.srv.cfg.PongTimeout
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	pingPeriod := pongWait * 9 / 10

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				c.srv.logger.Error("marshal outbound", "session", c.id, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
