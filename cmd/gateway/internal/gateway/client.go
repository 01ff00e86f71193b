package gateway

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
)

const (
	maxMessageSize = 512 * 1024
)

// outbound frames scoped to a room carry the membership generation they
// were queued under; the writer drops them once that membership ends.
type outbound struct {
	room string
	gen  uint64
	data []byte
}

type ClientAdapter struct {
	conn    net.Conn
	service *Service
	send    chan outbound
	logger  *zap.Logger

	id   string
	name string

	mu     sync.Mutex
	room   string
	gen    uint64
	closed bool

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, svc *Service, logger *zap.Logger) *ClientAdapter {
	id, name := svc.NewIdentity()
	return &ClientAdapter{
		conn:       conn,
		service:    svc,
		send:       make(chan outbound, 256),
		logger:     logger.With(zap.String("session", id)),
		id:         id,
		name:       name,
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Start registers the session and spins up its pumps.
func (c *ClientAdapter) Start() {
	go c.writePump()
	if err := c.service.Connect(c); err != nil {
		c.logger.Error("Failed to open session", zap.Error(err))
		c.Close()
		return
	}
	go c.readPump()
}

func (c *ClientAdapter) ID() string   { return c.id }
func (c *ClientAdapter) Name() string { return c.name }

// Close only closes the channel; writePump closes the conn.
func (c *ClientAdapter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SetRoom starts a new membership generation, even when rejoining the same room.
func (c *ClientAdapter) SetRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
	c.gen++
}

func (c *ClientAdapter) stale(msg outbound) bool {
	if msg.room == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return msg.room != c.room || msg.gen != c.gen
}

func (c *ClientAdapter) SendJSON(msgType string, v interface{}) {
	b, err := protocol.Encode(msgType, v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	c.SendBytes("", b)
}

func (c *ClientAdapter) SendBytes(room string, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	msg := outbound{room: room, data: b}
	if room != "" {
		if room != c.room {
			return
		}
		msg.gen = c.gen
	}
	select {
	case c.send <- msg:
	default:
		// Drop message if buffer full (Backpressure)
		c.logger.Debug("Dropping frame, send buffer full")
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.service.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		case ws.OpPing:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		case ws.OpText:
			c.service.Handle(c, payload)
		default:
			c.logger.Warn("Ignoring unsupported frame",
				zap.String("opcode", opName(header.OpCode)),
				zap.Int64("size", header.Length))
		}
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				c.conn.Write(ws.CompiledClose)
				return
			}
			if c.stale(msg) {
				continue
			}
			if err := wsutil.WriteServerText(c.conn, msg.data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

func opName(op ws.OpCode) string {
	switch op {
	case ws.OpBinary:
		return "binary"
	case ws.OpContinuation:
		return "continuation"
	}
	return fmt.Sprintf("0x%x", byte(op))
}
