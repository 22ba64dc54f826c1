package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 4096
	sendBufferSize = 128
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrBufferExceeded   = errors.New("connection buffer exceeded")
)

// Connection is one authenticated push session (one browser tab). Writes go
// through a buffered channel drained by a single write loop.
type Connection struct {
	ID     string
	UserID uint
	Role   models.Role

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

func NewConnection(userID uint, role models.Role, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		close:  make(chan struct{}),
	}
}

// Send enqueues payload. A slow client whose buffer is full gets disconnected
// rather than stalling fan-out.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return ErrConnectionClosed
	default:
	}
	select {
	case <-c.close:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return ErrBufferExceeded
	}
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.close
}

// Close terminates the connection and stops the write loop.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) sendJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(b)
}

// readLoop handles subscribe/unsubscribe frames until the socket fails.
func (c *Connection) readLoop(r *Router) {
	defer func() {
		r.Detach(c)
		c.Close(websocket.CloseNormalClosure, "")
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame models.ClientFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}
		ack := models.ServerAck{Type: frame.Action, Topic: frame.Topic}
		switch frame.Action {
		case models.ActionSubscribe:
			if err := r.Subscribe(c, frame.Topic); err != nil {
				ack.Type = "error"
				ack.Error = err.Error()
			}
		case models.ActionUnsubscribe:
			r.Unsubscribe(c, frame.Topic)
		default:
			ack.Type = "error"
			ack.Error = "unknown action"
		}
		_ = c.sendJSON(ack)
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(kind int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, payload)
}
