package socket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer    = 100
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

// conn owns the write side of one websocket. All writes go through its
// writer goroutine.
type conn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writer()
	return c
}

// enqueue hands data to the writer without blocking. It reports false when
// the buffer is full or the conn is closed.
func (c *conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// enqueueWait is enqueue for callers that may outrun the writer, such as a
// resume replay. It gives up once the conn is closed.
func (c *conn) enqueueWait(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) writer() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("Error writing message", "remote", c.ws.RemoteAddr(), "error", err)
				c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.ws.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.ws.Close()
			return
		}
	}
}

// flush writes whatever is still buffered and sends a close frame.
func (c *conn) flush() {
	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
			return
		}
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
