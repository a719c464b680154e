// Package websocket carries sync messages over a gorilla/websocket
// connection, one text frame per message.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned once the connection is closed or broken
var ErrClosed = errors.New("websocket transport closed")

const (
	// DefaultWriteTimeout bounds a write when ctx carries no deadline
	DefaultWriteTimeout = 10 * time.Second
	// MaxMessageSize limits a single incoming frame
	MaxMessageSize = 32 << 20
	incomingBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Conn is a sync transport over one websocket connection
type Conn struct {
	readErr   error
	ws        *websocket.Conn
	incoming  chan []byte
	readDone  chan struct{}
	closed    chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to a medpassd sync endpoint
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return newConn(ws), nil
}

// Upgrade turns an HTTP request into a sync transport. On failure the
// upgrader has already written an HTTP error response.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return newConn(ws), nil
}

func newConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(MaxMessageSize)

	c := &Conn{
		ws:       ws,
		incoming: make(chan []byte, incomingBuffer),
		readDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go c.readPump()
	return c
}

// readPump владеет чтением: gorilla допускает только одного читателя
func (c *Conn) readPump() {
	defer close(c.readDone)

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}

		select {
		case c.incoming <- msg:
		case <-c.closed:
			return
		}
	}
}

// Send writes msg as one text frame. peerID is ignored: the connection
// already names the peer.
func (c *Conn) Send(ctx context.Context, peerID string, msg []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return nil
}

// Receive returns the next frame. Frames read before the connection broke
// are still delivered.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.readDone:
		select {
		case msg := <-c.incoming:
			return msg, nil
		default:
		}
		if websocket.IsCloseError(c.readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %w", ErrClosed, c.readErr)
	}
}

// Close sends a close frame and releases the connection
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}
