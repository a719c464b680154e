// Package memory provides an in-process transport: two connected endpoints
// exchanging whole messages over buffered channels.
package memory

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned after either endpoint of the pipe was closed
var ErrClosed = errors.New("memory transport closed")

// DefaultBuffer is the number of messages each direction can hold
const DefaultBuffer = 16

type side struct {
	done chan struct{}
	once sync.Once
}

func (s *side) close() {
	s.once.Do(func() { close(s.done) })
}

// Endpoint is one end of a pipe
type Endpoint struct {
	in     chan []byte
	out    chan []byte
	local  *side
	remote *side
	name   string
}

// NewPipe returns two connected endpoints named a and b
func NewPipe(a, b string) (*Endpoint, *Endpoint) {
	ab := make(chan []byte, DefaultBuffer)
	ba := make(chan []byte, DefaultBuffer)
	sa := &side{done: make(chan struct{})}
	sb := &side{done: make(chan struct{})}

	return &Endpoint{in: ba, out: ab, local: sa, remote: sb, name: a},
		&Endpoint{in: ab, out: ba, local: sb, remote: sa, name: b}
}

// Name returns the endpoint name given to NewPipe
func (e *Endpoint) Name() string { return e.name }

// Send delivers a copy of msg to the other endpoint. peerID is ignored:
// a pipe connects exactly two peers.
func (e *Endpoint) Send(ctx context.Context, peerID string, msg []byte) error {
	select {
	case <-e.local.done:
		return ErrClosed
	case <-e.remote.done:
		return ErrClosed
	default:
	}

	select {
	case e.out <- bytes.Clone(msg):
		return nil
	case <-e.local.done:
		return ErrClosed
	case <-e.remote.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for the next message. Messages sent before the peer closed
// are still delivered.
func (e *Endpoint) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-e.in:
		return msg, nil
	case <-e.local.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.remote.done:
		select {
		case msg := <-e.in:
			return msg, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Close closes this endpoint; the peer observes ErrClosed once drained
func (e *Endpoint) Close() error {
	e.local.close()
	return nil
}
