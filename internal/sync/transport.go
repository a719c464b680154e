package sync

import "context"

//go:generate moq -out transport_mock.go . Transport

// Transport moves whole messages between two peers. Framing, pairing and
// encryption in transit belong to the implementation.
type Transport interface {
	// Send delivers one message to peerID
	Send(ctx context.Context, peerID string, msg []byte) error

	// Receive blocks until the next message arrives or ctx is done
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the underlying connection
	Close() error
}
