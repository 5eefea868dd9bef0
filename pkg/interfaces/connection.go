package interfaces

import "context"

// Connection is a persistent bidirectional text channel to one client.
// WriteText must be safe to call from multiple goroutines.
type Connection interface {
	// WriteText sends one text frame to the client.
	WriteText(frame string) error

	// Close closes the connection and releases its resources.
	Close() error

	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}

// EventHandler is the lifecycle contract the hosting transport invokes on
// a per-connection handler. The transport guarantees that for one
// connection these methods are never called concurrently, so inbound
// frames are processed strictly in arrival order.
type EventHandler interface {
	OnOpen(conn Connection)
	OnMessage(ctx context.Context, frame string)
	OnError(err error)
	OnClose()
}
