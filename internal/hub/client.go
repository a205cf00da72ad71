package hub

import (
	"sync"
	"time"
)

// State is a live client's lifecycle phase. Disconnected is terminal.
type State string

const (
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateDisconnected  State = "disconnected"
)

// Transport is one already-accepted bidirectional text-frame connection.
// WriteMessage need not be goroutine-safe; the owning client serializes
// writes. Close must tolerate repeated calls.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close(code int, reason string) error
}

// Close codes surfaced to rejected or evicted clients.
const (
	CloseNormal           = 1000
	CloseCapacityExceeded = 1013
	CloseHeartbeatTimeout = 4000
)

// Client is one live connection, exclusively owned by the hub between
// registration and disconnect. Mutable fields are guarded by the hub mutex;
// writeMu serializes transport writes so per-client delivery order follows
// send-call order.
type Client struct {
	ID            string
	transport     Transport
	state         State
	subscriptions map[string]struct{}
	connectedAt   time.Time
	lastHeartbeat time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Snapshot of a client for API responses.
type ClientInfo struct {
	ID            string    `json:"client_id"`
	State         State     `json:"state"`
	Subscriptions []string  `json:"subscriptions"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// closeTransport releases the underlying connection exactly once across all
// exit paths.
func (c *Client) closeTransport(code int, reason string) {
	c.closeOnce.Do(func() {
		_ = c.transport.Close(code, reason)
	})
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.transport.WriteMessage(data)
}
