// Package hub is the live-push core: a registry of connected clients, their
// topic subscriptions, and message fan-out with heartbeat-based liveness.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCapacity is returned by Connection when the registry is full; the
// transport has already been closed with a capacity reason by then.
var ErrCapacity = errors.New("hub: connection capacity exceeded")

type Config struct {
	MaxConnections    int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Hub owns every live client for its lifetime. One mutex guards the client
// registry, the topic index, and all client state so both sides of the
// subscription mapping always move together.
type Hub struct {
	cfg Config
	log *zap.Logger
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
	topics  map[string]map[string]struct{}

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 256
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 90 * time.Second
	}
	return &Hub{
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		clients: make(map[string]*Client),
		topics:  make(map[string]map[string]struct{}),
	}
}

// Connection is the scoped acquisition path: it registers a client for the
// transport, runs fn with it, and on every exit path unregisters the client,
// drops its subscription-index entries, and releases the transport exactly
// once. At capacity the transport is closed with a capacity reason and fn
// never runs.
func (h *Hub) Connection(t Transport, fn func(*Client) error) error {
	c := &Client{
		ID:            uuid.NewString(),
		transport:     t,
		state:         StateConnecting,
		subscriptions: make(map[string]struct{}),
	}

	h.mu.Lock()
	if len(h.clients) >= h.cfg.MaxConnections {
		h.mu.Unlock()
		c.closeTransport(CloseCapacityExceeded, "capacity exceeded")
		return ErrCapacity
	}
	now := h.now()
	c.state = StateConnected
	c.connectedAt = now
	c.lastHeartbeat = now
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.log.Debug("client connected", zap.String("client_id", c.ID))
	defer h.disconnect(c.ID, CloseNormal, "closed")
	return fn(c)
}

// Subscribe adds the client to a topic, updating both sides of the index in
// one critical section. Fails when the client is absent or not connected.
func (h *Hub) Subscribe(clientID, topic string) bool {
	if topic == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok || c.state != StateConnected {
		return false
	}
	c.subscriptions[topic] = struct{}{}
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[string]struct{})
		h.topics[topic] = set
	}
	set[clientID] = struct{}{}
	return true
}

// Unsubscribe removes the client from a topic. Removing the last subscriber
// deletes the topic key entirely; no empty sets linger.
func (h *Hub) Unsubscribe(clientID, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return false
	}
	if _, subscribed := c.subscriptions[topic]; !subscribed {
		return false
	}
	delete(c.subscriptions, topic)
	h.dropFromTopic(topic, clientID)
	return true
}

// caller holds h.mu
func (h *Hub) dropFromTopic(topic, clientID string) {
	set, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(set, clientID)
	if len(set) == 0 {
		delete(h.topics, topic)
	}
}

// Broadcast serializes the frame once and sends it to every subscriber of
// topic (every client when topic is empty) concurrently. A failed send
// disconnects that client only. Returns the successful-send count.
func (h *Hub) Broadcast(frame Frame, topic string) int {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.log.Warn("broadcast marshal failed", zap.Error(err))
		return 0
	}

	h.mu.Lock()
	var targets []*Client
	if topic == "" {
		targets = make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			if c.state == StateConnected {
				targets = append(targets, c)
			}
		}
	} else {
		for id := range h.topics[topic] {
			if c, ok := h.clients[id]; ok && c.state == StateConnected {
				targets = append(targets, c)
			}
		}
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	var sentMu sync.Mutex
	sent := 0
	for _, c := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.deliver(c, payload) {
				sentMu.Lock()
				sent++
				sentMu.Unlock()
			}
		}()
	}
	wg.Wait()
	return sent
}

// SendPersonal delivers one frame to one client.
func (h *Hub) SendPersonal(clientID string, frame Frame) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.log.Warn("send marshal failed", zap.Error(err))
		return false
	}
	h.mu.Lock()
	c, ok := h.clients[clientID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	return h.deliver(c, payload)
}

// deliver writes to one client; a transport failure disconnects that client
// and never touches the others. A successful outbound write refreshes the
// heartbeat.
func (h *Hub) deliver(c *Client, payload []byte) bool {
	if err := c.write(payload); err != nil {
		h.log.Debug("send failed, disconnecting", zap.String("client_id", c.ID), zap.Error(err))
		h.disconnect(c.ID, CloseNormal, "send failed")
		return false
	}
	h.Touch(c.ID)
	return true
}

// Touch refreshes a client's liveness timestamp.
func (h *Hub) Touch(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.lastHeartbeat = h.now()
	}
}

// Subscriptions returns the client's topics, sorted.
func (h *Hub) Subscriptions(clientID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clients returns a snapshot of every registered client.
func (h *Hub) Clients() []ClientInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ClientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		subs := make([]string, 0, len(c.subscriptions))
		for t := range c.subscriptions {
			subs = append(subs, t)
		}
		sort.Strings(subs)
		out = append(out, ClientInfo{
			ID:            c.ID,
			State:         c.state,
			Subscriptions: subs,
			ConnectedAt:   c.connectedAt,
			LastHeartbeat: c.lastHeartbeat,
		})
	}
	return out
}

// Len reports the current client count.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Disconnect force-closes one client.
func (h *Hub) Disconnect(clientID string) {
	h.disconnect(clientID, CloseNormal, "disconnected")
}

func (h *Hub) disconnect(clientID string, code int, reason string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if !ok {
		h.mu.Unlock()
		return
	}
	c.state = StateDisconnecting
	for topic := range c.subscriptions {
		h.dropFromTopic(topic, clientID)
	}
	c.subscriptions = make(map[string]struct{})
	delete(h.clients, clientID)
	c.state = StateDisconnected
	h.mu.Unlock()

	c.closeTransport(code, reason)
	h.log.Debug("client disconnected", zap.String("client_id", clientID), zap.String("reason", reason))
}

// StartHeartbeat launches the liveness sweep: every interval it disconnects
// clients whose last heartbeat is older than the timeout. Starts at most
// once; Stop awaits the loop's exit.
func (h *Hub) StartHeartbeat(ctx context.Context) {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	if h.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				h.sweep()
			}
		}
	}()
}

func (h *Hub) sweep() {
	cutoff := h.now().Add(-h.cfg.HeartbeatTimeout)
	h.mu.Lock()
	var stale []string
	for id, c := range h.clients {
		if !c.lastHeartbeat.After(cutoff) {
			stale = append(stale, id)
		}
	}
	h.mu.Unlock()
	for _, id := range stale {
		h.log.Info("heartbeat timeout", zap.String("client_id", id))
		h.disconnect(id, CloseHeartbeatTimeout, "heartbeat timeout")
	}
}

// StopHeartbeat cancels the sweep loop and waits for it. Idempotent.
func (h *Hub) StopHeartbeat() {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
	h.done = nil
}

// Shutdown stops the sweep and disconnects every client.
func (h *Hub) Shutdown() {
	h.StopHeartbeat()
	h.mu.Lock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.disconnect(id, CloseNormal, "server shutdown")
	}
}
