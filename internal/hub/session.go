package hub

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Inbound actions and outbound frame types of the command protocol.
const (
	ActionSubscribe        = "subscribe"
	ActionUnsubscribe      = "unsubscribe"
	ActionPing             = "ping"
	ActionGetSubscriptions = "get_subscriptions"

	FrameSubscribed    = "subscribed"
	FrameUnsubscribed  = "unsubscribed"
	FramePong          = "pong"
	FrameSubscriptions = "subscriptions"
	FrameError         = "error"
)

// Run is the per-client read loop: it decodes inbound commands, refreshes the
// heartbeat on every successful read, and returns when the transport errors
// or closes. Meant to run inside Connection's fn.
func (h *Hub) Run(c *Client) error {
	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			// Normal close and broken pipe both end the session the same way;
			// the deferred disconnect in Connection releases everything.
			return nil
		}
		h.Touch(c.ID)
		h.handleCommand(c, data)
	}
}

func (h *Hub) handleCommand(c *Client, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.SendPersonal(c.ID, NewFrame(FrameError, map[string]string{"reason": "invalid command"}))
		return
	}

	switch cmd.Action {
	case ActionSubscribe:
		var accepted []string
		for _, topic := range cmd.Topics() {
			if h.Subscribe(c.ID, topic) {
				accepted = append(accepted, topic)
			}
		}
		h.SendPersonal(c.ID, NewFrame(FrameSubscribed, map[string]any{"topics": accepted}))
	case ActionUnsubscribe:
		var removed []string
		for _, topic := range cmd.Topics() {
			if h.Unsubscribe(c.ID, topic) {
				removed = append(removed, topic)
			}
		}
		h.SendPersonal(c.ID, NewFrame(FrameUnsubscribed, map[string]any{"topics": removed}))
	case ActionPing:
		h.SendPersonal(c.ID, NewFrame(FramePong, nil))
	case ActionGetSubscriptions:
		h.SendPersonal(c.ID, NewFrame(FrameSubscriptions, map[string]any{"topics": h.Subscriptions(c.ID)}))
	default:
		h.log.Debug("unknown action", zap.String("client_id", c.ID), zap.String("action", cmd.Action))
		h.SendPersonal(c.ID, NewFrame(FrameError, map[string]string{"reason": "unknown action"}))
	}
}
