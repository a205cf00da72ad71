package hub

import (
	"encoding/json"
	"time"
)

// Frame is the outbound message envelope pushed to live clients.
type Frame struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

func NewFrame(frameType string, data any) Frame {
	return Frame{
		Type:      frameType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// UpdateFrame is the push envelope for a refreshed quote on a topic.
func UpdateFrame(topic string, data any) Frame {
	return NewFrame(topic+"_update", data)
}

// Command is the minimal inbound protocol: an action plus one topic or a
// topic list.
type Command struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Topics accepts both `"data": "funds"` and `"data": ["funds","indices"]`.
func (c Command) Topics() []string {
	if len(c.Data) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(c.Data, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(c.Data, &many); err == nil {
		return many
	}
	return nil
}
