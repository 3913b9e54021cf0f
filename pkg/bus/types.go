package bus

import "time"

// InboundMessage is a message observed on a channel. Media holds attachment
// URLs in the order the channel reported them.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Media      []string          `json:"media,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a command sent to a channel on behalf of a request.
type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	Content   string `json:"content"`
	RequestID string `json:"request_id,omitempty"`
}

type MessageHandler func(InboundMessage) error
