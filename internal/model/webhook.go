package model

// WebhookEnvelope is the inbound payload from the messaging platform:
// one or more events delivered together, possibly redelivered on retry.
type WebhookEnvelope struct {
	Destination string         `json:"destination"`
	Events      []WebhookEvent `json:"events"`
}

// WebhookEventType represents the type of webhook event.
type WebhookEventType string

const (
	EventMessage  WebhookEventType = "message"
	EventFollow   WebhookEventType = "follow"
	EventUnfollow WebhookEventType = "unfollow"
)

// WebhookEvent is a single event inside an envelope.
type WebhookEvent struct {
	Type       WebhookEventType `json:"type"`
	Timestamp  int64            `json:"timestamp"`
	ReplyToken string           `json:"replyToken,omitempty"`
	Source     EventSource      `json:"source"`
	Message    *InboundMessage  `json:"message,omitempty"`
}

// EventSource identifies the sender of an event.
type EventSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// InboundMessage is the message body of a message event. Its ID is stable
// across platform redeliveries and serves as the idempotency key.
type InboundMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// IdempotencyKey returns the stable key used to detect duplicate
// deliveries of this event, or "" when the event carries none.
func (e *WebhookEvent) IdempotencyKey() string {
	if e.Message != nil {
		return e.Message.ID
	}
	return ""
}
