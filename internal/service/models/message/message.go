package message

import (
	"github.com/google/uuid"
)

const (
	// SampleKind is the kind used by the CLI when scheduling a sample message.
	SampleKind = "sample_kind"
	// SamplePayload is the payload used by the CLI when scheduling a sample message.
	SamplePayload = "sample_payload"
)

// Message represents a message waiting in the delayed queue.
// All timestamps are unix epoch seconds.
type Message struct {
	Key                  string `json:"key"`
	Kind                 string `json:"kind"`
	Payload              []byte `json:"payload"`
	ScheduledAt          int64  `json:"scheduled_at"`
	ScheduledAtInitially int64  `json:"scheduled_at_initially"`
	CreatedAt            int64  `json:"created_at"`
}

// New creates a message created at now and due at scheduledAt.
// An empty key is replaced by a random one.
func New(key, kind string, payload []byte, scheduledAt, now int64) Message {
	if key == "" {
		key = uuid.NewString()
	}

	return Message{
		Key:                  key,
		Kind:                 kind,
		Payload:              payload,
		ScheduledAt:          scheduledAt,
		ScheduledAtInitially: scheduledAt,
		CreatedAt:            now,
	}
}

// Sample creates a sample message due immediately.
func Sample(now int64) Message {
	return New("", SampleKind, []byte(SamplePayload), now, now)
}

// Identity returns the identity tuple of the message.
func (m Message) Identity() Identity {
	return Identity{
		Key:       m.Key,
		Kind:      m.Kind,
		CreatedAt: m.CreatedAt,
	}
}

// IsDue reports whether the message can be leased at now.
func (m Message) IsDue(now int64) bool {
	return m.ScheduledAt <= now
}

// Identity is the unique handle of a message generation.
type Identity struct {
	Key       string `json:"key"`
	Kind      string `json:"kind"`
	CreatedAt int64  `json:"created_at"`
}

// Ack is an acknowledgement request.
// FencingToken is the scheduled_at value returned by the poll that leased the message.
// A nil token deletes the message regardless of its current lease.
type Ack struct {
	Identity
	FencingToken *int64 `json:"scheduled_at,omitempty"`
}

// NewAck creates a fenced acknowledgement for a leased message.
func NewAck(m Message) Ack {
	token := m.ScheduledAt

	return Ack{
		Identity:     m.Identity(),
		FencingToken: &token,
	}
}
