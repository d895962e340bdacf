package model

import "time"

// Status of a message as seen by this client.
type Status int32

const (
	StatusPending Status = iota // rendered locally, not yet confirmed
	StatusSent                  // the server assigned a durable id
	StatusRead                  // the peer read it
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

// Message kinds the gateway distinguishes.
const (
	KindText = "text"
	KindFile = "file"
)

// Message is one line of a conversation timeline. It is decoded straight from
// the envelope payload, so field tags follow the gateway's json names.
type Message struct {
	ID             string `json:"id"`      // durable id, empty while pending
	TempID         string `json:"temp_id"` // client id echoed by message_sent
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	Content        string `json:"content"`
	Kind           string `json:"message_type"`
	FileURL        string `json:"file_url"`
	FileName       string `json:"file_name"`
	IsEdited       bool   `json:"is_edited"`

	CreatedAt time.Time `json:"-"`
	Status    Status    `json:"-"`
}

func (m *Message) IsPending() bool { return m.Status == StatusPending }

// Key is the identity used for duplicate checks: the durable id once known,
// the temp id before.
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.TempID
}
