package realtime

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/mohdafzal1700/Doc-Door-sub002/tools/decode"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/errs"
)

// Outbound envelope types.
const (
	TypeChatMessage          = "chat_message"
	TypeTypingIndicator      = "typing_indicator"
	TypeMarkAsRead           = "mark_as_read"
	TypeEditMessage          = "edit_message"
	TypeDeleteMessage        = "delete_message"
	TypeConnectionTest       = "connection_test"
	TypeMarkNotificationRead = "mark_notification_read"
	TypeMarkAllRead          = "mark_all_read"
	TypeGetNotifications     = "get_notifications"
)

// Inbound envelope types. chat_message and typing_indicator are shared with the
// outbound set.
const (
	TypeMessageSent           = "message_sent"
	TypeMessageEdited         = "message_edited"
	TypeMessageDeleted        = "message_deleted"
	TypeFileMessage           = "file_message"
	TypeFileUploaded          = "file_uploaded"
	TypeMessageRead           = "message_read"
	TypeConnectionEstablished = "connection_established"
	TypeConnectionConfirmed   = "connection_confirmed"
	TypeError                 = "error"
	TypeNotification          = "notification"
	TypeUnreadNotifications   = "unread_notifications"
	TypeMarkReadResponse      = "mark_read_response"
	TypeMarkAllReadResponse   = "mark_all_read_response"
)

var outboundTypes = map[string]struct{}{
	TypeChatMessage: {}, TypeTypingIndicator: {}, TypeMarkAsRead: {},
	TypeEditMessage: {}, TypeDeleteMessage: {}, TypeConnectionTest: {},
	TypeMarkNotificationRead: {}, TypeMarkAllRead: {}, TypeGetNotifications: {},
}

var inboundTypes = map[string]struct{}{
	TypeChatMessage: {}, TypeMessageSent: {}, TypeTypingIndicator: {},
	TypeMessageEdited: {}, TypeMessageDeleted: {}, TypeFileMessage: {},
	TypeFileUploaded: {}, TypeMessageRead: {}, TypeConnectionEstablished: {},
	TypeConnectionConfirmed: {}, TypeError: {}, TypeNotification: {},
	TypeUnreadNotifications: {}, TypeMarkReadResponse: {}, TypeMarkAllReadResponse: {},
}

func IsOutboundType(t string) bool { _, ok := outboundTypes[t]; return ok }
func IsInboundType(t string) bool  { _, ok := inboundTypes[t]; return ok }

// Outbound is the wire unit the client sends. It is only built by the command
// layer; the constructors below fill the fields each type requires.
type Outbound struct {
	Type           string `json:"type"`
	Message        string `json:"message,omitempty"`
	Content        string `json:"content,omitempty"`
	ReceiverID     string `json:"receiver_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	TempID         string `json:"temp_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	IsTyping       *bool  `json:"is_typing,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Timestamp      string `json:"timestamp"`
}

func stamp(now time.Time) string { return now.UTC().Format("2006-01-02T15:04:05.000Z07:00") }

// ChatMessage sends both message and content; older gateway builds read message.
func ChatMessage(conversationID, receiverID, content, tempID string, now time.Time) *Outbound {
	return &Outbound{
		Type: TypeChatMessage, Message: content, Content: content,
		ReceiverID: receiverID, ConversationID: conversationID, TempID: tempID,
		Timestamp: stamp(now),
	}
}

func TypingIndicator(conversationID, userID string, isTyping bool, now time.Time) *Outbound {
	return &Outbound{
		Type: TypeTypingIndicator, ConversationID: conversationID, UserID: userID,
		IsTyping: &isTyping, Timestamp: stamp(now),
	}
}

func MarkAsRead(conversationID, userID, messageID string, now time.Time) *Outbound {
	return &Outbound{
		Type: TypeMarkAsRead, MessageID: messageID, ConversationID: conversationID,
		UserID: userID, Timestamp: stamp(now),
	}
}

func EditMessage(conversationID, messageID, content string, now time.Time) *Outbound {
	return &Outbound{
		Type: TypeEditMessage, MessageID: messageID, Content: content,
		ConversationID: conversationID, Timestamp: stamp(now),
	}
}

func DeleteMessage(conversationID, messageID string, now time.Time) *Outbound {
	return &Outbound{
		Type: TypeDeleteMessage, MessageID: messageID, ConversationID: conversationID,
		Timestamp: stamp(now),
	}
}

func ConnectionTest(now time.Time) *Outbound {
	return &Outbound{Type: TypeConnectionTest, Timestamp: stamp(now)}
}

func MarkNotificationRead(notificationID string, now time.Time) *Outbound {
	return &Outbound{Type: TypeMarkNotificationRead, NotificationID: notificationID, Timestamp: stamp(now)}
}

func MarkAllRead(now time.Time) *Outbound {
	return &Outbound{Type: TypeMarkAllRead, Timestamp: stamp(now)}
}

func GetNotifications(limit int, now time.Time) *Outbound {
	return &Outbound{Type: TypeGetNotifications, Limit: limit, Timestamp: stamp(now)}
}

// Validate checks the fields mandated by the envelope type. It runs before any
// socket is touched so a bad envelope never costs a round trip.
func (o *Outbound) Validate() error {
	if o == nil {
		return errs.ErrArgs.WrapMsg("nil envelope")
	}
	if !IsOutboundType(o.Type) {
		return errs.ErrArgs.WrapMsg("unknown envelope type", "type", o.Type)
	}
	if o.Timestamp == "" {
		return errs.ErrArgs.WrapMsg("timestamp is required", "type", o.Type)
	}
	missing := func(field string) error {
		return errs.ErrArgs.WrapMsg(field+" is required", "type", o.Type)
	}
	switch o.Type {
	case TypeChatMessage:
		if strings.TrimSpace(o.Content) == "" {
			return missing("content")
		}
		if o.ReceiverID == "" {
			return missing("receiver_id")
		}
		if o.ConversationID == "" {
			return missing("conversation_id")
		}
	case TypeTypingIndicator:
		if o.ConversationID == "" {
			return missing("conversation_id")
		}
		if o.UserID == "" {
			return missing("user_id")
		}
		if o.IsTyping == nil {
			return missing("is_typing")
		}
	case TypeMarkAsRead:
		if o.MessageID == "" {
			return missing("message_id")
		}
		if o.ConversationID == "" {
			return missing("conversation_id")
		}
	case TypeEditMessage:
		if o.MessageID == "" {
			return missing("message_id")
		}
		if strings.TrimSpace(o.Content) == "" {
			return missing("content")
		}
		if o.ConversationID == "" {
			return missing("conversation_id")
		}
	case TypeDeleteMessage:
		if o.MessageID == "" {
			return missing("message_id")
		}
		if o.ConversationID == "" {
			return missing("conversation_id")
		}
	case TypeMarkNotificationRead:
		if o.NotificationID == "" {
			return missing("notification_id")
		}
	case TypeGetNotifications:
		if o.Limit < 0 {
			return errs.ErrArgs.WrapMsg("limit must not be negative", "limit", o.Limit)
		}
	}
	return nil
}

// Encode validates and serializes the envelope.
func (o *Outbound) Encode() ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, errs.ErrSerialize.WrapMsg(err.Error(), "type", o.Type)
	}
	return data, nil
}

// Inbound is a parsed server envelope. Fields keeps the decoded object as
// received and is never modified after parsing.
type Inbound struct {
	Type   string
	Fields map[string]any
	Raw    json.RawMessage
}

// ParseInbound decodes one frame. Numbers are kept as json.Number so large
// server ids survive intact.
func ParseInbound(data []byte) (Inbound, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Inbound{}, errs.ErrProtocol.WrapMsg("invalid json", "err", err)
	}
	if fields == nil {
		return Inbound{}, errs.ErrProtocol.WrapMsg("envelope is not an object")
	}
	typ, _ := fields["type"].(string)
	if typ == "" {
		return Inbound{}, errs.ErrProtocol.WrapMsg("missing type")
	}
	if !IsInboundType(typ) {
		return Inbound{}, errs.ErrProtocol.WrapMsg("unknown type", "type", typ)
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Inbound{Type: typ, Fields: fields, Raw: raw}, nil
}

// Get returns the first non-empty string among keys, looking into a nested
// "message" or "data" object when the top level does not have it.
func (in Inbound) Get(keys ...string) string {
	if s := decode.FirstString(in.Fields, keys...); s != "" {
		return s
	}
	for _, nested := range []string{"message", "data"} {
		if m, ok := decode.ReadMap(in.Fields, nested); ok {
			if s := decode.FirstString(m, keys...); s != "" {
				return s
			}
		}
	}
	return ""
}

// Text is the human readable part of an error envelope.
func (in Inbound) Text() string {
	return in.Get("message", "error", "detail", "reason")
}

var authFailureMarkers = []string{"auth", "token", "unauthori", "forbidden", "not authenticated", "expired"}

// IsAuthFailureText reports whether an error text from the gateway describes an
// authentication failure.
func IsAuthFailureText(text string) bool {
	t := strings.ToLower(text)
	for _, m := range authFailureMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}
