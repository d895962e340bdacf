package message

import (
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/mohdafzal1700/Doc-Door-sub002/module/chat/model"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/realtime"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/decode"
)

// HandleEvent applies one bus event to the timeline. Events for another
// conversation and types that do not touch messages are Ignored.
func (t *Timeline) HandleEvent(ev realtime.ChatEvent, selfID string) (Outcome, error) {
	if ev.ConversationID != t.conversationID {
		return Ignored, nil
	}
	in := ev.Data
	switch ev.MessageType {
	case realtime.TypeMessageSent:
		m, err := ParseMessage(in.Fields)
		if err != nil {
			return Ignored, err
		}
		return t.Confirm(m), nil

	case realtime.TypeChatMessage, realtime.TypeFileMessage:
		m, err := ParseMessage(in.Fields)
		if err != nil {
			return Ignored, err
		}
		if ev.MessageType == realtime.TypeFileMessage {
			m.Kind = model.KindFile
		}
		return t.Receive(m, selfID), nil

	case realtime.TypeMessageEdited:
		return t.ApplyEdit(in.Get("message_id", "id"), in.Get("content", "new_content")), nil

	case realtime.TypeMessageDeleted:
		return t.ApplyDelete(in.Get("message_id", "id")), nil

	case realtime.TypeMessageRead:
		return t.ApplyRead(in.Get("message_id", "id")), nil
	}
	return Ignored, nil
}

// ParseMessage decodes a message payload. The gateway sends the message either
// at the top level or nested under "message"; the sender either as sender_id
// or as a sender object.
func ParseMessage(fields map[string]any) (model.Message, error) {
	src := fields
	if nested, ok := decode.ReadMap(fields, "message"); ok {
		src = nested
	}
	m, err := decode.DecodeMap[model.Message](src)
	if err != nil {
		return model.Message{}, pkgerrors.Wrap(err, "decode message")
	}
	if m.ID == "" {
		m.ID = decode.FirstString(src, "message_id")
	}
	if m.TempID == "" {
		m.TempID = decode.FirstString(fields, "temp_id")
	}
	if m.Content == "" {
		m.Content = decode.FirstString(src, "message")
	}
	if m.SenderID == "" {
		m.SenderID = decode.FirstString(src, "sender", "user_id")
		if sender, ok := decode.ReadMap(src, "sender"); ok && m.SenderID == "" {
			m.SenderID = decode.FirstString(sender, "id", "user_id")
		}
	}
	if m.ConversationID == "" {
		m.ConversationID = decode.FirstString(fields, "conversation_id")
	}
	for _, k := range []string{"created_at", "timestamp"} {
		if s := decode.FirstString(src, k); s != "" {
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				m.CreatedAt = ts
				break
			}
		}
	}
	if m.FileURL != "" && m.Kind == "" {
		m.Kind = model.KindFile
	}
	return *m, nil
}
