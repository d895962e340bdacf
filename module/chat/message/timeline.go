// Package message keeps the client-side list of a conversation's messages and
// merges optimistic sends with what the gateway later confirms.
package message

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
	"github.com/mohdafzal1700/Doc-Door-sub002/module/chat/model"
)

// DefaultEchoWindow bounds the content+sender match used when the gateway
// does not echo temp_id, and the duplicate check on inbound messages.
const DefaultEchoWindow = 5 * time.Second

// Outcome says what a merge did to the timeline.
type Outcome int

const (
	Ignored   Outcome = iota // not for this timeline, or nothing to do
	Appended                 // added at the end
	Replaced                 // swapped in for a pending message, position kept
	Duplicate                // already present, discarded
	Updated                  // an existing message changed (edit, read)
	Removed                  // an existing message was deleted
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	case Duplicate:
		return "duplicate"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

type Option func(*Timeline)

// WithEchoWindow overrides DefaultEchoWindow.
func WithEchoWindow(d time.Duration) Option { return func(t *Timeline) { t.window = d } }

// WithClock sets the time source used for messages that carry no timestamp.
func WithClock(now func() time.Time) Option { return func(t *Timeline) { t.now = now } }

// Timeline is the ordered message list of one conversation. It is safe for
// concurrent use; bus handlers and UI code may share it.
type Timeline struct {
	conversationID string
	window         time.Duration
	now            func() time.Time
	log            *zap.Logger

	mu   sync.Mutex
	msgs []*model.Message
}

func NewTimeline(conversationID string, opts ...Option) *Timeline {
	t := &Timeline{
		conversationID: conversationID,
		window:         DefaultEchoWindow,
		now:            time.Now,
		log:            logger.Named("timeline").With(zap.String("conversation_id", conversationID)),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Timeline) ConversationID() string { return t.conversationID }

// AddPending inserts the optimistic copy of a message the user just sent.
func (t *Timeline) AddPending(tempID, senderID, content string, at time.Time) model.Message {
	m := &model.Message{
		TempID:         tempID,
		ConversationID: t.conversationID,
		SenderID:       senderID,
		Content:        content,
		Kind:           model.KindText,
		CreatedAt:      at,
		Status:         model.StatusPending,
	}
	t.mu.Lock()
	t.msgs = append(t.msgs, m)
	t.mu.Unlock()
	return *m
}

// Rollback removes a pending message whose send failed and returns its content
// so the caller can put it back in the input box.
func (t *Timeline) Rollback(tempID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(func(m *model.Message) bool { return m.IsPending() && m.TempID == tempID })
	if i < 0 {
		return "", false
	}
	content := t.msgs[i].Content
	t.removeLocked(i)
	return content, true
}

// Confirm merges a message_sent confirmation. Matching order: durable id
// already present, pending message with the same temp id, pending message
// with the same sender and content inside the echo window. Anything else is
// appended.
func (t *Timeline) Confirm(in model.Message) Outcome {
	in = t.normalize(in)
	in.Status = model.StatusSent

	t.mu.Lock()
	defer t.mu.Unlock()
	if in.ID != "" && t.indexLocked(byID(in.ID)) >= 0 {
		return Duplicate
	}
	i := -1
	if in.TempID != "" {
		i = t.indexLocked(func(m *model.Message) bool { return m.IsPending() && m.TempID == in.TempID })
	}
	if i < 0 {
		i = t.indexLocked(func(m *model.Message) bool {
			return m.IsPending() &&
				(in.SenderID == "" || m.SenderID == in.SenderID) &&
				sameContent(m.Content, in.Content) &&
				t.within(m.CreatedAt, in.CreatedAt)
		})
		if i >= 0 {
			t.log.Debug("confirmation matched by content", zap.String("id", in.ID))
		}
	}
	if i < 0 {
		t.appendLocked(in)
		return Appended
	}
	old := t.msgs[i]
	if in.TempID == "" {
		in.TempID = old.TempID
	}
	if in.SenderID == "" {
		in.SenderID = old.SenderID
	}
	t.msgs[i] = &in
	return Replaced
}

// Receive merges an inbound chat_message or file_message. Messages written by
// selfID are confirmations in disguise and go through Confirm. Others are
// dropped when their id is already known, or when the same sender posted the
// same content inside the echo window (at-least-once delivery).
func (t *Timeline) Receive(in model.Message, selfID string) Outcome {
	if selfID != "" && in.SenderID == selfID {
		return t.Confirm(in)
	}
	in = t.normalize(in)
	in.Status = model.StatusSent

	t.mu.Lock()
	defer t.mu.Unlock()
	if in.ID != "" && t.indexLocked(byID(in.ID)) >= 0 {
		return Duplicate
	}
	if t.indexLocked(func(m *model.Message) bool {
		return !m.IsPending() && m.SenderID == in.SenderID &&
			sameContent(m.Content, in.Content) && m.FileURL == in.FileURL &&
			(m.ID == "" || in.ID == "" || m.ID == in.ID) &&
			t.within(m.CreatedAt, in.CreatedAt)
	}) >= 0 {
		return Duplicate
	}
	t.appendLocked(in)
	return Appended
}

func (t *Timeline) ApplyEdit(id, content string) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(byID(id))
	if i < 0 {
		return Ignored
	}
	m := *t.msgs[i]
	m.Content = content
	m.IsEdited = true
	t.msgs[i] = &m
	return Updated
}

func (t *Timeline) ApplyDelete(id string) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(byID(id))
	if i < 0 {
		return Ignored
	}
	t.removeLocked(i)
	return Removed
}

func (t *Timeline) ApplyRead(id string) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(byID(id))
	if i < 0 || t.msgs[i].Status == model.StatusRead {
		return Ignored
	}
	m := *t.msgs[i]
	m.Status = model.StatusRead
	t.msgs[i] = &m
	return Updated
}

// Messages returns a copy of the timeline in display order.
func (t *Timeline) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = *m
	}
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// ===== helpers =====

func byID(id string) func(*model.Message) bool {
	return func(m *model.Message) bool { return id != "" && m.ID == id }
}

func sameContent(a, b string) bool { return strings.TrimSpace(a) == strings.TrimSpace(b) }

func (t *Timeline) within(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= t.window
}

func (t *Timeline) normalize(in model.Message) model.Message {
	if in.ConversationID == "" {
		in.ConversationID = t.conversationID
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = t.now()
	}
	if in.Kind == "" {
		in.Kind = model.KindText
	}
	return in
}

func (t *Timeline) indexLocked(match func(*model.Message) bool) int {
	for i, m := range t.msgs {
		if match(m) {
			return i
		}
	}
	return -1
}

func (t *Timeline) appendLocked(m model.Message) { t.msgs = append(t.msgs, &m) }

func (t *Timeline) removeLocked(i int) {
	copy(t.msgs[i:], t.msgs[i+1:])
	t.msgs[len(t.msgs)-1] = nil
	t.msgs = t.msgs[:len(t.msgs)-1]
}
