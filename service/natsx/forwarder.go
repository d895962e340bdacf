package natsx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/realtime"
)

// Publisher is the part of NatsxClient the forwarder needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error
}

// Forwarded is the payload published for every bus event. Data is the
// inbound envelope exactly as the gateway sent it.
type Forwarded struct {
	Family         string          `json:"family"`
	SocketKey      string          `json:"socket_key,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	MessageType    string          `json:"message_type"`
	Timestamp      time.Time       `json:"timestamp"`
	Data           json.RawMessage `json:"data"`
}

// Forwarder republishes chat events to <prefix>.chat.<conversationId> and
// notification events to <prefix>.notifications.<userId>.
type Forwarder struct {
	pub     Publisher
	prefix  string
	timeout time.Duration
	log     *zap.Logger
}

func NewForwarder(pub Publisher, prefix string) *Forwarder {
	if prefix == "" {
		prefix = "docdoor"
	}
	return &Forwarder{pub: pub, prefix: prefix, timeout: 2 * time.Second, log: logger.Named("natsx.forwarder")}
}

// Attach subscribes to bus; the returned func detaches.
func (f *Forwarder) Attach(bus *realtime.Bus) (detach func()) {
	unChat := bus.SubscribeChat(f.ForwardChat)
	unNotif := bus.SubscribeNotifications(f.ForwardNotification)
	return func() {
		unChat()
		unNotif()
	}
}

func (f *Forwarder) ChatSubject(conversationID string) string {
	return f.prefix + ".chat." + subjectToken(conversationID)
}

func (f *Forwarder) NotificationSubject(userID string) string {
	return f.prefix + ".notifications." + subjectToken(userID)
}

func (f *Forwarder) ForwardChat(ev realtime.ChatEvent) {
	f.publish(f.ChatSubject(ev.ConversationID), ev.Data, Forwarded{
		Family:         string(realtime.FamilyChat),
		SocketKey:      ev.SocketKey,
		ConversationID: ev.ConversationID,
		MessageType:    ev.MessageType,
		Timestamp:      ev.Timestamp,
		Data:           ev.Data.Raw,
	})
}

func (f *Forwarder) ForwardNotification(ev realtime.NotificationEvent) {
	f.publish(f.NotificationSubject(ev.UserID), ev.Data, Forwarded{
		Family:      string(realtime.FamilyNotification),
		UserID:      ev.UserID,
		MessageType: ev.MessageType,
		Timestamp:   ev.Timestamp,
		Data:        ev.Data.Raw,
	})
}

func (f *Forwarder) publish(subject string, in realtime.Inbound, body Forwarded) {
	data, err := json.Marshal(body)
	if err != nil {
		f.log.Error("marshal forwarded event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	hdr := map[string]string{
		"Nats-Msg-Id":    msgID(subject, in),
		"Docdoor-Family": body.Family,
		"Docdoor-Type":   body.MessageType,
	}
	if err := f.pub.Publish(ctx, subject, data, hdr); err != nil {
		f.log.Warn("forward failed", zap.String("subject", subject), zap.Error(err))
	}
}

// msgID is stable for envelopes with a durable id so JetStream can drop
// redeliveries; everything else gets a random id.
func msgID(subject string, in realtime.Inbound) string {
	if id := in.Get("id", "message_id", "notification_id"); id != "" {
		return subject + "|" + in.Type + "|" + id
	}
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// subjectToken makes s usable as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
