package realtime

import (
	"sync"
	"time"

	"github.com/mohdafzal1700/Doc-Door-sub002/tools/safe"
)

// ChatEvent is published for every inbound envelope on a conversation socket.
type ChatEvent struct {
	ConversationID string
	Data           Inbound
	SocketKey      string
	Timestamp      time.Time
	MessageType    string
}

// NotificationEvent is published for every inbound envelope on the notification socket.
type NotificationEvent struct {
	UserID      string
	Data        Inbound
	Timestamp   time.Time
	MessageType string
}

// AuthErrorEvent tells the UI the session can no longer be used and it should
// send the user back to sign in.
type AuthErrorEvent struct {
	Key     SocketKey
	Code    int
	Reason  string
	Message string
}

// topic is an ordered subscriber list. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type topic[T any] struct {
	mu   sync.RWMutex
	seq  uint64
	subs []subscription[T]
	name string
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

func (t *topic[T]) subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	t.seq++
	id := t.seq
	t.subs = append(t.subs, subscription[T]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (t *topic[T]) publish(ev T) int {
	t.mu.RLock()
	subs := make([]subscription[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()
	for _, s := range subs {
		fn := s.fn
		safe.Run(t.name, func() { fn(ev) })
	}
	return len(subs)
}

func (t *topic[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Bus is the subscription surface UI code uses instead of touching sockets.
// Each family has its own topic so a notification panel never sees chat traffic.
type Bus struct {
	chat              topic[ChatEvent]
	notification      topic[NotificationEvent]
	chatAuthError     topic[AuthErrorEvent]
	notificationError topic[AuthErrorEvent]
}

func NewBus() *Bus {
	b := &Bus{}
	b.chat.name = "bus.chat"
	b.notification.name = "bus.notification"
	b.chatAuthError.name = "bus.chat_auth_error"
	b.notificationError.name = "bus.notification_auth_error"
	return b
}

func (b *Bus) SubscribeChat(fn func(ChatEvent)) func() { return b.chat.subscribe(fn) }

func (b *Bus) SubscribeNotifications(fn func(NotificationEvent)) func() {
	return b.notification.subscribe(fn)
}

func (b *Bus) SubscribeChatAuthError(fn func(AuthErrorEvent)) func() {
	return b.chatAuthError.subscribe(fn)
}

func (b *Bus) SubscribeNotificationAuthError(fn func(AuthErrorEvent)) func() {
	return b.notificationError.subscribe(fn)
}

// SubscriberCount is the number of handlers across all topics.
func (b *Bus) SubscriberCount() int {
	return b.chat.len() + b.notification.len() + b.chatAuthError.len() + b.notificationError.len()
}

func (b *Bus) publishChat(ev ChatEvent) int { return b.chat.publish(ev) }

func (b *Bus) publishNotification(ev NotificationEvent) int { return b.notification.publish(ev) }

func (b *Bus) publishAuthError(ev AuthErrorEvent) int {
	if ev.Key.IsNotification() {
		return b.notificationError.publish(ev)
	}
	return b.chatAuthError.publish(ev)
}
