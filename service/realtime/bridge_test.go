package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridge_ChatFramesReachSubscribersInOrder(t *testing.T) {
	f := newFixture(t)
	key := ChatKey("42", "7")
	var order []string
	var got []ChatEvent
	f.m.Bus().SubscribeChat(func(ev ChatEvent) {
		order = append(order, "first")
		got = append(got, ev)
	})
	f.m.Bus().SubscribeChat(func(ChatEvent) { order = append(order, "second") })
	var notifications int
	f.m.Bus().SubscribeNotifications(func(NotificationEvent) { notifications++ })

	_, ok := f.m.Acquire(context.Background(), key)
	require.True(t, ok)
	f.tr.last().deliver(`{"type":"message_sent","message":{"id":123,"temp_id":"temp_1","content":"hi"}}`)

	require.Len(t, got, 1)
	ev := got[0]
	assert.Equal(t, "42", ev.ConversationID)
	assert.Equal(t, "42:7", ev.SocketKey)
	assert.Equal(t, TypeMessageSent, ev.MessageType)
	assert.Equal(t, testNow, ev.Timestamp)
	assert.Equal(t, "123", ev.Data.Get("id"))
	assert.Equal(t, "temp_1", ev.Data.Get("temp_id"))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 0, notifications)
}

func TestBridge_MalformedFramesAreDropped(t *testing.T) {
	f := newFixture(t)
	var got int
	f.m.Bus().SubscribeChat(func(ChatEvent) { got++ })
	_, ok := f.m.Acquire(context.Background(), ChatKey("42", "7"))
	require.True(t, ok)

	sock := f.tr.last()
	sock.deliver(`not json`)
	sock.deliver(`{"message":"no type"}`)
	sock.deliver(`{"type":"surprise"}`)
	sock.deliver(`[1,2,3]`)
	assert.Equal(t, 0, got)

	sock.deliver(`{"type":"typing_indicator","user_id":"9","is_typing":true}`)
	assert.Equal(t, 1, got)
}

func TestBridge_AuthErrorEnvelope(t *testing.T) {
	f := newFixture(t)
	var chat, authErrs []string
	f.m.Bus().SubscribeChat(func(ev ChatEvent) { chat = append(chat, ev.MessageType) })
	f.m.Bus().SubscribeChatAuthError(func(ev AuthErrorEvent) { authErrs = append(authErrs, ev.Message) })
	_, ok := f.m.Acquire(context.Background(), ChatKey("42", "7"))
	require.True(t, ok)

	sock := f.tr.last()
	sock.deliver(`{"type":"error","message":"Token has expired"}`)
	sock.deliver(`{"type":"error","message":"conversation is archived"}`)

	assert.Equal(t, []string{TypeError, TypeError}, chat)
	assert.Equal(t, []string{"Token has expired"}, authErrs)
}

func TestBridge_NotificationRouting(t *testing.T) {
	f := newFixture(t)
	var got []NotificationEvent
	var chat int
	f.m.Bus().SubscribeNotifications(func(ev NotificationEvent) { got = append(got, ev) })
	f.m.Bus().SubscribeChat(func(ChatEvent) { chat++ })

	_, ok := f.m.Acquire(context.Background(), NotificationKey("7"))
	require.True(t, ok)
	f.tr.last().deliver(`{"type":"unread_notifications","notifications":[],"count":0}`)

	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].UserID)
	assert.Equal(t, TypeUnreadNotifications, got[0].MessageType)
	assert.Equal(t, 0, chat)
}

func TestBridge_FramesFromReplacedSocketAreIgnored(t *testing.T) {
	f := newFixture(t)
	key := ChatKey("42", "7")
	var got int
	f.m.Bus().SubscribeChat(func(ChatEvent) { got++ })

	_, ok := f.m.Acquire(context.Background(), key)
	require.True(t, ok)
	old := f.tr.last()
	f.m.Release(key)

	old.mu.Lock()
	old.closed = false
	old.mu.Unlock()
	old.deliver(`{"type":"chat_message","id":"1"}`)
	assert.Equal(t, 0, got)
}

func TestBridge_DuplicateDeliveriesAreDropped(t *testing.T) {
	f := newFixture(t, func(c *ManagerConf) { c.Deduper = &mapDeduper{} })
	var got int
	f.m.Bus().SubscribeChat(func(ChatEvent) { got++ })
	_, ok := f.m.Acquire(context.Background(), ChatKey("42", "7"))
	require.True(t, ok)

	sock := f.tr.last()
	sock.deliver(`{"type":"chat_message","message":{"id":77,"content":"hi"}}`)
	sock.deliver(`{"type":"chat_message","message":{"id":77,"content":"hi"}}`)
	sock.deliver(`{"type":"chat_message","message":{"id":78,"content":"hi"}}`)
	// no id, nothing to dedupe on
	sock.deliver(`{"type":"typing_indicator","is_typing":true}`)
	sock.deliver(`{"type":"typing_indicator","is_typing":true}`)
	assert.Equal(t, 4, got)
}

func TestBus_PanickingSubscriberDoesNotStopOthers(t *testing.T) {
	b := NewBus()
	var second int
	b.SubscribeChat(func(ChatEvent) { panic("boom") })
	b.SubscribeChat(func(ChatEvent) { second++ })

	assert.Equal(t, 2, b.publishChat(ChatEvent{MessageType: TypeChatMessage}))
	assert.Equal(t, 1, second)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	var calls int
	unsub := b.SubscribeNotifications(func(NotificationEvent) { calls++ })
	b.SubscribeChatAuthError(func(AuthErrorEvent) {})
	assert.Equal(t, 2, b.SubscriberCount())

	b.publishNotification(NotificationEvent{})
	unsub()
	unsub()
	b.publishNotification(NotificationEvent{})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBus_AuthErrorRoutedByFamily(t *testing.T) {
	b := NewBus()
	var chat, notif int
	b.SubscribeChatAuthError(func(AuthErrorEvent) { chat++ })
	b.SubscribeNotificationAuthError(func(AuthErrorEvent) { notif++ })

	b.publishAuthError(AuthErrorEvent{Key: ChatKey("1", "2")})
	b.publishAuthError(AuthErrorEvent{Key: NotificationKey("2")})
	b.publishAuthError(AuthErrorEvent{Key: NotificationKey("2")})
	assert.Equal(t, 1, chat)
	assert.Equal(t, 2, notif)
}
