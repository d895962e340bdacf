package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohdafzal1700/Doc-Door-sub002/global/config"
	"github.com/mohdafzal1700/Doc-Door-sub002/module/chat/message"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/realtime"
)

func TestManagerConfFromConfig(t *testing.T) {
	c := config.Global
	c.Realtime.MaxReconnects = 3
	conf := managerConf(&c)
	assert.Equal(t, c.Realtime.ChatBaseURL, conf.ChatBaseURL)
	assert.Equal(t, 3, conf.Policy.MaxAttempts)
	assert.Equal(t, time.Second, conf.Policy.Base)
	assert.NotNil(t, conf.Transport)
}

func TestNewSessionNeedsToken(t *testing.T) {
	c := config.Global
	_, err := newSession(context.Background(), &c, "")
	assert.ErrorContains(t, err, "DOCDOOR_TOKEN")
}

func TestEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, "7")
	p.timeline("42").AddPending("temp_1", "7", "hello", time.Now())

	var outcomes []message.Outcome
	p.onEvent = func(_ realtime.ChatEvent, out message.Outcome) { outcomes = append(outcomes, out) }

	in, err := realtime.ParseInbound([]byte(`{"type":"message_sent","temp_id":"temp_1","message":{"id":"9","content":"hello","sender_id":"7"}}`))
	require.NoError(t, err)
	p.chat(realtime.ChatEvent{ConversationID: "42", Data: in, MessageType: in.Type, SocketKey: "42:7"})
	p.authError(realtime.AuthErrorEvent{Key: realtime.NotificationKey("7"), Code: 4001, Reason: "Unauthorized"})

	assert.Equal(t, []message.Outcome{message.Replaced}, outcomes)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "chat", first["family"])
	assert.Equal(t, "replaced", first["timeline"])
	assert.Equal(t, "9", first["data"].(map[string]any)["message"].(map[string]any)["id"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "auth_error", second["family"])
	assert.Equal(t, float64(4001), second["code"])
}

func TestIsConfirmation(t *testing.T) {
	sent := realtime.ChatEvent{MessageType: realtime.TypeMessageSent}
	echo := realtime.ChatEvent{MessageType: realtime.TypeChatMessage}
	edit := realtime.ChatEvent{MessageType: realtime.TypeMessageEdited}

	assert.True(t, isConfirmation(sent, message.Replaced))
	assert.True(t, isConfirmation(echo, message.Replaced))
	assert.False(t, isConfirmation(echo, message.Appended))
	assert.False(t, isConfirmation(edit, message.Replaced))
}

func TestEventPrinter_ChatEchoConfirmsPending(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, "7")
	p.timeline("42").AddPending("temp_1", "7", "hello", time.Now())

	confirmed := false
	p.onEvent = func(ev realtime.ChatEvent, out message.Outcome) { confirmed = isConfirmation(ev, out) }

	in, err := realtime.ParseInbound([]byte(`{"type":"chat_message","message":{"id":"9","temp_id":"temp_1","content":"hello","sender_id":"7"}}`))
	require.NoError(t, err)
	p.chat(realtime.ChatEvent{ConversationID: "42", Data: in, MessageType: in.Type, SocketKey: "42:7"})
	assert.True(t, confirmed)
}
