package realtime

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/tools/errs"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/ids"
)

// Result is what every command returns. Expected failures are reported here,
// never as panics or errors, so callers can branch on Success directly.
// Success means the envelope was handed to the transport, not that it arrived.
type Result struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	Code           int    `json:"code,omitempty"`
	TempID         string `json:"temp_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
}

func fail(err error) Result {
	r := Result{Success: false, Error: err.Error(), Code: errs.Code(err)}
	if r.Code == 0 {
		r.Code = errs.SendFailedError
	}
	return r
}

// ChatMessageRequest is the input of SendChatMessage. TempID may be empty, in
// which case one is generated and returned in the Result.
type ChatMessageRequest struct {
	ConversationID string
	UserID         string
	ReceiverID     string
	Content        string
	TempID         string
}

// deliver acquires key, checks the socket and writes env. env must already be valid.
func (m *ConnectionManager) deliver(ctx context.Context, key SocketKey, env *Outbound) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	if !m.auth.IsUserAuthenticated() {
		return errs.ErrNotAuthenticated.WrapMsg("", "key", key.String())
	}
	h, ok := m.Acquire(ctx, key)
	if !ok || !h.IsOpen() {
		return errs.ErrNotConnected.WrapMsg("", "key", key.String())
	}
	if err := h.send(data); err != nil {
		if errs.Code(err) != 0 {
			return err
		}
		return errs.ErrSendFailed.WrapMsg(err.Error(), "type", env.Type)
	}
	return nil
}

func requireArgs(kv ...string) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if strings.TrimSpace(kv[i+1]) == "" {
			return errs.ErrArgs.WrapMsg(kv[i] + " is required")
		}
	}
	return nil
}

// SendChatMessage sends a chat message on the conversation socket. The caller
// is expected to have rendered a pending message under the returned TempID and
// to roll it back when Success is false.
func (m *ConnectionManager) SendChatMessage(ctx context.Context, req ChatMessageRequest) Result {
	if req.TempID == "" {
		req.TempID = ids.TempID()
	}
	base := Result{TempID: req.TempID, ConversationID: req.ConversationID}
	if err := requireArgs("conversation_id", req.ConversationID, "user_id", req.UserID,
		"receiver_id", req.ReceiverID, "content", req.Content); err != nil {
		return merge(base, fail(err))
	}

	env := ChatMessage(req.ConversationID, req.ReceiverID, strings.TrimSpace(req.Content), req.TempID, m.now())
	if err := m.deliver(ctx, ChatKey(req.ConversationID, req.UserID), env); err != nil {
		m.log.Warn("chat message not sent",
			zap.String("conversation_id", req.ConversationID),
			zap.String("temp_id", req.TempID),
			zap.Error(err))
		return merge(base, fail(err))
	}
	base.Success = true
	return base
}

// SendTyping is best effort: failures are logged and reported in the Result,
// nothing else.
func (m *ConnectionManager) SendTyping(ctx context.Context, conversationID, userID string, isTyping bool) Result {
	base := Result{ConversationID: conversationID, IsTyping: isTyping}
	if err := requireArgs("conversation_id", conversationID, "user_id", userID); err != nil {
		return merge(base, fail(err))
	}
	env := TypingIndicator(conversationID, userID, isTyping, m.now())
	if err := m.deliver(ctx, ChatKey(conversationID, userID), env); err != nil {
		m.log.Debug("typing signal dropped",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return merge(base, fail(err))
	}
	base.Success = true
	return base
}

func (m *ConnectionManager) MarkMessageAsRead(ctx context.Context, conversationID, userID, messageID string) Result {
	base := Result{ConversationID: conversationID, MessageID: messageID}
	if err := requireArgs("conversation_id", conversationID, "user_id", userID, "message_id", messageID); err != nil {
		return merge(base, fail(err))
	}
	env := MarkAsRead(conversationID, userID, messageID, m.now())
	if err := m.deliver(ctx, ChatKey(conversationID, userID), env); err != nil {
		m.log.Warn("mark_as_read not sent", zap.String("message_id", messageID), zap.Error(err))
		return merge(base, fail(err))
	}
	base.Success = true
	return base
}

func (m *ConnectionManager) EditChatMessage(ctx context.Context, conversationID, userID, messageID, content string) Result {
	base := Result{ConversationID: conversationID, MessageID: messageID}
	if err := requireArgs("conversation_id", conversationID, "user_id", userID,
		"message_id", messageID, "content", content); err != nil {
		return merge(base, fail(err))
	}
	env := EditMessage(conversationID, messageID, strings.TrimSpace(content), m.now())
	if err := m.deliver(ctx, ChatKey(conversationID, userID), env); err != nil {
		m.log.Warn("edit_message not sent", zap.String("message_id", messageID), zap.Error(err))
		return merge(base, fail(err))
	}
	base.Success = true
	return base
}

func (m *ConnectionManager) DeleteChatMessage(ctx context.Context, conversationID, userID, messageID string) Result {
	base := Result{ConversationID: conversationID, MessageID: messageID}
	if err := requireArgs("conversation_id", conversationID, "user_id", userID, "message_id", messageID); err != nil {
		return merge(base, fail(err))
	}
	env := DeleteMessage(conversationID, messageID, m.now())
	if err := m.deliver(ctx, ChatKey(conversationID, userID), env); err != nil {
		m.log.Warn("delete_message not sent", zap.String("message_id", messageID), zap.Error(err))
		return merge(base, fail(err))
	}
	base.Success = true
	return base
}

// merge copies the failure fields of f onto the context fields of base.
func merge(base, f Result) Result {
	base.Success = false
	base.Error = f.Error
	base.Code = f.Code
	return base
}

// ===== notification channel =====

func (m *ConnectionManager) MarkNotificationRead(ctx context.Context, userID, notificationID string) Result {
	base := Result{NotificationID: notificationID}
	if err := requireArgs("user_id", userID, "notification_id", notificationID); err != nil {
		return merge(base, fail(err))
	}
	if err := m.deliver(ctx, NotificationKey(userID), MarkNotificationRead(notificationID, m.now())); err != nil {
		m.log.Warn("mark_notification_read not sent", zap.String("notification_id", notificationID), zap.Error(err))
		return merge(base, fail(err))
	}
	base.Success = true
	return base
}

func (m *ConnectionManager) MarkAllNotificationsRead(ctx context.Context, userID string) Result {
	if err := requireArgs("user_id", userID); err != nil {
		return fail(err)
	}
	if err := m.deliver(ctx, NotificationKey(userID), MarkAllRead(m.now())); err != nil {
		m.log.Warn("mark_all_read not sent", zap.Error(err))
		return fail(err)
	}
	return Result{Success: true}
}

// GetNotifications asks the gateway for the unread list; the answer arrives
// as an unread_notifications event. limit 0 leaves the page size to the server.
func (m *ConnectionManager) GetNotifications(ctx context.Context, userID string, limit int) Result {
	if err := requireArgs("user_id", userID); err != nil {
		return fail(err)
	}
	if err := m.deliver(ctx, NotificationKey(userID), GetNotifications(limit, m.now())); err != nil {
		m.log.Warn("get_notifications not sent", zap.Int("limit", limit), zap.Error(err))
		return fail(err)
	}
	return Result{Success: true}
}
