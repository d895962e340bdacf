package realtime

import (
	"net/url"
	"strings"
)

// NotificationScope is the scope of the single per-user notification channel.
// It can never clash with a conversation id, which the gateway issues as digits or uuids.
const NotificationScope = "__notifications__"

// Family names the channel family an event belongs to.
type Family string

const (
	FamilyChat         Family = "chat"
	FamilyNotification Family = "notification"
)

// SocketKey identifies one logical connection: a conversation (or the
// notification sentinel) as seen by one user.
type SocketKey struct {
	Scope  string
	UserID string
}

func ChatKey(conversationID, userID string) SocketKey {
	return SocketKey{Scope: conversationID, UserID: userID}
}

func NotificationKey(userID string) SocketKey {
	return SocketKey{Scope: NotificationScope, UserID: userID}
}

func (k SocketKey) IsNotification() bool { return k.Scope == NotificationScope }

func (k SocketKey) Family() Family {
	if k.IsNotification() {
		return FamilyNotification
	}
	return FamilyChat
}

// Valid reports whether both halves of the key are present.
func (k SocketKey) Valid() bool {
	return strings.TrimSpace(k.Scope) != "" && strings.TrimSpace(k.UserID) != ""
}

func (k SocketKey) String() string { return k.Scope + ":" + k.UserID }

// endpointURL builds the handshake url. The gateway cannot read headers during
// the upgrade, so the credential always travels as the token query parameter.
func endpointURL(chatBase, notificationBase string, key SocketKey, token string) string {
	q := "?token=" + url.QueryEscape(token)
	if key.IsNotification() {
		return strings.TrimRight(notificationBase, "/") + "/" + q
	}
	return strings.TrimRight(chatBase, "/") + "/" + url.PathEscape(key.Scope) + "/" + q
}

// redactURL strips the query so credentials never reach the logs.
func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i] + "?token=REDACTED"
	}
	return raw
}
