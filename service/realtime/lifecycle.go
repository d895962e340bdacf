package realtime

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/tools/errs"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/safe"
)

// HandshakeError is returned by a Transport when the gateway answered the
// upgrade request with an HTTP error instead of switching protocols.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.StatusCode)
	}
	return e.Err.Error()
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// dialCloseInput turns a failed dial into the close the machine would have
// seen from a browser socket: 1006, or the auth codes for 401/403 handshakes.
func dialCloseInput(handleID string, err error) Input {
	in := Input{Kind: InputClosed, HandleID: handleID, Code: CloseAbnormal, Reason: err.Error()}
	var he *HandshakeError
	if errors.As(err, &he) {
		switch he.StatusCode {
		case http.StatusUnauthorized:
			in.Code = CloseUnauthorized
		case http.StatusForbidden:
			in.Code = CloseForbidden
		}
	}
	return in
}

func runWork(work []func()) {
	for _, w := range work {
		w()
	}
}

// stepLocked applies in to key's machine. Table mutations happen here, under
// m.mu, in one block; socket writes and bus publishes are returned as work to
// run once the lock is dropped. subject is the handle the input is about,
// which may no longer be the entry's current one.
func (m *ConnectionManager) stepLocked(key SocketKey, e *entry, in Input, subject *Handle) (Transition, []func()) {
	t := e.machine.Apply(in)
	log := m.log.With(zap.String("key", key.String()))
	if t.Changed {
		log.Debug("state",
			zap.Stringer("input", in.Kind),
			zap.Stringer("from", t.From),
			zap.Stringer("to", t.To))
	}

	find := func(id string) *Handle {
		if e.handle != nil && e.handle.id == id {
			return e.handle
		}
		if subject != nil && subject.id == id {
			return subject
		}
		return nil
	}

	var work []func()
	for _, eff := range t.Effects {
		eff := eff
		switch eff.Kind {
		case EffectCloseStale, EffectForceClose:
			if h := find(eff.HandleID); h != nil {
				if e.handle == h {
					e.handle = nil
				}
				reason := "replaced"
				if eff.Kind == EffectForceClose {
					reason = "closed by client"
				}
				work = append(work, func() { h.close(CloseNormal, reason) })
			}

		case EffectRemoveRecord:
			if e.handle != nil && !e.machine.IsCurrent(e.handle.id) {
				e.handle = nil
			}

		case EffectCancelRetry:
			if e.retry != nil {
				e.retry.Stop()
				e.retry = nil
			}

		case EffectScheduleRetry:
			if e.retry != nil {
				e.retry.Stop()
			}
			log.Info("reconnect scheduled",
				zap.Int("attempt", eff.Attempt),
				zap.Duration("delay", eff.Delay),
				zap.Int("code", in.Code))
			e.retry = m.conf.AfterFunc(eff.Delay, func() { m.retry(key, e) })

		case EffectSendConnectionTest:
			if h := find(eff.HandleID); h != nil {
				work = append(work, func() { m.sendConnectionTest(h) })
			}

		case EffectEmitAuthError:
			ev := AuthErrorEvent{Key: key, Code: eff.Code, Reason: eff.Reason, Message: eff.Message}
			cause := errs.ErrReconnectExhausted
			if IsFatalClose(eff.Code) {
				cause = errs.ErrAuthFatal
			}
			log.Warn("auth error, not reconnecting",
				zap.Int("code", eff.Code), zap.String("reason", eff.Reason), zap.Error(cause))
			work = append(work, func() { m.bus.publishAuthError(ev) })
		}
	}
	return t, work
}

// transportEvent feeds a socket event for h into key's machine.
func (m *ConnectionManager) transportEvent(key SocketKey, h *Handle, in Input) {
	m.mu.Lock()
	e := m.entries[key]
	if e == nil {
		m.mu.Unlock()
		return
	}
	_, work := m.stepLocked(key, e, in, h)
	m.mu.Unlock()
	runWork(work)
}

func (m *ConnectionManager) retry(key SocketKey, e *entry) {
	m.mu.Lock()
	if m.closed || m.entries[key] != e {
		m.mu.Unlock()
		return
	}
	e.retry = nil
	m.mu.Unlock()

	safe.Run("realtime.retry", func() {
		if _, ok := m.Acquire(context.Background(), key); !ok {
			m.log.Debug("reconnect attempt did not connect", zap.String("key", key.String()))
		}
	})
}

func (m *ConnectionManager) sendConnectionTest(h *Handle) {
	data, err := ConnectionTest(m.now()).Encode()
	if err != nil {
		m.log.Error("encode connection_test", zap.Error(err))
		return
	}
	if err := h.send(data); err != nil {
		m.log.Warn("connection_test not sent", zap.String("key", h.key.String()), zap.Error(err))
	}
}

func (m *ConnectionManager) isCurrent(key SocketKey, h *Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	return e != nil && e.handle == h
}

// socketEvents routes one socket's callbacks back into the manager.
type socketEvents struct {
	m   *ConnectionManager
	key SocketKey
	h   *Handle
}

func (s *socketEvents) OnMessage(data []byte) { s.m.dispatchInbound(s.key, s.h, data) }

func (s *socketEvents) OnError(err error) {
	s.m.log.Warn("socket error", zap.String("key", s.key.String()), zap.Error(err))
	s.m.transportEvent(s.key, s.h, Input{Kind: InputErrored, HandleID: s.h.id})
}

func (s *socketEvents) OnClose(code int, reason string) {
	s.h.open.Store(false)
	s.m.log.Info("socket closed",
		zap.String("key", s.key.String()),
		zap.Int("code", code),
		zap.String("reason", reason),
		zap.Bool("manual", s.h.manual.Load()))
	s.m.transportEvent(s.key, s.h, Input{
		Kind:     InputClosed,
		HandleID: s.h.id,
		Code:     code,
		Reason:   reason,
		Manual:   s.h.manual.Load(),
	})
}

// dispatchInbound is the event bridge: parse, filter, republish.
func (m *ConnectionManager) dispatchInbound(key SocketKey, h *Handle, data []byte) {
	if !m.isCurrent(key, h) {
		m.log.Debug("dropping frame from replaced socket", zap.String("key", key.String()))
		return
	}
	in, err := ParseInbound(data)
	if err != nil {
		sample := data
		if len(sample) > 256 {
			sample = sample[:256]
		}
		m.log.Warn("dropping malformed frame",
			zap.String("key", key.String()),
			zap.Error(err),
			zap.ByteString("sample", sample))
		return
	}
	if m.duplicate(key, in) {
		m.log.Debug("dropping duplicate delivery",
			zap.String("key", key.String()), zap.String("type", in.Type))
		return
	}

	now := m.now()
	if in.Type == TypeError && IsAuthFailureText(in.Text()) {
		m.bus.publishAuthError(AuthErrorEvent{Key: key, Reason: "auth_error", Message: in.Text()})
	}

	if key.IsNotification() {
		m.bus.publishNotification(NotificationEvent{
			UserID:      key.UserID,
			Data:        in,
			Timestamp:   now,
			MessageType: in.Type,
		})
		return
	}
	m.bus.publishChat(ChatEvent{
		ConversationID: key.Scope,
		Data:           in,
		SocketKey:      key.String(),
		Timestamp:      now,
		MessageType:    in.Type,
	})
}

// duplicate consults the optional Deduper for envelopes that carry a durable id.
func (m *ConnectionManager) duplicate(key SocketKey, in Inbound) bool {
	if m.conf.Deduper == nil {
		return false
	}
	switch in.Type {
	case TypeChatMessage, TypeFileMessage, TypeNotification:
	default:
		return false
	}
	id := in.Get("id", "message_id", "notification_id")
	if id == "" {
		return false
	}
	seen, err := m.conf.Deduper.SeenOnce(key.String()+"|"+in.Type+"|"+id, m.conf.DedupTTL)
	if err != nil {
		m.log.Warn("dedup store unavailable, delivering", zap.Error(err))
		return false
	}
	return seen
}
