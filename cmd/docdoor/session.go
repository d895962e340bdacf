package main

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/global/config"
	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
	"github.com/mohdafzal1700/Doc-Door-sub002/module/chat/message"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/auth"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/natsx"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/realtime"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/statusapi"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/storage"
)

// session is one signed-in client: the manager plus whichever optional
// services the config enables. close undoes newSession in reverse order.
type session struct {
	cfg    *config.AppConfig
	tokens *auth.StaticProvider
	mgr    *realtime.ConnectionManager
	log    *zap.Logger

	closers []func()
}

func managerConf(c *config.AppConfig) realtime.ManagerConf {
	r := c.Realtime
	return realtime.ManagerConf{
		ChatBaseURL:         r.ChatBaseURL,
		NotificationBaseURL: r.NotificationBaseURL,
		ConnectTimeout:      r.ConnectTimeout,
		WaitTimeout:         r.WaitTimeout,
		Policy: realtime.ReconnectPolicy{
			Base:        r.ReconnectBase,
			Max:         r.ReconnectMax,
			MaxAttempts: r.MaxReconnects,
		},
		Transport: realtime.NewWSTransport(r.PingInterval, r.WriteWait),
		DedupTTL:  r.DedupTTL,
	}
}

func newSession(ctx context.Context, c *config.AppConfig, accessToken string) (*session, error) {
	if accessToken == "" {
		return nil, errors.New("no access token: pass --token or set DOCDOOR_TOKEN")
	}
	s := &session{cfg: c, tokens: auth.NewStaticProvider(accessToken), log: logger.Named("docdoor")}
	conf := managerConf(c)

	if c.Redis.Addr != "" {
		rdb, err := storage.NewRedisClient(ctx, storage.Config{
			Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB, PoolSize: c.Redis.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		conf.Deduper = storage.NewRedisIdem(rdb, c.Realtime.DedupTTL)
	} else {
		mem := storage.NewMemIdem(c.Realtime.DedupTTL)
		s.closers = append(s.closers, func() { _ = mem.Close() })
		conf.Deduper = mem
	}

	s.mgr = realtime.NewConnectionManager(conf, s.tokens, s.tokens)
	s.closers = append(s.closers, s.mgr.Close)

	if len(c.Nats.Servers) > 0 {
		nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{Servers: c.Nats.Servers, Name: c.Nats.Name})
		if err != nil {
			s.close()
			return nil, err
		}
		detach := natsx.NewForwarder(nc, c.Nats.SubjectPrefix).Attach(s.mgr.Bus())
		s.closers = append(s.closers, detach, func() { _ = nc.Close() })
	}
	return s, nil
}

// serveStatus starts the status API on addr.
func (s *session) serveStatus(addr string) error {
	srv := statusapi.New(s.mgr, statusapi.Options{Token: s.cfg.Status.Token})
	if _, err := srv.Start(addr); err != nil {
		return errors.Wrapf(err, "status api on %s", addr)
	}
	s.closers = append(s.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Realtime.WriteWait)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return nil
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// eventPrinter writes bus events as JSON lines and keeps a timeline per
// conversation so confirmations can be matched to sends.
type eventPrinter struct {
	mu        sync.Mutex
	enc       *json.Encoder
	self      string
	timelines map[string]*message.Timeline
	onEvent   func(realtime.ChatEvent, message.Outcome)
}

func newEventPrinter(w io.Writer, self string) *eventPrinter {
	return &eventPrinter{enc: json.NewEncoder(w), self: self, timelines: map[string]*message.Timeline{}}
}

func (p *eventPrinter) timeline(conversationID string) *message.Timeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	tl := p.timelines[conversationID]
	if tl == nil {
		tl = message.NewTimeline(conversationID)
		p.timelines[conversationID] = tl
	}
	return tl
}

func (p *eventPrinter) attach(bus *realtime.Bus) func() {
	unsubs := []func(){
		bus.SubscribeChat(p.chat),
		bus.SubscribeNotifications(p.notification),
		bus.SubscribeChatAuthError(p.authError),
		bus.SubscribeNotificationAuthError(p.authError),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (p *eventPrinter) chat(ev realtime.ChatEvent) {
	out, err := p.timeline(ev.ConversationID).HandleEvent(ev, p.self)
	p.print(map[string]any{
		"family":          "chat",
		"conversation_id": ev.ConversationID,
		"type":            ev.MessageType,
		"timeline":        out.String(),
		"timestamp":       ev.Timestamp,
		"data":            json.RawMessage(ev.Data.Raw),
	})
	if err != nil {
		logger.Warn("message not applied to timeline", zap.Error(err))
	}
	if p.onEvent != nil {
		p.onEvent(ev, out)
	}
}

func (p *eventPrinter) notification(ev realtime.NotificationEvent) {
	p.print(map[string]any{
		"family":    "notification",
		"user_id":   ev.UserID,
		"type":      ev.MessageType,
		"timestamp": ev.Timestamp,
		"data":      json.RawMessage(ev.Data.Raw),
	})
}

func (p *eventPrinter) authError(ev realtime.AuthErrorEvent) {
	p.print(map[string]any{
		"family":  "auth_error",
		"key":     ev.Key.String(),
		"code":    ev.Code,
		"reason":  ev.Reason,
		"message": ev.Message,
	})
}

func (p *eventPrinter) print(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(v)
}
