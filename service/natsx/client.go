// Package natsx republishes realtime bus events onto NATS so other local
// processes (notifiers, loggers, a second UI) can follow the session.
package natsx

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
)

// NatsxMode selects how messages are published.
type NatsxMode int

const (
	Core      NatsxMode = iota // fire and forget
	JetStream                  // persisted, acked by the stream
)

// NatsxConfig is the client configuration.
type NatsxConfig struct {
	Servers         []string
	Name            string
	User            string
	Password        string
	Mode            NatsxMode
	ReconnectWait   time.Duration
	Timeout         time.Duration
	PublishAsyncMax int
}

// NatsxClient wraps one connection and, in JetStream mode, its context.
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *zap.Logger
}

// NewNatsxClient connects to NATS.
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.PublishAsyncMax == 0 {
		cfg.PublishAsyncMax = 4096
	}
	lg := logger.Named("natsx")
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				lg.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			lg.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	c := &NatsxClient{cfg: cfg, nc: nc, log: lg}
	if cfg.Mode == JetStream {
		js, err := nc.JetStream(nats.PublishAsyncMaxPending(cfg.PublishAsyncMax))
		if err != nil {
			nc.Close()
			return nil, errors.Wrap(err, "init jetstream")
		}
		c.js = js
	}
	return c, nil
}

// Publish sends data to subject with the given headers.
func (c *NatsxClient) Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	if c.js != nil {
		ack, err := c.js.PublishMsg(msg, nats.Context(ctx))
		if err != nil {
			return errors.Wrapf(err, "jetstream publish %s", subject)
		}
		c.log.Debug("published", zap.String("stream", ack.Stream), zap.Uint64("seq", ack.Sequence))
		return nil
	}
	if err := c.nc.PublishMsg(msg); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	return nil
}

// Close drains the connection.
func (c *NatsxClient) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}
