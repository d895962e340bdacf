package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/safe"
)

// Events receives what a socket observes after Listen. OnClose is called
// exactly once, last.
type Events interface {
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code int, reason string)
}

// Socket is one open bidirectional message connection.
type Socket interface {
	// Listen starts delivering events. It must be called at most once.
	Listen(ev Events)
	// Send writes one text frame. Concurrent calls are serialized.
	Send(data []byte) error
	// Close starts a closing handshake with code.
	Close(code int, reason string) error
}

// Transport opens sockets. Dial blocks until the socket is open or fails.
type Transport interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// ErrSocketClosed is returned by Send after Close or after the peer went away.
var ErrSocketClosed = errors.New("socket closed")

// WSTransport dials with gorilla/websocket.
type WSTransport struct {
	Dialer       *websocket.Dialer
	PingInterval time.Duration // 0 disables keepalive pings
	WriteWait    time.Duration
	Logger       *zap.Logger
}

func NewWSTransport(pingInterval, writeWait time.Duration) *WSTransport {
	// The handshake is bounded by the dial context only, so a slow upgrade
	// surfaces as the manager's connect timeout rather than a dial error.
	return &WSTransport{
		Dialer: &websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		PingInterval: pingInterval,
		WriteWait:    writeWait,
		Logger:       logger.Named("realtime.ws"),
	}
}

func (t *WSTransport) Dial(ctx context.Context, url string) (Socket, error) {
	d := t.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	conn, resp, err := d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{
				StatusCode: resp.StatusCode,
				Err:        pkgerrors.Wrapf(err, "dial %s: http %d", redactURL(url), resp.StatusCode),
			}
		}
		return nil, pkgerrors.Wrapf(err, "dial %s", redactURL(url))
	}
	writeWait := t.WriteWait
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	lg := t.Logger
	if lg == nil {
		lg = logger.Named("realtime.ws")
	}
	return &wsSocket{
		conn:         conn,
		pingInterval: t.PingInterval,
		writeWait:    writeWait,
		done:         make(chan struct{}),
		log:          lg,
	}, nil
}

type wsSocket struct {
	conn         *websocket.Conn
	pingInterval time.Duration
	writeWait    time.Duration
	log          *zap.Logger

	writeMu   sync.Mutex
	closing   atomic.Bool
	listening atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func (s *wsSocket) Listen(ev Events) {
	if !s.listening.CompareAndSwap(false, true) {
		return
	}
	if s.pingInterval > 0 {
		pongWait := s.pingInterval + s.writeWait
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		safe.SafeGo("realtime.ws.ping", s.pingLoop)
	}
	safe.SafeGo("realtime.ws.read", func() { s.readLoop(ev) })
}

func (s *wsSocket) readLoop(ev Events) {
	defer s.finish()
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			code, reason := closeInfo(err)
			var ce *websocket.CloseError
			report := !errors.As(err, &ce) && !s.closing.Load()
			// Send must fail from the moment the owner learns about the close
			s.finish()
			if report {
				ev.OnError(err)
			}
			ev.OnClose(code, reason)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		ev.OnMessage(data)
	}
}

func (s *wsSocket) pingLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *wsSocket) finish() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *wsSocket) Send(data []byte) error {
	if s.closing.Load() {
		return ErrSocketClosed
	}
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return pkgerrors.Wrap(err, "write frame")
	}
	return nil
}

// Close sends a close frame and lets the read loop observe the peer's echo.
// If the peer does not answer within writeWait the connection is dropped.
func (s *wsSocket) Close(code int, reason string) error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait))
	if !s.listening.Load() {
		s.finish()
		return err
	}
	safe.SafeGo("realtime.ws.close", func() {
		t := time.NewTimer(s.writeWait)
		defer t.Stop()
		select {
		case <-s.done:
		case <-t.C:
			_ = s.conn.Close()
		}
	})
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return pkgerrors.Wrap(err, "write close frame")
	}
	return nil
}

func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return CloseAbnormal, err.Error()
}
