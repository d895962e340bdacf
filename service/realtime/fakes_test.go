package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/service/auth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---- transport ----

type fakeSocket struct {
	url string

	mu        sync.Mutex
	ev        Events
	sent      [][]byte
	closed    bool
	closeCode int
	sendErr   error
}

func (s *fakeSocket) Listen(ev Events) {
	s.mu.Lock()
	s.ev = ev
	s.mu.Unlock()
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	if s.closed {
		return ErrSocketClosed
	}
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

// Close behaves like a peer that echoes the close frame at once.
func (s *fakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.closeCode = code
	ev := s.ev
	s.mu.Unlock()
	if ev != nil {
		ev.OnClose(code, reason)
	}
	return nil
}

// serverClose simulates the gateway dropping the connection with code.
func (s *fakeSocket) serverClose(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeCode = code
	ev := s.ev
	s.mu.Unlock()
	if ev != nil {
		ev.OnClose(code, reason)
	}
}

func (s *fakeSocket) deliver(frame string) {
	s.mu.Lock()
	ev := s.ev
	s.mu.Unlock()
	if ev != nil {
		ev.OnMessage([]byte(frame))
	}
}

func (s *fakeSocket) frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, b := range s.sent {
		out[i] = string(b)
	}
	return out
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeTransport struct {
	mu      sync.Mutex
	urls    []string
	sockets []*fakeSocket

	// gate, when set, blocks every dial until it is closed or ctx ends.
	gate chan struct{}
	// fail, when set, makes every dial return it.
	fail error
}

func (t *fakeTransport) Dial(ctx context.Context, url string) (Socket, error) {
	t.mu.Lock()
	t.urls = append(t.urls, url)
	gate, fail := t.gate, t.fail
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	s := &fakeSocket{url: url}
	t.mu.Lock()
	t.sockets = append(t.sockets, s)
	t.mu.Unlock()
	return s, nil
}

func (t *fakeTransport) dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}

func (t *fakeTransport) last() *fakeSocket {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sockets) == 0 {
		return nil
	}
	return t.sockets[len(t.sockets)-1]
}

func (t *fakeTransport) setFail(err error) {
	t.mu.Lock()
	t.fail = err
	t.mu.Unlock()
}

// ---- scheduler ----

type manualTimer struct {
	s       *manualScheduler
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// manualScheduler only runs timers when the test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fireNext runs the earliest pending timer on the calling goroutine.
func (s *manualScheduler) fireNext() (time.Duration, bool) {
	s.mu.Lock()
	var next *manualTimer
	for _, t := range s.timers {
		if t.stopped || t.fired {
			continue
		}
		if next == nil || t.delay < next.delay {
			next = t
		}
	}
	if next == nil {
		s.mu.Unlock()
		return 0, false
	}
	next.fired = true
	s.mu.Unlock()
	next.f()
	return next.delay, true
}

// ---- fixture ----

type fixture struct {
	m     *ConnectionManager
	tr    *fakeTransport
	sched *manualScheduler
	auth  *auth.StaticProvider
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, mutate ...func(*ManagerConf)) *fixture {
	t.Helper()
	tr := &fakeTransport{}
	sched := &manualScheduler{}
	provider := auth.NewStaticProvider("opaque-token")
	conf := ManagerConf{
		ChatBaseURL:         "ws://gw.test/ws/chat",
		NotificationBaseURL: "ws://gw.test/ws/notifications",
		Transport:           tr,
		Clock:               func() time.Time { return testNow },
		AfterFunc:           sched.AfterFunc,
		Logger:              zap.NewNop(),
	}
	for _, fn := range mutate {
		fn(&conf)
	}
	m := NewConnectionManager(conf, provider, provider)
	t.Cleanup(m.Close)
	return &fixture{m: m, tr: tr, sched: sched, auth: provider}
}

var errRefused = errors.New("connection refused")

// mapDeduper is an in-test Deduper.
type mapDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *mapDeduper) SeenOnce(key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}
