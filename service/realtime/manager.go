package realtime

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/auth"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/errs"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/safe"
)

// Timer is a cancellable scheduled call.
type Timer interface {
	Stop() bool
}

// Deduper remembers keys for a while; storage.IdemStore satisfies it.
type Deduper interface {
	SeenOnce(key string, ttl time.Duration) (bool, error)
}

// ===== config =====

type ManagerConf struct {
	ChatBaseURL         string
	NotificationBaseURL string
	ConnectTimeout      time.Duration // a socket still connecting after this is dropped (15s)
	WaitTimeout         time.Duration // how long a caller waits on another caller's attempt (10s)
	Policy              ReconnectPolicy

	Transport Transport
	Clock     func() time.Time                      // nil => time.Now
	AfterFunc func(d time.Duration, f func()) Timer // nil => time.AfterFunc
	Deduper   Deduper                               // nil => no inbound duplicate filter
	DedupTTL  time.Duration
	Logger    *zap.Logger
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.AfterFunc == nil {
		c.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
	def := DefaultReconnectPolicy()
	if c.Policy.Base <= 0 {
		c.Policy.Base = def.Base
	}
	if c.Policy.Max <= 0 {
		c.Policy.Max = def.Max
	}
	if c.Policy.MaxAttempts <= 0 {
		c.Policy.MaxAttempts = def.MaxAttempts
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = logger.Named("realtime")
	}
	if c.Transport == nil {
		c.Transport = NewWSTransport(25*time.Second, 10*time.Second)
	}
}

// ===== records =====

// Handle is the manager's reference to one socket. UI code may hold it to check
// IsOpen but can never reach the socket itself.
type Handle struct {
	id  string
	key SocketKey

	mu     sync.Mutex // serializes writes so frames leave in call order
	sock   Socket
	open   atomic.Bool
	manual atomic.Bool
}

func newHandle(key SocketKey) *Handle {
	return &Handle{id: uuid.NewString(), key: key}
}

func (h *Handle) ID() string     { return h.id }
func (h *Handle) Key() SocketKey { return h.key }
func (h *Handle) IsOpen() bool   { return h != nil && h.open.Load() }

func (h *Handle) attach(s Socket) {
	h.mu.Lock()
	h.sock = s
	h.mu.Unlock()
	h.open.Store(true)
}

func (h *Handle) send(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open.Load() || h.sock == nil {
		return errs.ErrNotConnected.WrapMsg("", "key", h.key.String())
	}
	return h.sock.Send(data)
}

// close marks the close as local so it is never retried.
func (h *Handle) close(code int, reason string) {
	h.manual.Store(true)
	h.open.Store(false)
	h.mu.Lock()
	s := h.sock
	h.mu.Unlock()
	if s != nil {
		_ = s.Close(code, reason)
	}
}

// attempt is the single in-flight connection attempt for a key. Every caller
// that arrives while it runs waits on done instead of dialing again.
type attempt struct {
	done   chan struct{}
	once   sync.Once
	handle *Handle
}

func newAttempt() *attempt { return &attempt{done: make(chan struct{})} }

func (a *attempt) resolve(h *Handle) {
	a.once.Do(func() {
		a.handle = h
		close(a.done)
	})
}

type entry struct {
	machine *Machine
	handle  *Handle
	pending *attempt
	retry   Timer
}

// StatusSnapshot is a read-only view of one key for indicators and tests.
type StatusSnapshot struct {
	Scope             string `json:"scope"`
	UserID            string `json:"user_id"`
	State             State  `json:"state"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	RetryScheduled    bool   `json:"retry_scheduled"`
	Connected         bool   `json:"connected"`
}

func (s StatusSnapshot) Key() SocketKey { return SocketKey{Scope: s.Scope, UserID: s.UserID} }

// ===== manager =====

// ConnectionManager owns every socket of one application session: one per
// active conversation plus the notification channel. Build one per session and
// hand it to the code that needs it.
type ConnectionManager struct {
	conf   ManagerConf
	tokens auth.TokenProvider
	auth   auth.AuthState
	bus    *Bus
	log    *zap.Logger

	mu      sync.Mutex
	entries map[SocketKey]*entry
	closed  bool
}

func NewConnectionManager(conf ManagerConf, tokens auth.TokenProvider, state auth.AuthState) *ConnectionManager {
	safe.MustNotNil(tokens, "token provider")
	safe.MustNotNil(state, "auth state")
	conf.norm()
	return &ConnectionManager{
		conf:    conf,
		tokens:  tokens,
		auth:    state,
		bus:     NewBus(),
		log:     conf.Logger,
		entries: make(map[SocketKey]*entry),
	}
}

// Bus is where UI code subscribes to inbound events.
func (m *ConnectionManager) Bus() *Bus { return m.bus }

func (m *ConnectionManager) now() time.Time { return m.conf.Clock() }

func (m *ConnectionManager) entryLocked(key SocketKey) *entry {
	e := m.entries[key]
	if e == nil {
		e = &entry{machine: NewMachine(m.conf.Policy)}
		m.entries[key] = e
	}
	return e
}

// Acquire returns an open handle for key, connecting if needed. It returns
// false, never an error, when it could not proceed: not signed in, no
// credential, dial failure, timeout, or the key was released meanwhile.
func (m *ConnectionManager) Acquire(ctx context.Context, key SocketKey) (*Handle, bool) {
	if !key.Valid() {
		return nil, false
	}
	log := m.log.With(zap.String("key", key.String()))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, false
	}
	if e := m.entries[key]; e != nil {
		if h := e.handle; h.IsOpen() && e.machine.State() == StateConnected {
			m.mu.Unlock()
			return h, true
		}
		if p := e.pending; p != nil {
			m.mu.Unlock()
			log.Debug("waiting for in-flight connection")
			return m.await(ctx, p)
		}
	}
	// not signed in: leave no record behind
	if !m.auth.IsUserAuthenticated() {
		m.mu.Unlock()
		log.Warn("acquire skipped: user not authenticated")
		return nil, false
	}
	e := m.entryLocked(key)

	h := newHandle(key)
	p := newAttempt()
	e.pending = p
	_, work := m.stepLocked(key, e, Input{Kind: InputAcquire, HandleID: h.id}, h)
	e.handle = h
	m.mu.Unlock()
	runWork(work)

	token, ok := m.tokens.GetValidAccessToken()
	if !ok || token == "" {
		log.Warn("acquire aborted", zap.Error(errs.ErrNoCredential))
		m.finishAttempt(key, e, p, nil, Input{Kind: InputAbort, HandleID: h.id})
		return nil, false
	}

	target := endpointURL(m.conf.ChatBaseURL, m.conf.NotificationBaseURL, key, token)
	log.Debug("dialing", zap.String("url", redactURL(target)))

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.conf.ConnectTimeout)
	sock, err := m.conf.Transport.Dial(dctx, target)
	timedOut := dctx.Err() == context.DeadlineExceeded
	cancel()

	if err != nil {
		if timedOut {
			log.Warn("connect timed out", zap.Duration("timeout", m.conf.ConnectTimeout))
			m.finishAttempt(key, e, p, nil, Input{Kind: InputConnectTimeout, HandleID: h.id})
			return nil, false
		}
		log.Warn("dial failed", zap.Error(err))
		m.transportEvent(key, h, Input{Kind: InputErrored, HandleID: h.id})
		m.finishAttempt(key, e, p, nil, dialCloseInput(h.id, err))
		return nil, false
	}

	h.attach(sock)
	if !m.finishAttempt(key, e, p, h, Input{Kind: InputOpened, HandleID: h.id}) {
		return nil, false
	}
	sock.Listen(&socketEvents{m: m, key: key, h: h})
	log.Info("connected")
	return h, true
}

// finishAttempt applies the outcome of an attempt and resolves its waiters.
// It reports whether h ended up as the connected socket for key.
func (m *ConnectionManager) finishAttempt(key SocketKey, e *entry, p *attempt, h *Handle, in Input) bool {
	m.mu.Lock()
	live := m.entries[key] == e
	var (
		t    Transition
		work []func()
	)
	if live {
		t, work = m.stepLocked(key, e, in, h)
		if e.pending == p {
			e.pending = nil
		}
	}
	connected := live && in.Kind == InputOpened && e.machine.IsCurrent(in.HandleID) && t.To == StateConnected
	m.mu.Unlock()

	if in.Kind == InputOpened && !connected && h != nil {
		// released or replaced while the handshake ran
		h.close(CloseNormal, "replaced")
	}
	runWork(work)
	if connected {
		p.resolve(h)
	} else {
		p.resolve(nil)
	}
	return connected
}

func (m *ConnectionManager) await(ctx context.Context, p *attempt) (*Handle, bool) {
	t := time.NewTimer(m.conf.WaitTimeout)
	defer t.Stop()
	select {
	case <-p.done:
		h := p.handle
		return h, h.IsOpen()
	case <-t.C:
		m.log.Warn("timed out waiting for in-flight connection", zap.Duration("timeout", m.conf.WaitTimeout))
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Release closes key's socket with a normal closure and forgets its state,
// reconnect counter and pending retry.
func (m *ConnectionManager) Release(key SocketKey) {
	m.mu.Lock()
	e := m.entries[key]
	if e == nil {
		m.mu.Unlock()
		return
	}
	_, work := m.stepLocked(key, e, Input{Kind: InputReleased}, nil)
	p := e.pending
	e.pending = nil
	delete(m.entries, key)
	m.mu.Unlock()

	runWork(work)
	if p != nil {
		p.resolve(nil)
	}
	m.log.Info("released", zap.String("key", key.String()))
}

// ReleaseAllChats releases every conversation socket and keeps the
// notification channel, e.g. when the user leaves the messages area.
func (m *ConnectionManager) ReleaseAllChats() {
	for _, key := range m.keys(func(k SocketKey) bool { return !k.IsNotification() }) {
		m.Release(key)
	}
}

// Close releases everything; the manager refuses new acquires afterwards.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	for _, key := range m.keys(nil) {
		m.Release(key)
	}
}

func (m *ConnectionManager) keys(filter func(SocketKey) bool) []SocketKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SocketKey, 0, len(m.entries))
	for k := range m.entries {
		if filter == nil || filter(k) {
			out = append(out, k)
		}
	}
	return out
}

// Status reports one key. Unknown keys are idle.
func (m *ConnectionManager) Status(key SocketKey) StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(key, m.entries[key])
}

// StatusAll reports every known key, ordered by key.
func (m *ConnectionManager) StatusAll() []StatusSnapshot {
	m.mu.Lock()
	out := make([]StatusSnapshot, 0, len(m.entries))
	for k, e := range m.entries {
		out = append(out, m.snapshotLocked(k, e))
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

func (m *ConnectionManager) snapshotLocked(key SocketKey, e *entry) StatusSnapshot {
	s := StatusSnapshot{Scope: key.Scope, UserID: key.UserID, State: StateIdle}
	if e == nil {
		return s
	}
	s.State = e.machine.State()
	s.ReconnectAttempts = e.machine.Attempts()
	s.RetryScheduled = e.retry != nil
	s.Connected = s.State == StateConnected && e.handle.IsOpen()
	return s
}
