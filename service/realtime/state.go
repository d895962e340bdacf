package realtime

import (
	"fmt"
	"time"
)

// State is the lifecycle state of one socket key.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// InputKind enumerates the transport and manager events the machine consumes.
type InputKind int

const (
	InputAcquire InputKind = iota
	InputAbort             // acquire gave up before dialing (no credential)
	InputOpened
	InputErrored
	InputClosed
	InputConnectTimeout
	InputReleased
)

func (k InputKind) String() string {
	switch k {
	case InputAcquire:
		return "acquire"
	case InputAbort:
		return "abort"
	case InputOpened:
		return "opened"
	case InputErrored:
		return "errored"
	case InputClosed:
		return "closed"
	case InputConnectTimeout:
		return "connect_timeout"
	case InputReleased:
		return "released"
	default:
		return fmt.Sprintf("input(%d)", int(k))
	}
}

// Input is one event for the machine. HandleID ties transport events to the
// socket that produced them so events from a replaced socket can be ignored.
type Input struct {
	Kind     InputKind
	HandleID string
	Code     int
	Reason   string
	Manual   bool // the close was requested locally
}

// EffectKind enumerates what the owner of a machine must do after a transition.
type EffectKind int

const (
	EffectSendConnectionTest EffectKind = iota
	EffectCloseStale
	EffectForceClose
	EffectRemoveRecord
	EffectScheduleRetry
	EffectCancelRetry
	EffectEmitAuthError
)

func (k EffectKind) String() string {
	switch k {
	case EffectSendConnectionTest:
		return "send_connection_test"
	case EffectCloseStale:
		return "close_stale"
	case EffectForceClose:
		return "force_close"
	case EffectRemoveRecord:
		return "remove_record"
	case EffectScheduleRetry:
		return "schedule_retry"
	case EffectCancelRetry:
		return "cancel_retry"
	case EffectEmitAuthError:
		return "emit_auth_error"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

type Effect struct {
	Kind     EffectKind
	HandleID string        // CloseStale, ForceClose
	Delay    time.Duration // ScheduleRetry
	Attempt  int           // ScheduleRetry: 1-based attempt number
	Code     int           // EmitAuthError
	Reason   string        // EmitAuthError
	Message  string        // EmitAuthError
}

// Transition is the result of applying one input.
type Transition struct {
	From    State
	To      State
	Changed bool
	Effects []Effect
}

func (t Transition) Has(kind EffectKind) (Effect, bool) {
	for _, e := range t.Effects {
		if e.Kind == kind {
			return e, true
		}
	}
	return Effect{}, false
}

// Machine is the lifecycle of one socket key. It never touches a socket or a
// timer; it only reports the effects its owner has to carry out, which keeps
// it testable without a transport. Not safe for concurrent use.
type Machine struct {
	state    State
	attempts int
	current  string
	policy   ReconnectPolicy
}

func NewMachine(policy ReconnectPolicy) *Machine {
	return &Machine{policy: policy}
}

func (m *Machine) State() State          { return m.state }
func (m *Machine) Attempts() int         { return m.attempts }
func (m *Machine) CurrentHandle() string { return m.current }

// IsCurrent reports whether handleID is the socket the key currently points at.
func (m *Machine) IsCurrent(handleID string) bool {
	return handleID != "" && handleID == m.current
}

// Apply feeds one input and returns the resulting transition.
func (m *Machine) Apply(in Input) Transition {
	t := Transition{From: m.state, To: m.state}
	switch in.Kind {
	case InputAcquire:
		if m.current != "" && m.current != in.HandleID {
			t.Effects = append(t.Effects, Effect{Kind: EffectCloseStale, HandleID: m.current})
		}
		m.current = in.HandleID
		m.state = StateConnecting
		t.Effects = append(t.Effects, Effect{Kind: EffectCancelRetry})

	case InputAbort:
		if in.HandleID != "" && !m.IsCurrent(in.HandleID) {
			return t
		}
		m.current = ""
		m.state = StateIdle

	case InputOpened:
		if !m.IsCurrent(in.HandleID) || m.state != StateConnecting {
			// a newer socket replaced this one while it was opening
			t.Effects = append(t.Effects, Effect{Kind: EffectCloseStale, HandleID: in.HandleID})
			return t
		}
		m.state = StateConnected
		m.attempts = 0
		t.Effects = append(t.Effects, Effect{Kind: EffectSendConnectionTest, HandleID: in.HandleID})

	case InputErrored:
		if !m.IsCurrent(in.HandleID) {
			return t
		}
		if m.state == StateConnecting || m.state == StateConnected {
			m.state = StateError
		}

	case InputClosed:
		if !m.IsCurrent(in.HandleID) {
			return t
		}
		m.current = ""
		m.state = StateDisconnected
		t.Effects = append(t.Effects, Effect{Kind: EffectRemoveRecord})
		t.Effects = append(t.Effects, m.closePolicy(in)...)

	case InputConnectTimeout:
		if !m.IsCurrent(in.HandleID) || m.state != StateConnecting {
			return t
		}
		m.current = ""
		m.state = StateDisconnected
		t.Effects = append(t.Effects,
			Effect{Kind: EffectForceClose, HandleID: in.HandleID},
			Effect{Kind: EffectRemoveRecord})

	case InputReleased:
		if m.current != "" {
			t.Effects = append(t.Effects, Effect{Kind: EffectForceClose, HandleID: m.current})
		}
		m.current = ""
		m.attempts = 0
		m.state = StateDisconnected
		t.Effects = append(t.Effects, Effect{Kind: EffectRemoveRecord}, Effect{Kind: EffectCancelRetry})
	}
	t.To = m.state
	t.Changed = t.From != t.To
	return t
}

func (m *Machine) closePolicy(in Input) []Effect {
	switch {
	case in.Manual || in.Code == CloseNormal:
		return nil
	case IsFatalClose(in.Code):
		return []Effect{{
			Kind:    EffectEmitAuthError,
			Code:    in.Code,
			Reason:  in.Reason,
			Message: "authentication failed, please sign in again",
		}}
	case m.policy.CanRetry(m.attempts):
		delay := m.policy.Delay(m.attempts)
		m.attempts++
		return []Effect{{Kind: EffectScheduleRetry, Delay: delay, Attempt: m.attempts}}
	default:
		return []Effect{{
			Kind:    EffectEmitAuthError,
			Code:    in.Code,
			Reason:  "max reconnect attempts reached",
			Message: "connection lost, please sign in again",
		}}
	}
}
