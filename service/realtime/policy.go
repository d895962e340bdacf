package realtime

import "time"

// Close codes the gateway uses.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006

	CloseAuthFailed     = 4000
	CloseUnauthorized   = 4001
	CloseForbidden      = 4003
	CloseNotParticipant = 4004
)

// IsFatalClose reports whether code signals an authentication or authorization
// failure. Retrying with the same credential would fail the same way.
func IsFatalClose(code int) bool {
	switch code {
	case CloseAuthFailed, CloseUnauthorized, CloseForbidden, CloseNotParticipant:
		return true
	}
	return false
}

// ReconnectPolicy is exponential backoff with a cap and a bounded attempt budget.
type ReconnectPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait before the retry that follows `attempts` earlier retries:
// min(Base * 2^attempts, Max).
func (p ReconnectPolicy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := p.Base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// CanRetry reports whether another automatic attempt is allowed.
func (p ReconnectPolicy) CanRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}
