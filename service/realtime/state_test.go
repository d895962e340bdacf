package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectPolicy_Delay(t *testing.T) {
	p := DefaultReconnectPolicy()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, p.Delay(i), "attempt %d", i)
		assert.True(t, p.CanRetry(i))
	}
	assert.False(t, p.CanRetry(5))
	assert.Equal(t, 30*time.Second, p.Delay(5))
	assert.Equal(t, 30*time.Second, p.Delay(40))
	assert.Equal(t, time.Second, p.Delay(-1))
}

func TestIsFatalClose(t *testing.T) {
	for _, code := range []int{4000, 4001, 4003, 4004} {
		assert.True(t, IsFatalClose(code), code)
	}
	for _, code := range []int{1000, 1001, 1006, 1011, 4002, 4500} {
		assert.False(t, IsFatalClose(code), code)
	}
}

func TestMachine_TransientClosesBackOffThenGiveUp(t *testing.T) {
	m := NewMachine(DefaultReconnectPolicy())
	var delays []time.Duration
	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		m.Apply(Input{Kind: InputAcquire, HandleID: id})
		require.Equal(t, StateConnecting, m.State())

		tr := m.Apply(Input{Kind: InputClosed, HandleID: id, Code: CloseAbnormal})
		assert.Equal(t, StateDisconnected, tr.To)
		_, removed := tr.Has(EffectRemoveRecord)
		assert.True(t, removed)

		if eff, ok := tr.Has(EffectScheduleRetry); ok {
			delays = append(delays, eff.Delay)
			assert.Equal(t, i+1, eff.Attempt)
			continue
		}
		eff, ok := tr.Has(EffectEmitAuthError)
		require.True(t, ok, "close %d neither retried nor gave up", i)
		assert.Equal(t, 5, i)
		assert.Contains(t, eff.Reason, "max reconnect attempts")
	}
	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}, delays)
	assert.Equal(t, 5, m.Attempts())
}

func TestMachine_FatalCloseEmitsAuthErrorOnce(t *testing.T) {
	m := NewMachine(DefaultReconnectPolicy())
	m.Apply(Input{Kind: InputAcquire, HandleID: "h1"})
	m.Apply(Input{Kind: InputOpened, HandleID: "h1"})
	require.Equal(t, StateConnected, m.State())

	tr := m.Apply(Input{Kind: InputClosed, HandleID: "h1", Code: CloseUnauthorized, Reason: "bad token"})
	var auth int
	for _, e := range tr.Effects {
		assert.NotEqual(t, EffectScheduleRetry, e.Kind)
		if e.Kind == EffectEmitAuthError {
			auth++
			assert.Equal(t, CloseUnauthorized, e.Code)
			assert.Equal(t, "bad token", e.Reason)
		}
	}
	assert.Equal(t, 1, auth)
	assert.Equal(t, 0, m.Attempts())

	// a late duplicate close for the same socket changes nothing
	again := m.Apply(Input{Kind: InputClosed, HandleID: "h1", Code: CloseUnauthorized})
	assert.Empty(t, again.Effects)
}

func TestMachine_NormalAndManualClosesNeverRetry(t *testing.T) {
	cases := []Input{
		{Kind: InputClosed, HandleID: "h", Code: CloseNormal},
		{Kind: InputClosed, HandleID: "h", Code: CloseAbnormal, Manual: true},
		{Kind: InputClosed, HandleID: "h", Code: CloseUnauthorized, Manual: true},
	}
	for _, in := range cases {
		m := NewMachine(DefaultReconnectPolicy())
		m.Apply(Input{Kind: InputAcquire, HandleID: "h"})
		tr := m.Apply(in)
		_, retry := tr.Has(EffectScheduleRetry)
		_, authErr := tr.Has(EffectEmitAuthError)
		assert.False(t, retry, "%+v", in)
		assert.False(t, authErr, "%+v", in)
		assert.Equal(t, StateDisconnected, m.State())
	}
}

func TestMachine_StaleOpenIsClosed(t *testing.T) {
	m := NewMachine(DefaultReconnectPolicy())
	m.Apply(Input{Kind: InputAcquire, HandleID: "old"})
	tr := m.Apply(Input{Kind: InputAcquire, HandleID: "new"})
	eff, ok := tr.Has(EffectCloseStale)
	require.True(t, ok)
	assert.Equal(t, "old", eff.HandleID)

	tr = m.Apply(Input{Kind: InputOpened, HandleID: "old"})
	eff, ok = tr.Has(EffectCloseStale)
	require.True(t, ok)
	assert.Equal(t, "old", eff.HandleID)
	assert.False(t, tr.Changed)
	assert.Equal(t, StateConnecting, m.State())

	tr = m.Apply(Input{Kind: InputOpened, HandleID: "new"})
	assert.Equal(t, StateConnected, tr.To)
	eff, ok = tr.Has(EffectSendConnectionTest)
	require.True(t, ok)
	assert.Equal(t, "new", eff.HandleID)

	// events from the replaced socket are ignored
	tr = m.Apply(Input{Kind: InputClosed, HandleID: "old", Code: CloseAbnormal})
	assert.Empty(t, tr.Effects)
	assert.Equal(t, StateConnected, m.State())
}

func TestMachine_OpenResetsCounter(t *testing.T) {
	m := NewMachine(DefaultReconnectPolicy())
	m.Apply(Input{Kind: InputAcquire, HandleID: "a"})
	m.Apply(Input{Kind: InputClosed, HandleID: "a", Code: CloseAbnormal})
	m.Apply(Input{Kind: InputAcquire, HandleID: "b"})
	m.Apply(Input{Kind: InputClosed, HandleID: "b", Code: CloseAbnormal})
	require.Equal(t, 2, m.Attempts())

	m.Apply(Input{Kind: InputAcquire, HandleID: "c"})
	m.Apply(Input{Kind: InputOpened, HandleID: "c"})
	assert.Equal(t, 0, m.Attempts())

	tr := m.Apply(Input{Kind: InputClosed, HandleID: "c", Code: CloseAbnormal})
	eff, ok := tr.Has(EffectScheduleRetry)
	require.True(t, ok)
	assert.Equal(t, time.Second, eff.Delay)
}

func TestMachine_ErrorDoesNotTearDown(t *testing.T) {
	m := NewMachine(DefaultReconnectPolicy())
	m.Apply(Input{Kind: InputAcquire, HandleID: "h"})
	m.Apply(Input{Kind: InputOpened, HandleID: "h"})
	tr := m.Apply(Input{Kind: InputErrored, HandleID: "h"})
	assert.Equal(t, StateError, tr.To)
	assert.Empty(t, tr.Effects)
	assert.True(t, m.IsCurrent("h"))
}

func TestMachine_ConnectTimeoutAndRelease(t *testing.T) {
	m := NewMachine(DefaultReconnectPolicy())
	m.Apply(Input{Kind: InputAcquire, HandleID: "h"})
	tr := m.Apply(Input{Kind: InputConnectTimeout, HandleID: "h"})
	assert.Equal(t, StateDisconnected, tr.To)
	_, forced := tr.Has(EffectForceClose)
	assert.True(t, forced)
	_, retry := tr.Has(EffectScheduleRetry)
	assert.False(t, retry)
	assert.Equal(t, "", m.CurrentHandle())

	m.Apply(Input{Kind: InputAcquire, HandleID: "h2"})
	m.Apply(Input{Kind: InputClosed, HandleID: "h2", Code: CloseAbnormal})
	require.Equal(t, 1, m.Attempts())
	tr = m.Apply(Input{Kind: InputReleased})
	_, cancel := tr.Has(EffectCancelRetry)
	assert.True(t, cancel)
	assert.Equal(t, 0, m.Attempts())
}

func TestState_MarshalText(t *testing.T) {
	b, err := StateConnected.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "connected", string(b))
	assert.Equal(t, "unknown", State(42).String())
}
