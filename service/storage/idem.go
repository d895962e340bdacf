// Package storage holds the duplicate-suppression stores the realtime bridge
// consults before republishing an inbound envelope.
package storage

import (
	"sync"
	"time"
)

// IdemStore remembers keys for a while. SeenOnce records key and reports
// whether it was already recorded and not yet expired.
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// MemIdem is a single-process IdemStore. Expired keys are swept in the
// background until Close.
type MemIdem struct {
	mu  sync.Mutex
	m   map[string]time.Time // key -> expiry
	ttl time.Duration
	now func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewMemIdem(defaultTTL time.Duration) *MemIdem {
	return newMemIdem(defaultTTL, time.Minute, time.Now)
}

func newMemIdem(defaultTTL, sweepEvery time.Duration, now func() time.Time) *MemIdem {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	mi := &MemIdem{
		m:    make(map[string]time.Time),
		ttl:  defaultTTL,
		now:  now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go mi.sweepLoop(sweepEvery)
	return mi
}

func (mi *MemIdem) sweepLoop(every time.Duration) {
	defer close(mi.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-mi.stop:
			return
		case <-t.C:
			mi.sweep()
		}
	}
}

func (mi *MemIdem) sweep() {
	now := mi.now()
	mi.mu.Lock()
	for k, exp := range mi.m {
		if !exp.After(now) {
			delete(mi.m, k)
		}
	}
	mi.mu.Unlock()
}

func (mi *MemIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if exp, ok := mi.m[key]; ok && exp.After(now) {
		return true, nil
	}
	mi.m[key] = now.Add(ttl)
	return false, nil
}

// Len is the number of keys currently held, expired or not.
func (mi *MemIdem) Len() int {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	return len(mi.m)
}

// Close stops the sweeper and waits for it.
func (mi *MemIdem) Close() error {
	mi.stopOnce.Do(func() { close(mi.stop) })
	<-mi.done
	return nil
}
