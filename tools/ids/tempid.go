// Package ids issues the provisional ids the client gives optimistic messages
// until the gateway assigns a durable one.
package ids

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

const tempPrefix = "temp_"

// Source hands out strictly increasing ids: unix milliseconds in the high bits,
// a 12-bit counter in the low bits. A clock that steps back never produces a
// smaller id.
type Source struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func NewSource(now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	return &Source{now: now}
}

func (s *Source) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.now().UnixMilli() << 12
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

func (s *Source) TempID() string {
	return tempPrefix + strconv.FormatInt(s.Next(), 10)
}

var std = NewSource(time.Now)

// TempID issues a provisional id. Temp ids never collide with server ids,
// which are plain integers.
func TempID() string { return std.TempID() }

// IsTempID reports whether id was produced by TempID.
func IsTempID(id string) bool {
	return len(id) > len(tempPrefix) && strings.HasPrefix(id, tempPrefix)
}
