package safe

import (
	"fmt"
	"reflect"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/errs"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required collaborators during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(name string, f func()) {
	go Run(name, f)
}

// Run calls f on the current goroutine and recovers any panic into a log line.
// It reports whether f returned normally.
func Run(name string, f func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic recovered",
				zap.String("where", name),
				zap.Error(errs.ErrPanic(r)),
				zap.ByteString("stack", debug.Stack()))
			ok = false
		}
	}()
	f()
	return true
}
