package errs

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeError_WrapMsgKeepsCode(t *testing.T) {
	err := ErrArgs.WrapMsg("content is required", "field", "content")
	assert.Equal(t, ArgsError, Code(err))
	assert.True(t, errors.Is(err, ErrArgs))
	assert.False(t, errors.Is(err, ErrSendFailed))
	assert.Equal(t, "1001 invalid argument content is required, field=content", err.Error())
}

func TestCodeError_WithDetailAppends(t *testing.T) {
	e := ErrNotConnected.WithDetail("42:7").WithDetail("closed")
	assert.Equal(t, "42:7, closed", e.Detail)
	assert.Equal(t, "", ErrNotConnected.Detail)
}

func TestCode_Plain(t *testing.T) {
	assert.Equal(t, 0, Code(nil))
	assert.Equal(t, 0, Code(errors.New("x")))
	assert.Equal(t, SendFailedError, Code(pkgerrors.Wrap(ErrSendFailed, "outer")))
}

func TestToString_OddKV(t *testing.T) {
	assert.Equal(t, "m, a=1, b=MISSING", toString("m", []any{"a", 1, "b"}))
	assert.Nil(t, Wrap(nil))
	assert.Nil(t, WrapMsg(nil, "x"))
}

func TestErrPanic(t *testing.T) {
	assert.Nil(t, ErrPanic(nil))
	err := ErrPanic("boom")
	assert.Equal(t, ServerInternalError, Code(err))
	assert.Contains(t, err.Error(), "boom")
}
