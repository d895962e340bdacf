package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Error codes returned in command results. The thousands digit groups them:
// 1xxx precondition, 2xxx transport, 3xxx protocol, 4xxx fatal connection.
const (
	ArgsError             = 1001
	NotAuthenticatedError = 1002
	NoCredentialError     = 1003

	NotConnectedError = 2001
	SendFailedError   = 2002
	SerializeError    = 2003

	ProtocolError = 3001

	AuthFatalError          = 4001
	ReconnectExhaustedError = 4002

	ServerInternalError = 5000
)

var (
	ErrArgs               = NewCodeError(ArgsError, "invalid argument")
	ErrNotAuthenticated   = NewCodeError(NotAuthenticatedError, "user not authenticated")
	ErrNoCredential       = NewCodeError(NoCredentialError, "no access token available")
	ErrNotConnected       = NewCodeError(NotConnectedError, "socket not connected")
	ErrSendFailed         = NewCodeError(SendFailedError, "send failed")
	ErrSerialize          = NewCodeError(SerializeError, "envelope serialization failed")
	ErrProtocol           = NewCodeError(ProtocolError, "malformed envelope")
	ErrAuthFatal          = NewCodeError(AuthFatalError, "authentication rejected by gateway")
	ErrReconnectExhausted = NewCodeError(ReconnectExhaustedError, "max reconnect attempts reached")
)

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

// WrapMsg returns a copy carrying msg and kv pairs in Detail, with a stack attached.
func (e CodeError) WrapMsg(msg string, kv ...any) error {
	ret := e
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if ret.Detail == "" {
			ret.Detail = detail
		} else {
			ret.Detail += ", " + detail
		}
	}
	return pkgerrors.WithStack(ret)
}

// Is reports whether err carries a CodeError with the same code.
func (e CodeError) Is(err error) bool {
	var codeErr CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return e.Code == codeErr.Code
}

const initialCapacity = 3

func (e CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// Code extracts the code of the first CodeError in err's chain, 0 if none.
func Code(err error) int {
	var codeErr CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return 0
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, toString(msg, kv))
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
