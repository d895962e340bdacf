package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mohdafzal1700/Doc-Door-sub002/tools/errs"
)

// context key holding the presented credential
const CtxAuthKey = "authorization"

type Options struct {
	// HeaderToken is read first, then Authorization: Bearer.
	HeaderToken               string
	EnableAuthorizationBearer bool
	// Verify accepts or rejects the presented token.
	Verify func(token string) bool
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               "X-Docdoor-Token",
		EnableAuthorizationBearer: true,
	}
}

// StaticTokenOptions accepts exactly secret.
func StaticTokenOptions(secret string) *Options {
	o := DefaultOptions()
	o.Verify = func(token string) bool {
		return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
	}
	return o
}

func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); len(authz) > len("bearer ") &&
				strings.EqualFold(authz[:len("bearer ")], "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" || (opts.Verify != nil && !opts.Verify(token)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrNotAuthenticated)
			return
		}
		c.Set(CtxAuthKey, token)
		c.Next()
	}
}
