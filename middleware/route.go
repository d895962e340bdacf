package middleware

import (
	"github.com/gin-gonic/gin"

	midsec "github.com/mohdafzal1700/Doc-Door-sub002/middleware/security"
)

// RouteOpt configures one route. Token, when set, is the bearer secret the
// route requires.
type RouteOpt struct {
	Token string
}

// GET registers handler, behind the bearer check when opt asks for it.
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.Token != "" {
		r.GET(path, midsec.Middleware(midsec.StaticTokenOptions(opt.Token)), handler)
		return
	}
	r.GET(path, handler)
}
