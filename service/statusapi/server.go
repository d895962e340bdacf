// Package statusapi serves the connection table over HTTP for local tooling:
// a tray indicator, a health probe, or curl while debugging.
package statusapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
	"github.com/mohdafzal1700/Doc-Door-sub002/middleware"
	"github.com/mohdafzal1700/Doc-Door-sub002/service/realtime"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/errs"
)

// StatusSource is satisfied by *realtime.ConnectionManager.
type StatusSource interface {
	Status(key realtime.SocketKey) realtime.StatusSnapshot
	StatusAll() []realtime.StatusSnapshot
}

// NotificationsAlias may be used in place of the notification sentinel scope
// in /status/:scope/:user.
const NotificationsAlias = "notifications"

type Options struct {
	Token string // bearer secret for /status routes; empty disables the check
}

type Server struct {
	src  StatusSource
	opt  Options
	mids *middleware.MiddlewareManager
	log  *zap.Logger

	engine *gin.Engine
	srv    *http.Server
}

func New(src StatusSource, opt Options) *Server {
	s := &Server{
		src:  src,
		opt:  opt,
		mids: middleware.NewManager(),
		log:  logger.Named("statusapi"),
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Middlewares lets callers add filters in front of every route. Filters must
// not call c.Next; they either pass or abort.
func (s *Server) Middlewares() *middleware.MiddlewareManager { return s.mids }

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog, s.mids.Use())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	opt := middleware.RouteOpt{Token: s.opt.Token}
	middleware.GET(r, "/status", s.listStatus, opt)
	middleware.GET(r, "/status/:scope/:user", s.getStatus, opt)
	return r
}

func (s *Server) listStatus(c *gin.Context) {
	all := s.src.StatusAll()
	connected := 0
	for _, st := range all {
		if st.Connected {
			connected++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"connections": all,
		"total":       len(all),
		"connected":   connected,
	})
}

func (s *Server) getStatus(c *gin.Context) {
	scope := c.Param("scope")
	if scope == NotificationsAlias {
		scope = realtime.NotificationScope
	}
	key := realtime.SocketKey{Scope: scope, UserID: c.Param("user")}
	if !key.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("scope and user are required"))
		return
	}
	c.JSON(http.StatusOK, s.src.Status(key))
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("took", time.Since(start)))
}

// Start listens on addr and serves in the background. It returns once the
// listener is bound so callers learn about a busy port immediately.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server stopped", zap.Error(err))
		}
	}()
	s.log.Info("status api listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
