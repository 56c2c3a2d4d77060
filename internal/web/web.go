package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"officehours/internal/config"
	"officehours/internal/engine"
	appLog "officehours/internal/log"
)

const shutdownTimeout = 10 * time.Second

// Commands is the engine surface the API drives. *engine.Engine implements it.
type Commands interface {
	Create(ctx context.Context, req engine.CreateRequest) (engine.Result, error)
	List(ctx context.Context, req engine.ListRequest) (engine.Result, error)
	Edit(ctx context.Context, req engine.EditRequest) (engine.Result, error)
	Delete(ctx context.Context, req engine.DeleteRequest) (engine.Result, error)
	Prune(ctx context.Context, before time.Time) (engine.Result, error)
	Location() *time.Location
}

// Server exposes the office hour commands over HTTP.
type Server struct {
	cfg      *config.Config
	commands Commands
	gatherer prometheus.Gatherer
	now      func() time.Time
	router   *gin.Engine
}

type Option func(*Server)

// WithGatherer sets where /metrics reads from. Defaults to the global registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithClock overrides time.Now for the default prune cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, commands Commands, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		commands: commands,
		gatherer: prometheus.DefaultGatherer,
		now:      time.Now,
		router:   gin.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router.Use(gin.Recovery(), requestLogger())
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.cfg.BasicAuth.Enabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.cfg.Metrics {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api")
	if s.cfg.BasicAuth.Enabled() {
		api.Use(s.basicAuthMiddleware())
	}
	api.POST("/officehours", s.handleCreate)
	api.GET("/officehours/:owner_id", s.handleList)
	api.PATCH("/officehours", s.handleEdit)
	api.DELETE("/officehours", s.handleDelete)
	api.POST("/prune", s.handlePrune)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// basicAuthMiddleware guards the /api group. /health stays public.
func (s *Server) basicAuthMiddleware() gin.HandlerFunc {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return func(c *gin.Context) {
		u, p, ok := c.Request.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			c.Header("WWW-Authenticate", `Basic realm="OfficeHours", charset="UTF-8"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewError("unauthorized", nil))
			return
		}
		c.Next()
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		appLog.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(started).String(),
		)
	}
}
