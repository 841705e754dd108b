package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/beekhof/ics-calendar-sync/internal/runner"
)

const (
	DefaultAddr = ":8080"

	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second

	syncRateLimit = 1 // triggers per second
	syncBurst     = 2
)

// SyncRunner runs one sync.
type SyncRunner interface {
	Run(ctx context.Context) runner.Result
}

// Server exposes sync triggering, liveness and metrics over HTTP. At most one
// sync runs at a time; overlapping triggers get 409.
type Server struct {
	runner  SyncRunner
	metrics http.Handler
	logger  *slog.Logger
	engine  *gin.Engine

	running sync.Mutex
}

// New creates a Server. metrics may be nil to disable /metrics.
func New(r SyncRunner, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{runner: r, metrics: metrics, logger: logger}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes(engine)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.GET("/healthz", s.liveness)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	r.POST("/sync", RateLimiter(syncRateLimit, syncBurst), s.triggerSync)
}

func (s *Server) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) triggerSync(c *gin.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("sync trigger rejected, run in progress")
		c.JSON(http.StatusConflict, runner.Result{
			StatusCode: http.StatusConflict,
			Error:      "a sync run is already in progress",
		})
		return
	}
	defer s.running.Unlock()

	// A started run is not abandoned when the caller disconnects.
	res := s.runner.Run(context.WithoutCancel(c.Request.Context()))
	c.JSON(res.StatusCode, res)
}

// RateLimiter rejects requests above rps with 429.
func RateLimiter(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// requestLogger logs method, path, status and latency. Query strings are not
// logged.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, letting an in-flight sync finish within DefaultShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
