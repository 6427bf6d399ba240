// Package server exposes the click counter over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tckz/go-clickcounter/internal/counter"
)

const (
	IncrementPath = "/api/increment-count"
	CountPath     = "/api/get-count"

	DefaultAllowedOrigin = "https://diabeticbuddy.netlify.app"
)

type options struct {
	allowedOrigin   string
	shutdownTimeout time.Duration
}

type Option func(o *options)

// WithAllowedOrigin sets the only origin browsers may call from.
func WithAllowedOrigin(origin string) Option {
	return func(o *options) {
		o.allowedOrigin = origin
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

type Server struct {
	router  *gin.Engine
	logger  *zap.Logger
	counter counter.Counter
	opts    options
}

func NewServer(logger *zap.Logger, c counter.Counter, opts ...Option) (*Server, error) {
	o := options{
		allowedOrigin:   DefaultAllowedOrigin,
		shutdownTimeout: 10 * time.Second,
	}
	for _, e := range opts {
		e(&o)
	}

	corsConfig := cors.Config{
		AllowOrigins: []string{o.allowedOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	// cors.New panics on an invalid config
	if err := corsConfig.Validate(); err != nil {
		return nil, fmt.Errorf("cors.Validate: origin=%s, %w", o.allowedOrigin, err)
	}

	router := gin.New()
	router.Use(requestID())
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(corsPassThrough(o.allowedOrigin, cors.New(corsConfig)))

	s := &Server{
		router:  router,
		logger:  logger,
		counter: c,
		opts:    o,
	}
	s.registerRoutes()
	return s, nil
}

// corsPassThrough serves requests from other origins without CORS headers
// instead of rejecting them; browsers still refuse to hand out the response.
func corsPassThrough(origin string, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if o := c.GetHeader("Origin"); o != "" && !strings.EqualFold(o, origin) {
			c.Next()
			return
		}
		h(c)
	}
}

// Handler returns the gin engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.POST(IncrementPath, s.incrementCount)
	s.router.GET(CountPath, s.getCount)
}

// Run serves on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info("Starting click counter server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ListenAndServe: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down click counter server")

		sctx, cancel := context.WithTimeout(context.Background(), s.opts.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("Shutdown: %w", err)
		}
		return nil
	})
	return eg.Wait()
}
