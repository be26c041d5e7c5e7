package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	applogger "FinPolicy/pkg/logger"
	"FinPolicy/pkg/http/middleware"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config is the server section of the application config.
type Config struct {
	Host            string                     `yaml:"host" default:"0.0.0.0"`
	Port            int                        `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration              `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration              `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration              `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration              `yaml:"slow_request" default:"500ms"`
	CORS            middleware.CORSConfig      `yaml:"cors"`
	RateLimit       middleware.RateLimitConfig `yaml:"rate_limit"`
}

// ServerOption configures Server.
type ServerOption func(*Config)

// Server wraps an Echo server.
type Server struct {
	echo   *echo.Echo
	config *Config
	l      *applogger.Logger
}

// NewServer builds the server and registers handler routes and /metrics.
func NewServer(handler Handler, l *applogger.Logger, opts ...ServerOption) *Server {
	cfg := &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SlowRequest:     500 * time.Millisecond,
		CORS:            middleware.CORSConfig{Enabled: true, MaxAge: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if l == nil {
		l = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover(l))
	e.Use(middleware.RequestLogging(l))
	e.Use(middleware.Metrics(l, cfg.SlowRequest))
	if cfg.RateLimit.RPS > 0 {
		e.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit)))
	}
	if cfg.CORS.Enabled {
		e.Use(middleware.CORS(cfg.CORS))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	return &Server{echo: e, config: cfg, l: l.Component("http")}
}

// errorHandler writes echo errors and domain errors in the API envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = DataResponse(c, he.Code, fmt.Sprint(he.Message))
		return
	}
	_ = ErrorResponse(c, err)
}

// Start listens in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	go func() {
		s.l.Info("http server listening", applogger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http server error", applogger.Error(err))
		}
	}()
	return nil
}

// Stop shuts down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.l.Info("http server stopped")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ShutdownTimeout is the configured grace period.
func (s *Server) ShutdownTimeout() time.Duration {
	return s.config.ShutdownTimeout
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) ServerOption {
	return func(cfg *Config) { *cfg = c }
}

// WithHost sets server host.
func WithHost(host string) ServerOption {
	return func(c *Config) { c.Host = host }
}

// WithPort sets server port.
func WithPort(port int) ServerOption {
	return func(c *Config) { c.Port = port }
}

// WithCORS replaces the cross-origin policy.
func WithCORS(cors middleware.CORSConfig) ServerOption {
	return func(c *Config) { c.CORS = cors }
}

// WithRateLimit enables per-IP rate limiting.
func WithRateLimit(rl middleware.RateLimitConfig) ServerOption {
	return func(c *Config) { c.RateLimit = rl }
}
