// Package server exposes the face detector over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"image"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dudu/facecascade/internal/detector"
	"github.com/dudu/facecascade/internal/render"
)

// Detector runs the cascade on a decoded image.
type Detector interface {
	DetectTimed(img image.Image, params detector.ScanParams) ([]detector.Face, detector.Timing, error)
}

// stream frames bypass fiber's encoder
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ResultCache stores results of earlier requests.
type ResultCache interface {
	Get(ctx context.Context, key string) (render.Result, bool, error)
	Set(ctx context.Context, key string, res render.Result) error
}

// ServerOption configures a Server.
type ServerOption func(*Server) error

// Server serves detection requests.
type Server struct {
	app       *fiber.App
	detector  Detector
	cache     ResultCache
	log       *logrus.Logger
	validator *validator.Validate
	limiter   *rateLimiter
	defaults  detector.ScanParams
	bodyLimit int
}

// NewServer applies the options and registers the routes.
func NewServer(options ...ServerOption) (*Server, error) {
	s := &Server{
		defaults:  detector.DefaultScanParams,
		bodyLimit: 20 * 1024 * 1024,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if s.detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if s.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if s.validator == nil {
		s.validator = validator.New()
	}
	if s.limiter == nil {
		s.limiter = newRateLimiter(20, 40)
	}

	s.app = newFiber(s.bodyLimit)
	s.routes()

	return s, nil
}

// WithDetector sets the detector serving requests
func WithDetector(d Detector) ServerOption {
	return func(s *Server) error {
		s.detector = d
		return nil
	}
}

// WithLogger sets the request logger
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

// WithValidator sets the query validator
func WithValidator(v *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = v
		return nil
	}
}

// WithCache enables result caching
func WithCache(c ResultCache) ServerOption {
	return func(s *Server) error {
		s.cache = c
		return nil
	}
}

// WithRateLimit limits requests per client IP
func WithRateLimit(perSecond float64, burst int) ServerOption {
	return func(s *Server) error {
		if perSecond <= 0 || burst <= 0 {
			return fmt.Errorf("rate limit must be positive")
		}
		s.limiter = newRateLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithScanDefaults sets the scan parameters used when a request gives none
func WithScanDefaults(params detector.ScanParams) ServerOption {
	return func(s *Server) error {
		if err := params.Validate(); err != nil {
			return err
		}
		s.defaults = params
		return nil
	}
}

func newFiber(bodyLimit int) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               "facecascade",
		BodyLimit:             bodyLimit,
		StrictRouting:         true,
		CaseSensitive:         true,
		DisableStartupMessage: true,
		JSONEncoder:           jsoniter.Marshal,
		JSONDecoder:           jsoniter.Unmarshal,
	})
}

func (s *Server) routes() {
	s.app.Use(newRequestIDMiddleware())
	s.app.Use(s.loggingMiddleware)

	s.app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api/v1", s.rateLimitMiddleware)
	api.Post("/detect", s.detect)

	api.Use("/detect/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/detect/ws", websocket.New(s.detectStream))
}

// App returns the underlying fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called
func (s *Server) Listen(addr string) error {
	s.log.WithField("addr", addr).Info("serving")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
