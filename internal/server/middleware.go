package server

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dudu/facecascade/internal/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

func newRequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
			if err == nil {
				requestID = id.String()
			}
		}

		c.Locals(logger.RequestIDKey, requestID)
		c.Set(RequestIDHeader, requestID)

		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	id, ok := c.Locals(logger.RequestIDKey).(string)
	if !ok || id == "" {
		return "unknown"
	}
	return id
}

func (s *Server) loggingMiddleware(c *fiber.Ctx) error {
	start := time.Now()

	if err := c.Next(); err != nil {
		// render the error now so the logged status is the one sent
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			return herr
		}
	}

	status := c.Response().StatusCode()
	fields := logrus.Fields{
		logger.RequestIDKey: requestID(c),
		"method":            c.Method(),
		"path":              c.Path(),
		"status":            status,
		"latency_ms":        time.Since(start).Milliseconds(),
		"ip":                c.IP(),
		"request_size":      len(c.Request().Body()),
		"response_size":     len(c.Response().Body()),
	}

	switch {
	case status >= 500:
		s.log.WithFields(fields).Error("Server error")
	case status >= 400:
		s.log.WithFields(fields).Warn("Client error")
	default:
		s.log.WithFields(fields).Info("Success")
	}

	return nil
}

const minLimiterIdle = time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client IP. Buckets idle long enough to
// have refilled completely are dropped, since a fresh bucket behaves the same.
type rateLimiter struct {
	bucket    map[string]*clientLimiter
	rate      rate.Limit
	burstSize int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
	mutex     sync.Mutex
}

func newRateLimiter(reqRate rate.Limit, burstSize int) *rateLimiter {
	idle := time.Duration(float64(burstSize) / float64(reqRate) * float64(time.Second))
	if idle < minLimiterIdle {
		idle = minLimiterIdle
	}
	return &rateLimiter{
		bucket:    make(map[string]*clientLimiter),
		rate:      reqRate,
		burstSize: burstSize,
		idle:      idle,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (r *rateLimiter) limiterFor(ip string) *rate.Limiter {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.idle {
		r.sweep(now)
	}

	c, ok := r.bucket[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(r.rate, r.burstSize)}
		r.bucket[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (r *rateLimiter) sweep(now time.Time) {
	for ip, c := range r.bucket {
		if now.Sub(c.lastSeen) >= r.idle {
			delete(r.bucket, ip)
		}
	}
	r.lastSweep = now
}

func (r *rateLimiter) size() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.bucket)
}

func (s *Server) rateLimitMiddleware(c *fiber.Ctx) error {
	ip := c.IP()
	if !s.limiter.limiterFor(ip).Allow() {
		s.log.WithField("ip", ip).Warn("too many requests")
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "too many requests",
		})
	}
	return c.Next()
}
