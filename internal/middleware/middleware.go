package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type Middleware interface {
	NewRateLimiter(ctx *fiber.Ctx) error
	Allow(ip string) bool
	NewRequestIDMiddleware() fiber.Handler
	NewLoggingMiddleware() fiber.Handler
	GetRequestID(ctx *fiber.Ctx) string
}

type Options struct {
	RequestsPerSecond float64
	Burst             int
}

type middleware struct {
	rateLimiter *rateLimiter
	log         *logrus.Logger
}

func New(logger *logrus.Logger, opts Options) Middleware {
	return &middleware{
		rateLimiter: newRateLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		log:         logger,
	}
}

func (m *middleware) GetRequestID(ctx *fiber.Ctx) string {
	requestID, ok := ctx.Locals(RequestIDKey).(string)
	if !ok || requestID == "" {
		return "unknown"
	}
	return requestID
}
