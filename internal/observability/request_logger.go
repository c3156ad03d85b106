package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequestLogger logs each request and records request metrics.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		status := c.Response().StatusCode()
		metrics.RecordRequest(route, c.Method(), status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("ip", c.IP()),
		}
		if status >= 500 {
			logger.Error("request", fields...)
		} else {
			logger.Info("request", fields...)
		}
		return err
	}
}
