package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"referral-engine/internal/logging"
)

// RequestLogger logs each request and records HTTP metrics
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		latency := time.Since(start)
		status := c.Writer.Status()

		HttpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		ResponseTimeHistogram.WithLabelValues(c.Request.Method, path).Observe(latency.Seconds())

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if status == 401 || status == 403 {
			logging.Logger.Warn("unauthorized request", fields...)
			return
		}
		logging.Logger.Info("request", fields...)
	}
}
