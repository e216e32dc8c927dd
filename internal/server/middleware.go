package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request after it completes.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request", fields...)
		} else {
			log.Info("request", fields...)
		}
	}
}

// AdminAuth gates mutating dashboard endpoints behind a shared bearer token.
// An empty configured token disables the gate (local development).
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: errorPayload{
				Type:    "forbidden",
				Message: "admin token required",
			}})
			return
		}
		c.Next()
	}
}

// RefreshRateLimit paces the manual refresh endpoint.
func (s *Server) RefreshRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := s.refreshLimiter.Allow(c.Request.Context())
		if !allowed {
			seconds := int(retryAfter / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many refresh requests",
			}})
			return
		}
		c.Next()
	}
}
