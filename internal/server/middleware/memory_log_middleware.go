package middleware

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/nodepack/internal/obs"
)

// RequestIDHeader carries the id assigned to every request
const RequestIDHeader = "X-Request-ID"

// MemoryLogMiddleware records every HTTP request into an in-memory ring
type MemoryLogMiddleware struct {
	hook   *obs.MemoryLogHook
	logger *logrus.Logger
}

// NewMemoryLogMiddleware creates a new memory log middleware
func NewMemoryLogMiddleware(maxEntries int) *MemoryLogMiddleware {
	hook := obs.NewMemoryLogHook(maxEntries)

	logger := logrus.New()
	logger.SetOutput(io.Discard) // only the hook receives request logs
	logger.AddHook(hook)

	return &MemoryLogMiddleware{
		hook:   hook,
		logger: logger,
	}
}

// Middleware assigns a request id and logs the request once it completes
func (m *MemoryLogMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		entry := m.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     statusCode,
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
			"body_size":  c.Writer.Size(),
			"user_agent": c.Request.UserAgent(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		msg := fmt.Sprintf("%s %s %d %v", c.Request.Method, path, statusCode, latency)
		switch {
		case statusCode >= http.StatusInternalServerError, len(c.Errors) > 0:
			entry.Error(msg)
		case statusCode >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Info(msg)
		}
	}
}

// Hook returns the underlying record ring
func (m *MemoryLogMiddleware) Hook() *obs.MemoryLogHook {
	return m.hook
}
