package middleware

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/nodepack/internal/export"
)

// FilterContext provides the context for filter expression evaluation
type FilterContext struct {
	StatusCode int    `expr:"StatusCode"`
	Method     string `expr:"Method"`
	Path       string `expr:"Path"`
	Query      string `expr:"Query"`
	// ExportStatus is the export status trailer, empty for other requests
	ExportStatus string `expr:"ExportStatus"`
}

// ErrorLogMiddleware appends selected requests as JSON lines to a log writer
type ErrorLogMiddleware struct {
	out           io.WriteCloser
	filterProgram *vm.Program
	filter        string
	mu            sync.RWMutex
}

// CompileFilter compiles a boolean filter over FilterContext
func CompileFilter(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression, expr.Env(FilterContext{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", err)
	}
	return program, nil
}

// NewErrorLogMiddleware writes matching requests to out, usually a rotated
// log file
func NewErrorLogMiddleware(out io.WriteCloser, expression string) (*ErrorLogMiddleware, error) {
	program, err := CompileFilter(expression)
	if err != nil {
		return nil, err
	}
	return &ErrorLogMiddleware{
		out:           out,
		filterProgram: program,
		filter:        expression,
	}, nil
}

// SetFilterExpression recompiles and sets a new filter expression. The old
// filter stays in place when the new one does not compile.
func (em *ErrorLogMiddleware) SetFilterExpression(expression string) error {
	program, err := CompileFilter(expression)
	if err != nil {
		return err
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	em.filterProgram = program
	em.filter = expression
	return nil
}

// FilterExpression returns the active filter source
func (em *ErrorLogMiddleware) FilterExpression() string {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.filter
}

// Middleware returns the Gin middleware function
func (em *ErrorLogMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fc := FilterContext{
			StatusCode:   c.Writer.Status(),
			Method:       c.Request.Method,
			Path:         c.Request.URL.Path,
			Query:        c.Request.URL.RawQuery,
			ExportStatus: c.Writer.Header().Get(export.StatusTrailer),
		}
		if !em.match(fc) {
			return
		}

		entry := logEntry{
			Timestamp:    start.Format(time.RFC3339Nano),
			RequestID:    c.Writer.Header().Get(RequestIDHeader),
			Method:       fc.Method,
			Path:         fc.Path,
			Query:        fc.Query,
			StatusCode:   fc.StatusCode,
			ExportStatus: fc.ExportStatus,
			DurationMs:   time.Since(start).Milliseconds(),
			BodySize:     c.Writer.Size(),
			ClientIP:     c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			Errors:       c.Errors.Errors(),
		}
		em.write(entry)
	}
}

type logEntry struct {
	Timestamp    string   `json:"timestamp"`
	RequestID    string   `json:"request_id,omitempty"`
	Method       string   `json:"method"`
	Path         string   `json:"path"`
	Query        string   `json:"query,omitempty"`
	StatusCode   int      `json:"status_code"`
	ExportStatus string   `json:"export_status,omitempty"`
	DurationMs   int64    `json:"duration_ms"`
	BodySize     int      `json:"body_size"`
	ClientIP     string   `json:"client_ip,omitempty"`
	UserAgent    string   `json:"user_agent,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

func (em *ErrorLogMiddleware) match(fc FilterContext) bool {
	em.mu.RLock()
	program := em.filterProgram
	em.mu.RUnlock()

	out, err := expr.Run(program, fc)
	if err != nil {
		logrus.Errorf("Failed to evaluate filter expression: %v", err)
		return fc.StatusCode >= 400
	}
	ok, _ := out.(bool)
	return ok
}

func (em *ErrorLogMiddleware) write(entry logEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		logrus.Errorf("Failed to marshal error log entry: %v", err)
		return
	}
	data = append(data, '\n')

	em.mu.Lock()
	defer em.mu.Unlock()
	if _, err := em.out.Write(data); err != nil {
		logrus.Errorf("Failed to write error log entry: %v", err)
	}
}

// Stop closes the log writer
func (em *ErrorLogMiddleware) Stop() error {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.out.Close()
}
