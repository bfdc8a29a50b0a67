package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func newEngine(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/export/*path", func(c *gin.Context) {
		c.String(http.StatusNotFound, "missing")
	})
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestCompileFilterRejectsNonBool(t *testing.T) {
	_, err := CompileFilter("StatusCode + 1")
	assert.Error(t, err)

	_, err = CompileFilter("Unknown > 1")
	assert.Error(t, err)

	_, err = CompileFilter("Method == 'GET'")
	assert.NoError(t, err)
}

func TestErrorLogMiddlewareFilter(t *testing.T) {
	out := &bufferCloser{}
	em, err := NewErrorLogMiddleware(out, "StatusCode >= 400")
	require.NoError(t, err)
	r := newEngine(em.Middleware())

	for _, target := range []string{"/health", "/export/a?format=zstd"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"path":"/export/a"`)
	assert.Contains(t, lines[0], `"query":"format=zstd"`)

	require.NoError(t, em.SetFilterExpression("Path == '/health'"))
	assert.Equal(t, "Path == '/health'", em.FilterExpression())
	assert.Error(t, em.SetFilterExpression("Path +"))
	assert.Equal(t, "Path == '/health'", em.FilterExpression())

	out.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, out.String(), `"path":"/health"`)

	require.NoError(t, em.Stop())
	assert.True(t, out.closed)
}

func TestMemoryLogMiddlewareRequestID(t *testing.T) {
	m := NewMemoryLogMiddleware(10)
	r := newEngine(m.Middleware())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export/x", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	records := m.Hook().Latest(0)
	require.Len(t, records, 2)
	assert.Equal(t, "abc", records[0].Fields["request_id"])
	assert.Equal(t, "info", records[0].Level)
	assert.Equal(t, "warning", records[1].Level)
}
