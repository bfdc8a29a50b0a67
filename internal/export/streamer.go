package export

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/tingly-dev/nodepack/internal/archive"
)

const (
	// StatusTrailer reports whether a streamed export completed. The HTTP
	// status is committed with the first byte, so later failures are only
	// visible here.
	StatusTrailer = "X-Nodepack-Status"

	defaultStreamBuffer = 32 * 1024
)

// Streamer writes archives to HTTP responses
type Streamer struct {
	bufferSize int
}

func NewStreamer(bufferSize int) *Streamer {
	if bufferSize <= 0 {
		bufferSize = defaultStreamBuffer
	}
	return &Streamer{bufferSize: bufferSize}
}

// SetHeaders sets the archive content type with UTF-8 encoding and an
// attachment file name. No Content-Length is sent.
func (s *Streamer) SetHeaders(h http.Header, name string, f archive.Format) {
	h.Set("Content-Type", mime.FormatMediaType(f.ContentType(), map[string]string{"charset": "utf-8"}))
	if name == "" {
		name = "root"
	}
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name + f.Extension()}))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Trailer", StatusTrailer)
}

// Stream hands fn a bounded, flushable writer on top of w and reports the
// outcome in the status trailer. Errors from fn are returned unchanged.
func (s *Streamer) Stream(w http.ResponseWriter, name string, f archive.Format, fn func(out io.Writer) error) error {
	s.SetHeaders(w.Header(), name, f)

	out := NewFlushWriter(w, s.bufferSize)
	err := fn(out)
	if err == nil {
		if ferr := out.Flush(); ferr != nil {
			err = fmt.Errorf("%w: %w", ErrIO, ferr)
		}
	}

	if err != nil {
		// a committed response gets its partial tail so the archive ends
		// in a truncated entry instead of looking complete
		if out.Flushed() {
			_ = out.Flush()
		}
		w.Header().Set(StatusTrailer, "error; kind="+Kind(err))
	} else {
		w.Header().Set(StatusTrailer, "ok")
	}
	return err
}

// FlushWriter buffers writes and pushes them through to the client on Flush
type FlushWriter struct {
	bw      *bufio.Writer
	flusher http.Flusher
	flushed bool
}

// NewFlushWriter wraps w; http.Flusher is used when w implements it
func NewFlushWriter(w io.Writer, size int) *FlushWriter {
	fw := &FlushWriter{bw: bufio.NewWriterSize(w, size)}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

func (fw *FlushWriter) Write(p []byte) (int, error) {
	return fw.bw.Write(p)
}

// Flush drains the buffer and flushes the HTTP response
func (fw *FlushWriter) Flush() error {
	if err := fw.bw.Flush(); err != nil {
		return err
	}
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	fw.flushed = true
	return nil
}

// Flushed reports whether anything was flushed, which commits an HTTP
// response
func (fw *FlushWriter) Flushed() bool {
	return fw.flushed
}
