package archive

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/tingly-dev/nodepack/internal/repo"
)

// BinarySource supplies the content of one binary property
type BinarySource struct {
	Name string
	// Size is the content length if known, negative otherwise
	Size int64
	Open func() (io.ReadCloser, error)
}

// Writer encodes an archive onto an output stream. The manifest must be
// written before any node entry. Writer is not safe for concurrent use.
type Writer struct {
	out         *errWriter
	dst         io.Writer // out, possibly wrapped by a compressor or encoder
	zw          *zstd.Encoder
	b64         io.WriteCloser
	format      Format
	inlineLimit int64

	manifest bool
	entries  int
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithInlineLimit sets the largest binary read into memory before encoding.
// Larger or unsized binaries are streamed from their source.
func WithInlineLimit(n int64) WriterOption {
	return func(w *Writer) {
		w.inlineLimit = n
	}
}

// NewWriter creates a writer for format f on top of out
func NewWriter(out io.Writer, f Format, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		out:         &errWriter{w: out},
		format:      f,
		inlineLimit: 64 * 1024,
	}
	for _, opt := range opts {
		opt(w)
	}

	switch f {
	case FormatJSONL:
		w.dst = w.out
	case FormatZstd:
		zw, err := zstd.NewWriter(w.out, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		w.zw = zw
		w.dst = zw
	case FormatBase64:
		if _, err := fmt.Fprintf(w.out, "%s:%s:", Base64Prefix, CurrentVersion); err != nil {
			return nil, w.writeErr(err)
		}
		w.b64 = base64.NewEncoder(base64.StdEncoding, w.out)
		w.dst = w.b64
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", f)
	}
	return w, nil
}

// Format returns the transport format
func (w *Writer) Format() Format {
	return w.format
}

// Entries returns the number of entries written, manifest included
func (w *Writer) Entries() int {
	return w.entries
}

// WriteManifest writes the manifest line
func (w *Writer) WriteManifest(m *Manifest) error {
	if w.manifest {
		return fmt.Errorf("%w: manifest already written", ErrEncode)
	}
	line, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: manifest: %w", ErrEncode, err)
	}
	if err := w.write(append(line, '\n')); err != nil {
		return err
	}
	w.manifest = true
	w.entries++
	return nil
}

// WriteEntry writes one node entry. The header is encoded completely before
// the first byte is written, so an encoding error leaves no partial entry.
// Binary payloads are then base64 streamed in name order.
func (w *Writer) WriteEntry(p string, props repo.Properties, binaries []BinarySource) error {
	if !w.manifest {
		return fmt.Errorf("%w: node entry before manifest", ErrEncode)
	}

	header := wireEntryHeader{
		Type:       EntryTypeNode,
		Path:       p,
		Properties: make(map[string]wireProperty, len(props)),
	}
	for name, prop := range props {
		if prop.Type == repo.TypeBinary {
			continue
		}
		wp, err := encodeProperty(name, prop)
		if err != nil {
			return fmt.Errorf("entry %s: %w", p, err)
		}
		header.Properties[name] = wp
	}
	// encoding/json sorts map keys, which keeps entries deterministic
	line, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("%w: entry %s: %w", ErrEncode, p, err)
	}

	if len(binaries) == 0 {
		if err := w.write(append(line, '\n')); err != nil {
			return err
		}
		w.entries++
		return nil
	}

	sorted := make([]BinarySource, len(binaries))
	copy(sorted, binaries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	// reopen the object to append the binaries member
	line = append(line[:len(line)-1], `,"binaries":{`...)
	for i, b := range sorted {
		key, err := json.Marshal(b.Name)
		if err != nil {
			return fmt.Errorf("%w: binary name %q: %w", ErrEncode, b.Name, err)
		}
		if i > 0 {
			line = append(line, ',')
		}
		line = append(line, key...)
		line = append(line, ':', '"')
		if err := w.write(line); err != nil {
			return err
		}
		line = line[:0]

		if err := w.writeBinary(b); err != nil {
			return fmt.Errorf("entry %s binary %s: %w", p, b.Name, err)
		}
		line = append(line, '"')
	}
	line = append(line, "}}\n"...)
	if err := w.write(line); err != nil {
		return err
	}
	w.entries++
	return nil
}

func (w *Writer) writeBinary(b BinarySource) error {
	rc, err := b.Open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSource, err)
	}
	defer rc.Close()

	if b.Size >= 0 && b.Size <= w.inlineLimit {
		data, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSource, err)
		}
		return w.write([]byte(base64.StdEncoding.EncodeToString(data)))
	}

	enc := base64.NewEncoder(base64.StdEncoding, w.dst)
	if _, err := io.Copy(enc, &sourceReader{r: rc}); err != nil {
		return w.classify(err)
	}
	if err := enc.Close(); err != nil {
		return w.classify(err)
	}
	return nil
}

// Flush pushes buffered compressed data to the output and flushes the
// output itself when it supports flushing
func (w *Writer) Flush() error {
	if w.zw != nil {
		if err := w.zw.Flush(); err != nil {
			return w.classify(err)
		}
	}
	return w.flushOutput()
}

func (w *Writer) flushOutput() error {
	if f, ok := w.out.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return w.writeErr(err)
		}
	}
	return nil
}

// Close finishes the transport encoding. The underlying output is not closed.
func (w *Writer) Close() error {
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			return w.classify(err)
		}
	}
	if w.b64 != nil {
		if err := w.b64.Close(); err != nil {
			return w.classify(err)
		}
		if _, err := w.out.Write([]byte("\n")); err != nil {
			return w.writeErr(err)
		}
	}
	return w.flushOutput()
}

func (w *Writer) write(p []byte) error {
	if _, err := w.dst.Write(p); err != nil {
		return w.classify(err)
	}
	return nil
}

// classify tags an error as a source or output failure
func (w *Writer) classify(err error) error {
	var se *sourceError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", ErrSource, se.err)
	}
	if w.out.err != nil {
		return w.writeErr(w.out.err)
	}
	return w.writeErr(err)
}

func (w *Writer) writeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrWrite, err)
}

// errWriter remembers the first failure of the output
type errWriter struct {
	w   io.Writer
	err error
	n   int64
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.n += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		e.err = err
	}
	return n, err
}

// BytesWritten returns the number of bytes accepted by the output
func (w *Writer) BytesWritten() int64 {
	return w.out.n
}

type sourceError struct {
	err error
}

func (s *sourceError) Error() string {
	return s.err.Error()
}

func (s *sourceError) Unwrap() error {
	return s.err
}

type sourceReader struct {
	r io.Reader
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &sourceError{err: err}
	}
	return n, err
}

