package archive

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/gjson"

	"github.com/tingly-dev/nodepack/internal/repo"
)

// Reader decodes an archive written by Writer, in any transport format
type Reader struct {
	br       *bufio.Reader
	zr       *zstd.Decoder
	format   Format
	manifest *Manifest
	line     int
}

// NewReader detects the format of r and reads the manifest
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	format, err := Detect(br)
	if err != nil {
		return nil, fmt.Errorf("failed to detect archive format: %w", err)
	}

	rd := &Reader{format: format}
	switch format {
	case FormatZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		rd.zr = zr
		rd.br = bufio.NewReader(zr)
	case FormatBase64:
		prefix, err := br.ReadString(':')
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		version, err := br.ReadString(':')
		if err != nil {
			return nil, fmt.Errorf("%w: expected prefix:version:payload", ErrCorrupt)
		}
		if strings.TrimSuffix(prefix, ":") != Base64Prefix {
			return nil, fmt.Errorf("%w: missing %s prefix", ErrCorrupt, Base64Prefix)
		}
		if v := strings.TrimSuffix(version, ":"); v != CurrentVersion {
			return nil, fmt.Errorf("unsupported version: %s (supported: %s)", v, CurrentVersion)
		}
		rd.br = bufio.NewReader(base64.NewDecoder(base64.StdEncoding, br))
	default:
		rd.br = br
	}

	if err := rd.readManifest(); err != nil {
		rd.Close()
		return nil, err
	}
	return rd, nil
}

// Format returns the detected transport format
func (r *Reader) Format() Format {
	return r.format
}

// Manifest returns the archive manifest
func (r *Reader) Manifest() *Manifest {
	return r.manifest
}

// Next returns the next node entry, or io.EOF after the last one
func (r *Reader) Next() (*Entry, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}

	switch t := gjson.GetBytes(line, "type").String(); t {
	case EntryTypeNode:
	case EntryTypeManifest:
		return nil, fmt.Errorf("%w: line %d: duplicate manifest", ErrCorrupt, r.line)
	default:
		return nil, fmt.Errorf("%w: line %d: unknown entry type %q", ErrCorrupt, r.line, t)
	}

	var raw rawEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", ErrCorrupt, r.line, err)
	}
	if !repo.IsAbs(raw.Path) {
		return nil, fmt.Errorf("%w: line %d: invalid path %q", ErrCorrupt, r.line, raw.Path)
	}

	entry := &Entry{
		Path:       raw.Path,
		Properties: make(repo.Properties, len(raw.Properties)),
		Binaries:   raw.Binaries,
	}
	if entry.Binaries == nil {
		entry.Binaries = map[string][]byte{}
	}
	for name, rp := range raw.Properties {
		prop, err := rp.decode()
		if err != nil {
			return nil, fmt.Errorf("line %d property %s: %w", r.line, name, err)
		}
		entry.Properties[name] = prop
	}
	return entry, nil
}

// Close releases decoder resources
func (r *Reader) Close() {
	if r.zr != nil {
		r.zr.Close()
	}
}

func (r *Reader) readManifest() error {
	line, err := r.readLine()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: empty archive", ErrCorrupt)
	}
	if err != nil {
		return err
	}
	if t := gjson.GetBytes(line, "type").String(); t != EntryTypeManifest {
		return fmt.Errorf("%w: first entry is %q, want manifest", ErrCorrupt, t)
	}

	var m Manifest
	if err := json.Unmarshal(line, &m); err != nil {
		return fmt.Errorf("%w: manifest: %v", ErrCorrupt, err)
	}
	if m.Format != FormatName {
		return fmt.Errorf("%w: unknown format marker %q", ErrCorrupt, m.Format)
	}
	if m.Version != CurrentVersion {
		return fmt.Errorf("unsupported version: %s (supported: %s)", m.Version, CurrentVersion)
	}
	if m.Exclude == nil {
		m.Exclude = []string{}
	}
	r.manifest = &m
	return nil
}

// readLine returns the next non-empty line without its terminator
func (r *Reader) readLine() ([]byte, error) {
	for {
		line, err := r.br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(line)) == 0 {
				return nil, io.EOF
			}
			r.line++
			return nil, fmt.Errorf("%w: line %d: truncated entry", ErrCorrupt, r.line)
		}
		r.line++
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

// ReadAll decodes a whole archive
func ReadAll(r io.Reader) (*Manifest, []*Entry, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	defer rd.Close()

	var entries []*Entry
	for {
		e, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return rd.Manifest(), entries, nil
		}
		if err != nil {
			return rd.Manifest(), entries, err
		}
		entries = append(entries, e)
	}
}
