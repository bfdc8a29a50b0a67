package archive

import (
	"errors"
	"fmt"
	"strings"
)

// Format represents the archive transport format
type Format string

const (
	// FormatJSONL is the line-delimited JSON archive
	FormatJSONL Format = "jsonl"
	// FormatZstd is the JSONL archive compressed as a zstd stream
	FormatZstd Format = "zstd"
	// FormatBase64 is the Base64-encoded JSONL archive with a version prefix
	FormatBase64 Format = "base64"
)

const (
	// FormatName marks a nodepack manifest
	FormatName = "nodepack"
	// CurrentVersion is the current archive format version
	CurrentVersion = "1.0"
	// Base64Prefix is the prefix for Base64 format archives
	Base64Prefix = "NPB64"
)

const (
	EntryTypeManifest = "manifest"
	EntryTypeNode     = "node"
)

var (
	// ErrWrite wraps failures of the output the archive is written to
	ErrWrite = errors.New("archive write failed")
	// ErrEncode wraps data that cannot be represented in the archive
	ErrEncode = errors.New("archive encoding failed")
	// ErrSource wraps failures reading binary content to embed
	ErrSource = errors.New("archive source read failed")
	// ErrCorrupt is returned by the reader for malformed archives
	ErrCorrupt = errors.New("corrupt archive")
)

// ParseFormat parses a format name; empty selects JSONL
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatJSONL):
		return FormatJSONL, nil
	case string(FormatZstd):
		return FormatZstd, nil
	case string(FormatBase64):
		return FormatBase64, nil
	default:
		return "", fmt.Errorf("unsupported archive format: %s", s)
	}
}

// ContentType returns the MIME type served for the format
func (f Format) ContentType() string {
	switch f {
	case FormatZstd:
		return "application/vnd.nodepack+zstd"
	case FormatBase64:
		return "text/plain"
	default:
		return "application/vnd.nodepack+jsonl"
	}
}

// Extension returns the file extension used for downloads
func (f Format) Extension() string {
	switch f {
	case FormatZstd:
		return ".nodepack.zst"
	case FormatBase64:
		return ".nodepack.txt"
	default:
		return ".nodepack.jsonl"
	}
}
