package archive

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Detect peeks at the start of r and reports the archive format
func Detect(r *bufio.Reader) (Format, error) {
	head, err := r.Peek(len(Base64Prefix) + 1)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	if bytes.HasPrefix(head, zstdMagic) {
		return FormatZstd, nil
	}
	if bytes.HasPrefix(head, []byte(Base64Prefix+":")) {
		return FormatBase64, nil
	}
	return FormatJSONL, nil
}
