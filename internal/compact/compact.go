// Package compact turns JSON payloads into short strings that are safe to
// place in a URL query parameter or a cookie value without further escaping.
package compact

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// MaxUnpackedBytes bounds decompression of untrusted input.
const MaxUnpackedBytes = 256 << 10

var ErrTooLarge = errors.New("compact: payload exceeds size limit")

// Pack deflates b and renders it as unpadded URL-safe base64.
func Pack(b []byte) (string, error) {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("compact: new writer: %w", err)
	}
	if _, err := zw.Write(b); err != nil {
		return "", fmt.Errorf("compact: deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compact: close: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Unpack reverses Pack.
func Unpack(s string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("compact: base64: %w", err)
	}
	zr := flate.NewReader(bytes.NewReader(raw))
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, MaxUnpackedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("compact: inflate: %w", err)
	}
	if len(out) > MaxUnpackedBytes {
		return nil, ErrTooLarge
	}
	return out, nil
}
