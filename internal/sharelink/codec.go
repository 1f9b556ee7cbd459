// Package sharelink encodes result snapshots into URL query parameters.
//
// Two formats exist. The legacy format (param "data") is URL-safe base64 of
// the snapshot JSON. The robust format (param "d") wraps the snapshot in a
// {data, checksum} envelope and compresses it with LZ-string's URI-safe
// variant; older deflate-packed "d" values still decode. Readers try "d"
// first, then "data", then local state.
package sharelink

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/joelkehle/valuation-wizard/internal/compact"
	"github.com/joelkehle/valuation-wizard/internal/lzstring"
	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

// Query parameter names.
const (
	ParamLegacy = "data"
	ParamRobust = "d"
)

// Snapshot is the shareable projection of a wizard record.
type Snapshot struct {
	valuation.Record
	Timestamp string `json:"timestamp"`
}

// NewSnapshot projects a record at the given generation time.
func NewSnapshot(r valuation.Record, at time.Time) Snapshot {
	return Snapshot{Record: r, Timestamp: at.UTC().Format(time.RFC3339Nano)}
}

// GeneratedAt parses Timestamp; the zero time when it is absent or malformed.
func (s Snapshot) GeneratedAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, s.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// HasEssentials reports whether the snapshot carries the fields used as the
// integrity check for both formats.
func (s Snapshot) HasEssentials() bool {
	return strings.TrimSpace(s.FirstName) != "" &&
		strings.TrimSpace(s.Email) != "" &&
		strings.TrimSpace(s.CompanyName) != ""
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Checksum string          `json:"checksum"`
}

// EncodeLegacy renders the "data" parameter value.
func EncodeLegacy(s Snapshot) (string, error) {
	blob, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("sharelink: marshal snapshot: %w", err)
	}
	enc := base64.StdEncoding.EncodeToString(blob)
	enc = strings.NewReplacer("+", "-", "/", "_").Replace(enc)
	return strings.TrimRight(enc, "="), nil
}

func decodeLegacy(raw string) (Snapshot, error) {
	b64 := strings.NewReplacer("-", "+", "_", "/").Replace(strings.TrimSpace(raw))
	if rem := len(b64) % 4; rem != 0 {
		b64 += strings.Repeat("=", 4-rem)
	}
	blob, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sharelink: legacy base64: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(blob, &s); err != nil {
		return Snapshot{}, fmt.Errorf("sharelink: legacy json: %w", err)
	}
	return s, nil
}

// EncodeRobust renders the "d" parameter value.
func EncodeRobust(s Snapshot) (string, error) {
	inner, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("sharelink: marshal snapshot: %w", err)
	}
	outer, err := json.Marshal(envelope{Data: inner, Checksum: Checksum(string(inner))})
	if err != nil {
		return "", fmt.Errorf("sharelink: marshal envelope: %w", err)
	}
	return lzstring.CompressToEncodedURIComponent(string(outer)), nil
}

// unpackRobust accepts LZ-string values and falls back to deflate-packed ones.
func unpackRobust(raw string) ([]byte, error) {
	if text, err := lzstring.DecompressFromEncodedURIComponent(raw); err == nil && json.Valid([]byte(text)) {
		return []byte(text), nil
	}
	return compact.Unpack(strings.TrimSpace(raw))
}

// robustResult carries the decoded snapshot and whether the advisory checksum
// matched. Envelopes without a checksum report verified=false, checked=false.
type robustResult struct {
	snapshot Snapshot
	checked  bool
	verified bool
}

func decodeRobust(raw string) (robustResult, error) {
	blob, err := unpackRobust(raw)
	if err != nil {
		return robustResult{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(blob, &fields); err != nil {
		return robustResult{}, fmt.Errorf("sharelink: robust json: %w", err)
	}

	sum, hasChecksum := fields["checksum"]
	if !hasChecksum {
		var s Snapshot
		if err := json.Unmarshal(blob, &s); err != nil {
			return robustResult{}, fmt.Errorf("sharelink: robust bare data: %w", err)
		}
		return robustResult{snapshot: s}, nil
	}

	// A checksum that is not a string can never match.
	var want string
	wellFormed := json.Unmarshal(sum, &want) == nil
	data := fields["data"]
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return robustResult{}, fmt.Errorf("sharelink: robust data: %w", err)
	}
	var canonical bytes.Buffer
	if err := json.Compact(&canonical, data); err != nil {
		return robustResult{}, fmt.Errorf("sharelink: robust compact: %w", err)
	}
	return robustResult{
		snapshot: s,
		checked:  true,
		verified: wellFormed && Checksum(canonical.String()) == want,
	}, nil
}

// Checksum is a 32-bit rolling hash (h = h*31 + c over UTF-16 code units,
// signed overflow) rendered as the lower-case hex of its magnitude. It detects
// corruption; it is not a security boundary.
func Checksum(s string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 16)
}
