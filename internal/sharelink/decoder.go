package sharelink

import (
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// Decoder is one share-link format on the read side.
type Decoder interface {
	// Param is the query parameter this decoder reads.
	Param() string
	TryDecode(raw string) (Snapshot, bool)
}

// RobustDecoder reads the compressed, checksummed "d" format. A checksum
// mismatch is logged and the data is still returned.
type RobustDecoder struct {
	Logger *zap.Logger
}

func (RobustDecoder) Param() string { return ParamRobust }

func (d RobustDecoder) TryDecode(raw string) (Snapshot, bool) {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if raw == "" {
		return Snapshot{}, false
	}
	res, err := decodeRobust(raw)
	if err != nil {
		log.Debug("robust share link rejected", zap.Error(err))
		return Snapshot{}, false
	}
	if res.checked && !res.verified {
		log.Warn("share link checksum mismatch; using data anyway",
			zap.String("company", res.snapshot.CompanyName))
	}
	if !res.snapshot.HasEssentials() {
		log.Debug("robust share link missing essential fields")
		return Snapshot{}, false
	}
	return res.snapshot, true
}

// LegacyDecoder reads the base64 "data" format.
type LegacyDecoder struct {
	Logger *zap.Logger
}

func (LegacyDecoder) Param() string { return ParamLegacy }

func (d LegacyDecoder) TryDecode(raw string) (Snapshot, bool) {
	if raw == "" {
		return Snapshot{}, false
	}
	s, err := decodeLegacy(raw)
	if err != nil || !s.HasEssentials() {
		if d.Logger != nil {
			d.Logger.Debug("legacy share link rejected", zap.Error(err))
		}
		return Snapshot{}, false
	}
	return s, true
}

// DefaultDecoders returns the decoders in their compatibility order.
func DefaultDecoders(log *zap.Logger) []Decoder {
	return []Decoder{RobustDecoder{Logger: log}, LegacyDecoder{Logger: log}}
}

// Source names where a resolved snapshot came from.
type Source string

const (
	SourceNone  Source = ""
	SourceLocal Source = "local"
)

// Resolve tries each decoder against its query parameter in order, then the
// fallback. The first success wins.
func Resolve(q url.Values, decoders []Decoder, fallback func() (Snapshot, bool)) (Snapshot, Source, bool) {
	for _, d := range decoders {
		if s, ok := d.TryDecode(q.Get(d.Param())); ok {
			return s, Source(d.Param()), true
		}
	}
	if fallback != nil {
		if s, ok := fallback(); ok {
			return s, SourceLocal, true
		}
	}
	return Snapshot{}, SourceNone, false
}

// Links holds both share URLs for one snapshot.
type Links struct {
	Legacy string `json:"legacy"`
	Robust string `json:"robust"`
}

// BuildLinks encodes s in both formats against baseURL.
func BuildLinks(baseURL string, s Snapshot) (Links, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return Links{}, fmt.Errorf("sharelink: parse base url: %w", err)
	}
	legacy, err := EncodeLegacy(s)
	if err != nil {
		return Links{}, err
	}
	robust, err := EncodeRobust(s)
	if err != nil {
		return Links{}, err
	}
	return Links{
		Legacy: withParam(*base, ParamLegacy, legacy),
		Robust: withParam(*base, ParamRobust, robust),
	}, nil
}

func withParam(u url.URL, key, value string) string {
	q := u.Query()
	q.Del(ParamLegacy)
	q.Del(ParamRobust)
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
