package sharelink

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joelkehle/valuation-wizard/internal/compact"
	"github.com/joelkehle/valuation-wizard/internal/lzstring"
	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

func sampleSnapshot() Snapshot {
	return NewSnapshot(valuation.Record{
		ARR:           1_000_000,
		QoQGrowthRate: 40,
		RevenueChurn:  valuation.ChurnUnder2,
		Profitability: valuation.ProfitableOver20,
		MarketGravity: valuation.GravityMassiveMagnet,
		CACContext:    valuation.CACContextUnknown,
		BusinessModel: valuation.BusinessModelB2B,
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Email:         "ada@example.com",
		CompanyName:   "Analytical Engines Ltd",
		Website:       "https://example.com/?a=1&b=<2>",
	}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestChecksumKnownValues(t *testing.T) {
	assert.Equal(t, "0", Checksum(""))
	assert.Equal(t, "61", Checksum("a"))
	assert.Equal(t, "c21", Checksum("ab"))
	assert.Equal(t, "5e918d2", Checksum("hello"))
	// Overflows to math.MinInt32; the magnitude is rendered.
	assert.Equal(t, "80000000", Checksum("polygenelubricants"))
}

func TestChecksumSensitiveToSingleCharacter(t *testing.T) {
	inner, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)
	base := Checksum(string(inner))

	for i := 0; i < len(inner); i++ {
		flipped := []byte(string(inner))
		flipped[i] ^= 0x01
		assert.NotEqualf(t, base, Checksum(string(flipped)), "flip at %d", i)
	}
}

func TestLegacyRoundTrip(t *testing.T) {
	s := sampleSnapshot()
	enc, err := EncodeLegacy(s)
	require.NoError(t, err)
	assert.NotContains(t, enc, "=")
	assert.NotContains(t, enc, "+")
	assert.NotContains(t, enc, "/")

	got, ok := LegacyDecoder{}.TryDecode(enc)
	require.True(t, ok)
	assert.Equal(t, s, got)
}

func TestLegacyRejectsMissingEssentials(t *testing.T) {
	for _, mutate := range []func(*Snapshot){
		func(s *Snapshot) { s.FirstName = "" },
		func(s *Snapshot) { s.Email = "" },
		func(s *Snapshot) { s.CompanyName = "" },
	} {
		s := sampleSnapshot()
		mutate(&s)
		enc, err := EncodeLegacy(s)
		require.NoError(t, err)
		_, ok := LegacyDecoder{}.TryDecode(enc)
		assert.False(t, ok)
	}
}

func TestLegacyRejectsGarbage(t *testing.T) {
	_, ok := LegacyDecoder{}.TryDecode("!!!")
	assert.False(t, ok)
	_, ok = LegacyDecoder{}.TryDecode("bm90IGpzb24")
	assert.False(t, ok)
}

func TestRobustRoundTripVerifiesChecksum(t *testing.T) {
	log, logs := observedLogger()
	s := sampleSnapshot()
	enc, err := EncodeRobust(s)
	require.NoError(t, err)

	got, ok := RobustDecoder{Logger: log}.TryDecode(enc)
	require.True(t, ok)
	assert.Equal(t, s, got)
	assert.Zero(t, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestRobustChecksumMismatchIsAdvisory(t *testing.T) {
	log, logs := observedLogger()
	s := sampleSnapshot()
	inner, err := json.Marshal(s)
	require.NoError(t, err)
	outer, err := json.Marshal(envelope{Data: inner, Checksum: "deadbeef"})
	require.NoError(t, err)
	enc, err := compact.Pack(outer)
	require.NoError(t, err)

	got, ok := RobustDecoder{Logger: log}.TryDecode(enc)
	require.True(t, ok)
	assert.Equal(t, s.Email, got.Email)
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestRobustIsLZStringEnvelope(t *testing.T) {
	s := sampleSnapshot()
	enc, err := EncodeRobust(s)
	require.NoError(t, err)

	text, err := lzstring.DecompressFromEncodedURIComponent(enc)
	require.NoError(t, err)
	var env struct {
		Data     Snapshot `json:"data"`
		Checksum string   `json:"checksum"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &env))
	assert.Equal(t, s, env.Data)
	assert.NotEmpty(t, env.Checksum)
}

func TestRobustDecodesBrowserLinks(t *testing.T) {
	log, logs := observedLogger()
	inner := `{"arr":250000,"qoqGrowthRate":12,"firstName":"Grace","email":"grace@example.com","companyName":"Cobol Inc","timestamp":"2026-02-01T08:00:00.000Z"}`
	outer := `{"data":` + inner + `,"checksum":"` + Checksum(inner) + `"}`
	enc := lzstring.CompressToEncodedURIComponent(outer)

	got, ok := RobustDecoder{Logger: log}.TryDecode(enc)
	require.True(t, ok)
	assert.Equal(t, "Cobol Inc", got.CompanyName)
	assert.Equal(t, 250_000.0, got.ARR)
	assert.Zero(t, logs.FilterLevelExact(zap.WarnLevel).Len())

	// Form decoding turns '+' into a space.
	got, ok = RobustDecoder{}.TryDecode(strings.ReplaceAll(enc, "+", " "))
	require.True(t, ok)
	assert.Equal(t, "grace@example.com", got.Email)
}

func TestRobustNonStringChecksumIsAMismatch(t *testing.T) {
	log, logs := observedLogger()
	s := sampleSnapshot()
	inner, err := json.Marshal(s)
	require.NoError(t, err)
	outer := `{"data":` + string(inner) + `,"checksum":12345}`

	for _, enc := range []string{lzstring.CompressToEncodedURIComponent(outer), mustPack(t, outer)} {
		got, ok := RobustDecoder{Logger: log}.TryDecode(enc)
		require.True(t, ok)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, 2, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func mustPack(t *testing.T, s string) string {
	t.Helper()
	enc, err := compact.Pack([]byte(s))
	require.NoError(t, err)
	return enc
}

func TestRobustWithoutChecksumTreatsPayloadAsData(t *testing.T) {
	s := sampleSnapshot()
	blob, err := json.Marshal(s)
	require.NoError(t, err)
	enc, err := compact.Pack(blob)
	require.NoError(t, err)

	got, ok := RobustDecoder{}.TryDecode(enc)
	require.True(t, ok)
	assert.Equal(t, s, got)
}

func TestRobustRejectsMissingEssentials(t *testing.T) {
	s := sampleSnapshot()
	s.CompanyName = ""
	enc, err := EncodeRobust(s)
	require.NoError(t, err)
	_, ok := RobustDecoder{}.TryDecode(enc)
	assert.False(t, ok)

	_, ok = RobustDecoder{}.TryDecode("not-compressed")
	assert.False(t, ok)
}

func TestResolvePrefersRobustThenLegacyThenLocal(t *testing.T) {
	robustSnap := sampleSnapshot()
	robustSnap.CompanyName = "Robust Co"
	legacySnap := sampleSnapshot()
	legacySnap.CompanyName = "Legacy Co"
	localSnap := sampleSnapshot()
	localSnap.CompanyName = "Local Co"

	d, err := EncodeRobust(robustSnap)
	require.NoError(t, err)
	data, err := EncodeLegacy(legacySnap)
	require.NoError(t, err)
	local := func() (Snapshot, bool) { return localSnap, true }
	decoders := DefaultDecoders(nil)

	got, src, ok := Resolve(url.Values{ParamRobust: {d}, ParamLegacy: {data}}, decoders, local)
	require.True(t, ok)
	assert.Equal(t, Source(ParamRobust), src)
	assert.Equal(t, "Robust Co", got.CompanyName)

	got, src, ok = Resolve(url.Values{ParamRobust: {"corrupt"}, ParamLegacy: {data}}, decoders, local)
	require.True(t, ok)
	assert.Equal(t, Source(ParamLegacy), src)
	assert.Equal(t, "Legacy Co", got.CompanyName)

	got, src, ok = Resolve(url.Values{}, decoders, local)
	require.True(t, ok)
	assert.Equal(t, SourceLocal, src)
	assert.Equal(t, "Local Co", got.CompanyName)

	_, src, ok = Resolve(url.Values{ParamLegacy: {"junk"}}, decoders, nil)
	assert.False(t, ok)
	assert.Equal(t, SourceNone, src)
}

func TestBuildLinks(t *testing.T) {
	links, err := BuildLinks("https://example.com/valuation/results?ref=share", sampleSnapshot())
	require.NoError(t, err)

	legacy, err := url.Parse(links.Legacy)
	require.NoError(t, err)
	robust, err := url.Parse(links.Robust)
	require.NoError(t, err)

	assert.Equal(t, "share", legacy.Query().Get("ref"))
	assert.True(t, strings.HasPrefix(links.Robust, "https://example.com/valuation/results?"))

	s1, _, ok := Resolve(legacy.Query(), DefaultDecoders(nil), nil)
	require.True(t, ok)
	s2, src, ok := Resolve(robust.Query(), DefaultDecoders(nil), nil)
	require.True(t, ok)
	assert.Equal(t, Source(ParamRobust), src)
	assert.Equal(t, s1, s2)
}

func TestSnapshotGeneratedAt(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC)
	s := NewSnapshot(valuation.Record{}, at)
	assert.True(t, at.Equal(s.GeneratedAt()))

	s.Timestamp = "yesterday"
	assert.True(t, s.GeneratedAt().IsZero())
}
