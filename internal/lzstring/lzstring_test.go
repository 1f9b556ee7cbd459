package lzstring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressKnownVectors(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "Q"},
		{"a", "IZA"},
		{"Hello, world", "BIUwNmD2A0AEDukBOYAmQ"},
		{strings.Repeat("a", 39), "IY18ZWkA"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompressToEncodedURIComponent(tc.in), "input %q", tc.in)
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"a",
		"Hello, world",
		"héllo wörld ✓ 😀 𝄞",
		strings.Repeat(`{"data":{"arr":500000,"companyName":"Analytical Engines"},"checksum":"1a2b3c"}`, 20),
	}
	for _, in := range inputs {
		enc := CompressToEncodedURIComponent(in)
		assert.NotContains(t, enc, "=")
		out, err := DecompressFromEncodedURIComponent(enc)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestDecompressEmptyStream(t *testing.T) {
	out, err := DecompressFromEncodedURIComponent("Q")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = DecompressFromEncodedURIComponent("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDecompressReadsSpacesAsPlus(t *testing.T) {
	in := "zz~"
	enc := CompressToEncodedURIComponent(in)
	require.Equal(t, "F7B+Q", enc)
	out, err := DecompressFromEncodedURIComponent("F7B Q")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	enc := CompressToEncodedURIComponent("Hello, world")
	for _, in := range []string{"!!!!", "I!A", enc[:len(enc)/2]} {
		_, err := DecompressFromEncodedURIComponent(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestDecompressEnforcesLimit(t *testing.T) {
	enc := CompressToEncodedURIComponent(strings.Repeat("x", MaxUnits+1))
	_, err := DecompressFromEncodedURIComponent(enc)
	assert.ErrorIs(t, err, ErrTooLarge)
}
