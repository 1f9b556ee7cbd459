// Package lzstring implements the URI-safe variant of the LZ-string format
// (compressToEncodedURIComponent / decompressFromEncodedURIComponent), so
// links produced by browser code using that library decode here unchanged.
package lzstring

import (
	"errors"
	"strings"
	"unicode/utf16"
)

const (
	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+-$"
	bitsPerChar = 6
	resetValue  = 1 << (bitsPerChar - 1)
)

// MaxUnits bounds the decompressed length in UTF-16 code units.
const MaxUnits = 256 << 10

var (
	ErrInvalid  = errors.New("lzstring: invalid input")
	ErrTooLarge = errors.New("lzstring: payload exceeds size limit")
)

var alphabetIndex = func() (t [256]int8) {
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = int8(i)
	}
	return t
}()

type bitWriter struct {
	out []byte
	val int
	pos int
}

// write emits the low n bits of v, least significant first.
func (w *bitWriter) write(n, v int) {
	for i := 0; i < n; i++ {
		w.val = w.val<<1 | v&1
		if w.pos == bitsPerChar-1 {
			w.out = append(w.out, alphabet[w.val])
			w.val, w.pos = 0, 0
		} else {
			w.pos++
		}
		v >>= 1
	}
}

func (w *bitWriter) flush() {
	for {
		w.val <<= 1
		if w.pos == bitsPerChar-1 {
			w.out = append(w.out, alphabet[w.val])
			return
		}
		w.pos++
	}
}

// Dictionary keys hold UTF-16 units as two bytes each.
func unitKey(u uint16) string { return string([]byte{byte(u >> 8), byte(u)}) }

func firstUnit(k string) int { return int(k[0])<<8 | int(k[1]) }

// CompressToEncodedURIComponent compresses s into the URI-safe alphabet.
func CompressToEncodedURIComponent(s string) string {
	units := utf16.Encode([]rune(s))
	var (
		dict      = map[string]int{}
		pending   = map[string]bool{}
		dictSize  = 3
		numBits   = 2
		enlargeIn = 2
		bw        bitWriter
		w         string
	)
	grow := func() {
		enlargeIn--
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}
	emit := func() {
		if pending[w] {
			if u := firstUnit(w); u < 256 {
				bw.write(numBits, 0)
				bw.write(8, u)
			} else {
				bw.write(numBits, 1)
				bw.write(16, u)
			}
			grow()
			delete(pending, w)
		} else {
			bw.write(numBits, dict[w])
		}
		grow()
	}

	for _, u := range units {
		c := unitKey(u)
		if _, ok := dict[c]; !ok {
			dict[c] = dictSize
			dictSize++
			pending[c] = true
		}
		wc := w + c
		if _, ok := dict[wc]; ok {
			w = wc
			continue
		}
		emit()
		dict[wc] = dictSize
		dictSize++
		w = c
	}
	if w != "" {
		emit()
	}
	bw.write(numBits, 2)
	bw.flush()
	return string(bw.out)
}

type bitReader struct {
	in    string
	val   int
	pos   int
	index int
	err   error
}

func (r *bitReader) value(i int) int {
	if i >= len(r.in) {
		return 0
	}
	v := alphabetIndex[r.in[i]]
	if v < 0 {
		r.err = ErrInvalid
		return 0
	}
	return int(v)
}

func (r *bitReader) read(n int) int {
	bits := 0
	for p := 0; p < n; p++ {
		b := r.val & r.pos
		r.pos >>= 1
		if r.pos == 0 {
			r.pos = resetValue
			r.val = r.value(r.index)
			r.index++
		}
		if b > 0 {
			bits |= 1 << p
		}
	}
	return bits
}

// DecompressFromEncodedURIComponent reverses CompressToEncodedURIComponent.
// Spaces are read as '+', which form decoding produces from a bare plus.
func DecompressFromEncodedURIComponent(s string) (string, error) {
	if s == "" {
		return "", ErrInvalid
	}
	s = strings.ReplaceAll(s, " ", "+")
	r := &bitReader{in: s, pos: resetValue, index: 1}
	r.val = r.value(0)

	literal := func(code int) []uint16 {
		if code == 0 {
			return []uint16{uint16(r.read(8))}
		}
		return []uint16{uint16(r.read(16))}
	}

	var w []uint16
	switch r.read(2) {
	case 0:
		w = literal(0)
	case 1:
		w = literal(1)
	case 2:
		return "", r.err
	default:
		return "", ErrInvalid
	}
	if r.err != nil {
		return "", r.err
	}
	// Codes 0..2 are reserved for literals and end of stream.
	dict := [][]uint16{nil, nil, nil, w}
	out := append([]uint16(nil), w...)
	enlargeIn, numBits := 4, 3

	for {
		if r.index > len(s) {
			return "", ErrInvalid
		}
		code := r.read(numBits)
		switch code {
		case 0, 1:
			dict = append(dict, literal(code))
			code = len(dict) - 1
			enlargeIn--
		case 2:
			if r.err != nil {
				return "", r.err
			}
			return string(utf16.Decode(out)), nil
		}
		if r.err != nil {
			return "", r.err
		}
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}

		var entry []uint16
		switch {
		case code < len(dict):
			entry = dict[code]
		case code == len(dict):
			entry = append(append([]uint16(nil), w...), w[0])
		default:
			return "", ErrInvalid
		}
		out = append(out, entry...)
		if len(out) > MaxUnits {
			return "", ErrTooLarge
		}
		dict = append(dict, append(append([]uint16(nil), w...), entry[0]))
		enlargeIn--
		w = entry
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}
}
