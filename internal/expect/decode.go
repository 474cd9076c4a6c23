package expect

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decoder converts transport bytes to text. Malformed sequences become
// U+FFFD; a multi-byte character split across two reads is held back until
// the rest of it arrives.
type decoder struct {
	t       transform.Transformer
	pending []byte
}

func newDecoder() *decoder {
	return &decoder{t: unicode.UTF8.NewDecoder()}
}

func (d *decoder) decode(p []byte, atEOF bool) string {
	d.pending = append(d.pending, p...)
	if len(d.pending) == 0 {
		return ""
	}

	// Every invalid byte may expand to the 3-byte replacement character.
	dst := make([]byte, 3*len(d.pending)+utf8.UTFMax)
	nDst, nSrc, _ := d.t.Transform(dst, d.pending, atEOF)

	rest := make([]byte, len(d.pending)-nSrc)
	copy(rest, d.pending[nSrc:])
	d.pending = rest
	if atEOF && len(d.pending) > 0 {
		// Nothing more is coming; whatever the transformer refused is garbage.
		d.pending = nil
		return string(dst[:nDst]) + string(utf8.RuneError)
	}
	return string(dst[:nDst])
}
