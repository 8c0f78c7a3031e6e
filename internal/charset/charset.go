// Package charset implements character-set conversion, display width,
// and the small set of text-safety checks the header codecs need:
// deciding how wide a rune renders in a terminal, lower-casing, and
// filtering characters that corrupt terminal display.
//
// Conversion is delegated to golang.org/x/text, the same encoding
// stack an RFC 2047 header decoder builds its
// mime.WordDecoder.CharsetReader on (see third_party/imf/addr.go):
// golang.org/x/text/encoding/ianaindex resolves a charset label to an
// encoding.Encoding, and golang.org/x/text/encoding/htmlindex is
// tried as a fallback for the handful of aliases (e.g. "gb2312")
// ianaindex doesn't know.
package charset

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// Lookup resolves a charset label (e.g. "iso-8859-1", "Shift_JIS") to
// an encoding.Encoding. It tries IANA's MIME registry first, then
// falls back to the WHATWG/HTML table for the aliases browsers
// recognize but IANA does not register.
func Lookup(label string) (encoding.Encoding, error) {
	if enc, err := ianaindex.MIME.Encoding(label); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(label); err == nil && enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("charset: unknown charset %q", label)
}

// Convert transcodes src from the named charset to UTF-8.
func Convert(charsetLabel string, src []byte) ([]byte, error) {
	enc, err := Lookup(charsetLabel)
	if err != nil {
		return nil, err
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), src)
	if err != nil {
		return nil, fmt.Errorf("charset: convert from %q: %w", charsetLabel, err)
	}
	return out, nil
}

// ConvertFromUTF8 transcodes UTF-8 src into the named charset.
func ConvertFromUTF8(charsetLabel string, src []byte) ([]byte, error) {
	enc, err := Lookup(charsetLabel)
	if err != nil {
		return nil, err
	}
	out, _, err := transform.Bytes(enc.NewEncoder(), src)
	if err != nil {
		return nil, fmt.Errorf("charset: convert to %q: %w", charsetLabel, err)
	}
	return out, nil
}

// Reader wraps r, converting from the named charset to UTF-8 as it
// is read (a streaming counterpart to Convert).
func Reader(charsetLabel string, r io.Reader) (io.Reader, error) {
	enc, err := Lookup(charsetLabel)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// NextCharacter reports the byte length of the next UTF-8 character
// in s along with its display width in columns, following the
// semantics in the package doc: combining/invisible characters are
// width 0, everything else outside the East-Asian-wide/fullwidth
// ranges is width 1, and wide/fullwidth characters are width 2.
func NextCharacter(s []byte) (size, w int) {
	if len(s) == 0 {
		return 0, 0
	}
	r, size := utf8.DecodeRune(s)
	if r == utf8.RuneError && size <= 1 {
		return 1, 1
	}
	return size, RuneWidth(r)
}

// RuneWidth reports the display width of a single rune.
func RuneWidth(r rune) int {
	if isZeroWidth(r) {
		return 0
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

func isZeroWidth(r rune) bool {
	if r == 0x00AD { // soft hyphen
		return true
	}
	if r >= 0x0300 && r <= 0x036F { // combining diacriticals
		return true
	}
	if r == 0x200B || r == 0x200C || r == 0x200D || r == 0xFEFF {
		return true
	}
	return IsDisplayCorrupting(r)
}

// StringWidth computes the display width of s in a terminal whose
// cursor currently sits at column col (0-based), expanding tabs to
// the next multiple of 8 from the current column. If afterNewline is
// true, a leading space immediately following a literal newline is
// counted as 8 columns wide, matching how a terminal renders a tab
// stop right after a line break.
func StringWidth(s []byte, col int, afterNewline bool) int {
	start := col
	sawNewline := afterNewline
	first := true
	for len(s) > 0 {
		if s[0] == '\t' {
			col += 8 - (col % 8)
			s = s[1:]
			sawNewline = false
			first = false
			continue
		}
		if s[0] == '\n' {
			sawNewline = true
			s = s[1:]
			first = false
			continue
		}
		size, w := NextCharacter(s)
		if size == 0 {
			break
		}
		if s[0] == ' ' && sawNewline && first {
			w = 8
		}
		col += w
		sawNewline = false
		first = false
		s = s[size:]
	}
	return col - start
}

// IsLower reports whether r is a lower-case letter.
func IsLower(r rune) bool {
	return r >= 'a' && r <= 'z'
}

// FilterUnprintable replaces unprintable or display-corrupting bytes
// in src with '?', leaving ASCII printable bytes and multi-byte UTF-8
// sequences that decode to a non-corrupting rune untouched.
func FilterUnprintable(src []byte) []byte {
	out := make([]byte, 0, len(src))
	for len(src) > 0 {
		r, size := utf8.DecodeRune(src)
		switch {
		case r == utf8.RuneError && size <= 1:
			out = append(out, '?')
		case r == '\n' || r == '\r' || r == '\t':
			out = append(out, byte(r))
		case r < 0x20 || r == 0x7f:
			out = append(out, '?')
		case IsDisplayCorrupting(r):
			out = append(out, '?')
		default:
			out = append(out, src[:size]...)
		}
		src = src[size:]
	}
	return out
}

// IsDisplayCorrupting reports whether r is a codepoint that, left
// unfiltered, can corrupt terminal display: the soft hyphen, the
// left/right-to-left marks, the zero-width no-break space used as a
// BOM, the directional isolates (U+2066-U+2069), and the directional
// embedding/override controls (U+202A-U+202E).
//
// These are enumerated directly rather than routed through
// golang.org/x/text/unicode/bidi: this is a fixed, small set of
// control points to suppress, not a general bidi-category
// classification, so a direct range check is both clearer and
// cheaper than consulting the full bidi class table.
func IsDisplayCorrupting(r rune) bool {
	switch {
	case r == 0x00AD: // soft hyphen
		return true
	case r == 0x200E || r == 0x200F: // LRM, RLM
		return true
	case r == 0xFEFF: // ZWNBSP / BOM
		return true
	case r >= 0x2066 && r <= 0x2069: // directional isolates
		return true
	case r >= 0x202A && r <= 0x202E: // directional embeddings/overrides
		return true
	default:
		return false
	}
}

// Bytes is a convenience for converting a []byte through an
// io.Reader-based Convert pipeline in one call, mirroring the
// signature transform.Bytes expects, for callers that already have a
// bytes.Reader handy.
func Bytes(charsetLabel string, src []byte) ([]byte, error) {
	r, err := Reader(charsetLabel, bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
