package rfc2047

import (
	"encoding/base64"
	"unicode/utf8"

	"spilled.ink/mailengine/internal/charset"
)

// EncodeOptions configures the encoder.
type EncodeOptions struct {
	// FromCharset names the charset s is already encoded in. Empty
	// means s is UTF-8.
	FromCharset string

	// Charsets is a colon-separated-equivalent preference list (given
	// here as a slice) of candidate target charsets. The encoder picks
	// whichever gives the shortest converted byte form of the text;
	// ties are broken by list order. A nil/empty list defaults to
	// []string{"us-ascii", "utf-8"}.
	Charsets []string

	// Specials, if non-empty, is an additional set of bytes that must
	// be encoded even below 0x80 (e.g. RFC 822 address specials, so a
	// display-name containing '<' gets encoded rather than confusing
	// an address parser).
	Specials []byte

	// Column is the output column the caller is starting at, used for
	// the 76-column fold tracking.
	Column int
}

// Encode produces a header-field value for s: any run of bytes that
// must be encoded becomes one or more folded "=?charset?Q|B?text?="
// words; ASCII runs that need no encoding pass through untouched. The
// return value never contains a line whose printable length exceeds
// MaxLineColumns, and no single encoded word exceeds MaxWordLength
// bytes.
func Encode(s string, opts EncodeOptions) string {
	charsets := opts.Charsets
	if len(charsets) == 0 {
		charsets = []string{"us-ascii", "utf-8"}
	}

	utf8Text, ok := toUTF8(s, opts.FromCharset)
	if !ok {
		// Charset conversion failed: fall through labelled 8-bit
		// unknown.
		utf8Text = s
	}

	blocks := splitEncodeBlocks([]byte(utf8Text), opts.Specials)

	var out []byte
	col := opts.Column
	for _, blk := range blocks {
		if !blk.mustEncode {
			out, col = appendPlain(out, col, blk.text)
			continue
		}
		out, col = appendEncodedRun(out, col, blk.text, charsets)
	}
	return string(out)
}

func toUTF8(s string, fromCharset string) (string, bool) {
	if fromCharset == "" || fromCharset == "utf-8" || fromCharset == "UTF-8" {
		return s, true
	}
	out, err := charset.Convert(fromCharset, []byte(s))
	if err != nil {
		return s, false
	}
	return string(out), true
}

type encodeBlock struct {
	text       []byte
	mustEncode bool
}

// splitEncodeBlocks scans text for the earliest/latest byte that
// forces encoding (any byte >= 0x80; the two-byte sequence "=?"
// following whitespace; any byte in specials), then widens that
// window outward to word (horizontal-whitespace) boundaries and to
// UTF-8 character boundaries.
func splitEncodeBlocks(text []byte, specials []byte) []encodeBlock {
	start, end, found := findEncodeWindow(text, specials)
	if !found {
		return []encodeBlock{{text: text, mustEncode: false}}
	}
	start = widenToWordStart(text, start)
	end = widenToWordEnd(text, end)

	var blocks []encodeBlock
	if start > 0 {
		blocks = append(blocks, encodeBlock{text: text[:start], mustEncode: false})
	}
	blocks = append(blocks, encodeBlock{text: text[start:end], mustEncode: true})
	if end < len(text) {
		blocks = append(blocks, encodeBlock{text: text[end:], mustEncode: false})
	}
	return blocks
}

func findEncodeWindow(text []byte, specials []byte) (start, end int, found bool) {
	start, end = -1, -1
	for i := 0; i < len(text); i++ {
		c := text[i]
		needEncode := c >= 0x80 || isSpecial(c, specials)
		if !needEncode && c == '=' && i+1 < len(text) && text[i+1] == '?' && i > 0 && isHWS(text[i-1]) {
			needEncode = true
		}
		if needEncode {
			if start == -1 {
				start = i
			}
			end = i + 1
		}
	}
	if start == -1 {
		return 0, 0, false
	}
	return start, end, true
}

func isSpecial(c byte, specials []byte) bool {
	for _, s := range specials {
		if c == s {
			return true
		}
	}
	return false
}

func isHWS(c byte) bool { return c == ' ' || c == '\t' }

func widenToWordStart(text []byte, start int) int {
	for start > 0 && !isHWS(text[start-1]) {
		start--
	}
	for start > 0 && isUTF8Continuation(text[start]) {
		start--
	}
	return start
}

func widenToWordEnd(text []byte, end int) int {
	for end < len(text) && !isHWS(text[end]) {
		end++
	}
	for end < len(text) && isUTF8Continuation(text[end]) {
		end++
	}
	return end
}

func isUTF8Continuation(c byte) bool { return c&0xC0 == 0x80 }

// appendPlain appends literal ASCII text, folding at MaxLineColumns.
func appendPlain(out []byte, col int, text []byte) ([]byte, int) {
	for len(text) > 0 {
		if col >= MaxLineColumns && text[0] == ' ' {
			out = append(out, '\r', '\n', '\t')
			col = 8
			text = text[1:]
			continue
		}
		out = append(out, text[0])
		col++
		text = text[1:]
	}
	return out, col
}

// appendEncodedRun encodes text (a region that must be encoded) into
// one or more folded encoded words, choosing a target charset and a
// Q/B transfer encoding per word.
func appendEncodedRun(out []byte, col int, text []byte, charsets []string) ([]byte, int) {
	chosenCharset, encodedBytes := pickCharset(text, charsets)
	forceB := isISO2022JP(chosenCharset)

	for len(encodedBytes) > 0 {
		word, consumed := nextWord(chosenCharset, encodedBytes, forceB)
		if col+len(word) > MaxLineColumns && col > 0 {
			out = append(out, '\r', '\n', '\t')
			col = 8
		}
		out = append(out, word...)
		col += len(word)
		encodedBytes = encodedBytes[consumed:]
		if len(encodedBytes) > 0 {
			out = append(out, '\r', '\n', '\t')
			col = 8
		}
	}
	return out, col
}

// pickCharset tries each candidate charset (in order) and keeps the
// one whose converted form is shortest. It returns the winning
// charset name and the UTF-8 text re-encoded into that charset's byte
// form (still needing Q/B transfer encoding).
func pickCharset(text []byte, charsets []string) (string, []byte) {
	var best string
	var bestBytes []byte
	for _, name := range charsets {
		var converted []byte
		var err error
		if name == "utf-8" || name == "UTF-8" {
			converted = text
		} else {
			converted, err = charset.ConvertFromUTF8(name, text)
			if err != nil {
				continue
			}
		}
		if best == "" || len(converted) < len(bestBytes) {
			best = name
			bestBytes = converted
		}
	}
	if best == "" {
		best = "utf-8"
		bestBytes = text
	}
	return best, bestBytes
}

func isISO2022JP(name string) bool {
	switch name {
	case "iso-2022-jp", "ISO-2022-JP":
		return true
	default:
		return false
	}
}

// nextWord emits one "=?charset?Q|B?text?=" word covering as much of
// data as fits in MaxWordLength bytes, picking whichever of Q or B is
// shorter unless forceB is set (ISO-2022-JP is always encoded as B,
// since its escape sequences make Q-encoding unreliable). It never
// splits a UTF-8 continuation byte away from its leading byte.
func nextWord(chosenCharset string, data []byte, forceB bool) (word []byte, consumed int) {
	overhead := len("=?") + len(chosenCharset) + len("?Q?") + len("?=")
	budget := MaxWordLength - overhead
	if budget < 1 {
		budget = 1
	}

	n := fitB64(data, budget)
	bEncoded := base64.StdEncoding.EncodeToString(data[:n])
	if forceB {
		return buildWord(chosenCharset, 'B', []byte(bEncoded)), n
	}

	qN, qEncoded := fitQ(data, budget)
	if qN > n || (qN == n && len(qEncoded) <= len(bEncoded)) {
		return buildWord(chosenCharset, 'Q', qEncoded), qN
	}
	return buildWord(chosenCharset, 'B', []byte(bEncoded)), n
}

func buildWord(chosenCharset string, enc byte, text []byte) []byte {
	word := make([]byte, 0, len(chosenCharset)+len(text)+6)
	word = append(word, "=?"...)
	word = append(word, chosenCharset...)
	word = append(word, '?', enc, '?')
	word = append(word, text...)
	word = append(word, '?', '=')
	return word
}

// fitB64 returns the largest n (a multiple of 3, for clean base64
// grouping, except at the end of data) such that
// base64.StdEncoding.EncodedLen(n) <= budget, without splitting a
// UTF-8 continuation byte out of its rune.
func fitB64(data []byte, budget int) int {
	maxN := base64.StdEncoding.DecodedLen(budget)
	if maxN > len(data) {
		maxN = len(data)
	}
	maxN -= maxN % 3
	if maxN == 0 && len(data) > 0 {
		maxN = minInt(len(data), 3)
	}
	for maxN > 0 && isUTF8Continuation(safeByte(data, maxN)) {
		maxN--
	}
	if maxN == 0 {
		maxN = 1
	}
	return maxN
}

func safeByte(data []byte, i int) byte {
	if i >= len(data) {
		return 0
	}
	return data[i]
}

// fitQ greedily Q-encodes as many leading bytes of data as fit within
// budget, respecting UTF-8 character boundaries.
func fitQ(data []byte, budget int) (n int, encoded []byte) {
	encoded = make([]byte, 0, budget)
	spent := 0
	for n < len(data) {
		c := data[n]
		var piece []byte
		switch {
		case c == ' ':
			piece = []byte{'_'}
		case c == '_' || c == '=' || c == '?' || c < 0x20 || c >= 0x7f:
			piece = []byte{'=', hexDigit(c >> 4), hexDigit(c & 0xf)}
		default:
			piece = []byte{c}
		}
		if spent+len(piece) > budget {
			break
		}
		// Don't split a multi-byte rune: if the next byte is a
		// continuation byte, it must fit too.
		if !isUTF8Continuation(c) {
			runeLen := utf8.RuneLen(decodeRuneAt(data, n))
			if runeLen > 1 {
				fullLen := 0
				for k := 0; k < runeLen && n+k < len(data); k++ {
					fullLen += qPieceLen(data[n+k])
				}
				if spent+fullLen > budget {
					break
				}
			}
		}
		encoded = append(encoded, piece...)
		spent += len(piece)
		n++
	}
	return n, encoded
}

func qPieceLen(c byte) int {
	if c == ' ' {
		return 1
	}
	if c == '_' || c == '=' || c == '?' || c < 0x20 || c >= 0x7f {
		return 3
	}
	return 1
}

func decodeRuneAt(data []byte, i int) rune {
	r, _ := utf8.DecodeRune(data[i:])
	return r
}

func hexDigit(v byte) byte {
	const digits = "0123456789ABCDEF"
	return digits[v&0xf]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
