package rfc2047

import (
	"bytes"
	"encoding/base64"
	"regexp"

	"spilled.ink/mailengine/internal/charset"
)

// encodedWordRE matches a single "=?charset?enc?text?=" token. The
// text group is non-greedy so back-to-back tokens
// ("=?a?B?xx?= =?a?B?yy?=") are matched individually rather than as
// one run spanning both "?="s.
var encodedWordRE = regexp.MustCompile(`=\?([^?\s]*)\?([QqBb])\?(.*?)\?=`)

// Options configures the decoder.
type Options struct {
	// AssumedCharset, if non-empty, is used to convert unencoded 8-bit
	// runs (bytes >= 0x80 outside any encoded word) instead of leaving
	// them as raw Latin-1 bytes reinterpreted as UTF-8.
	AssumedCharset string
}

type token struct {
	start, end int // byte offsets into the original input
	isEncoded  bool
	charset    string // lowercased
	enc        byte   // 'Q' or 'B'
	rawText    []byte // the text between the 3rd and 4th '?'
}

// Decode decodes all RFC 2047 encoded words in s, returning UTF-8
// text. Runs of adjacent encoded words sharing a charset are merged
// before charset conversion so multi-byte characters split across a
// folding boundary are reassembled correctly. Unencoded
// whitespace directly between two encoded words is dropped; other
// unencoded text is preserved verbatim (optionally reinterpreted via
// opts.AssumedCharset). Malformed Q/B content decodes best-effort: it
// stops at the first broken octet and keeps whatever was decoded so
// far. An unknown charset is left unconverted (the raw decoded bytes
// pass through).
func Decode(s []byte, opts Options) []byte {
	toks := tokenize(s)
	if len(toks) == 0 {
		return append([]byte(nil), s...)
	}

	var out bytes.Buffer
	pos := 0

	// runCharset/runBytes accumulate consecutive encoded words that
	// share a charset; flushRun converts and appends them.
	var runCharset string
	var runBytes []byte
	haveRun := false

	flushRun := func() {
		if !haveRun {
			return
		}
		out.Write(convertBestEffort(runCharset, runBytes))
		runBytes = nil
		haveRun = false
	}

	for _, tok := range toks {
		// Emit/interpret the gap before this token.
		gap := s[pos:tok.start]
		if len(gap) > 0 {
			prevEncoded := haveRun
			if isAllWhitespace(gap) && prevEncoded {
				// Dropped: whitespace directly between two encoded words.
			} else {
				flushRun()
				out.Write(decodeUnencodedRun(gap, opts.AssumedCharset))
			}
		}

		decoded := decodeWordBody(tok.enc, tok.rawText)
		if haveRun && runCharset == tok.charset {
			runBytes = append(runBytes, decoded...)
		} else {
			flushRun()
			runCharset = tok.charset
			runBytes = append([]byte(nil), decoded...)
			haveRun = true
		}
		pos = tok.end
	}
	flushRun()

	if pos < len(s) {
		out.Write(decodeUnencodedRun(s[pos:], opts.AssumedCharset))
	}
	return out.Bytes()
}

func tokenize(s []byte) []token {
	matches := encodedWordRE.FindAllSubmatchIndex(s, -1)
	toks := make([]token, 0, len(matches))
	for _, m := range matches {
		toks = append(toks, token{
			start:   m[0],
			end:     m[1],
			charset: lowerASCII(string(s[m[2]:m[3]])),
			enc:     upperByte(s[m[4]:m[5]][0]),
			rawText: s[m[6]:m[7]],
		})
	}
	return toks
}

func decodeWordBody(enc byte, text []byte) []byte {
	switch enc {
	case 'Q':
		return decodeQ(text)
	case 'B':
		return decodeB(text)
	default:
		return nil
	}
}

// decodeQ implements RFC 2047 "Q" encoding: '_' means space, "=XX" is
// a hex-escaped octet, everything else passes through. On a broken
// escape it stops and returns what it has so far, best-effort.
func decodeQ(text []byte) []byte {
	out := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '_':
			out = append(out, ' ')
		case '=':
			if i+2 >= len(text) {
				return out
			}
			hi, ok1 := unhex(text[i+1])
			lo, ok2 := unhex(text[i+2])
			if !ok1 || !ok2 {
				return out
			}
			out = append(out, hi<<4|lo)
			i += 2
		default:
			out = append(out, c)
		}
	}
	return out
}

func decodeB(text []byte) []byte {
	// Best-effort: base64 rejects trailing garbage outright, so trim
	// to the longest prefix that is a multiple of 4 before decoding,
	// then fall back to whatever DecodedLen worth of bytes validated.
	n := len(text) - len(text)%4
	for n > 0 {
		buf := make([]byte, base64.StdEncoding.DecodedLen(n))
		written, err := base64.StdEncoding.Decode(buf, text[:n])
		if err == nil {
			return buf[:written]
		}
		n -= 4
	}
	return nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

// convertBestEffort converts raw bytes from charsetLabel to UTF-8. An
// unknown or failing charset falls through with the raw bytes
// unconverted.
func convertBestEffort(charsetLabel string, raw []byte) []byte {
	if charsetLabel == "" {
		return raw
	}
	out, err := charset.Convert(charsetLabel, raw)
	if err != nil {
		return raw
	}
	return out
}

func decodeUnencodedRun(raw []byte, assumedCharset string) []byte {
	if assumedCharset == "" || isASCII(raw) {
		return raw
	}
	out, err := charset.Convert(assumedCharset, raw)
	if err != nil {
		return raw
	}
	return out
}

func isAllWhitespace(b []byte) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func upperByte(c byte) byte {
	if 'a' <= c && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
