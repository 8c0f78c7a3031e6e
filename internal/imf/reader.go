// Originally from go/src/net/textproto/reader.go; adapted here to
// decode encoded words with internal/rfc2047 instead of net/mime, and
// to return imf.Header instead of textproto.MIMEHeader.
package imf

import (
	"bufio"
	"bytes"

	"spilled.ink/mailengine/internal/rfc2047"
)

// Reader reads a single RFC 5322 header section off a buffered
// stream, stopping at the blank line separating header from body.
type Reader struct {
	r     *bufio.Reader
	buf   []byte
	nRead int
}

// NewReader returns a Reader consuming r. The caller should wrap r in
// an io.LimitReader (or similar) to bound how much a malicious peer
// can make the reader buffer.
func NewReader(r *bufio.Reader) *Reader { return &Reader{r: r} }

// NumRead returns the number of bytes consumed from the underlying
// reader so far. It assumes newlines are always "\n".
func (r *Reader) NumRead() int { return r.nRead }

func (r *Reader) readLineSlice() ([]byte, error) {
	var line []byte
	for {
		l, more, err := r.r.ReadLine()
		if err != nil {
			return nil, err
		}
		r.nRead += len(l)
		if !more {
			r.nRead++
		}
		if line == nil && !more {
			return l, nil
		}
		line = append(line, l...)
		if !more {
			break
		}
	}
	return line, nil
}

func (r *Reader) readContinuedLineSlice() ([]byte, error) {
	line, err := r.readLineSlice()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return line, nil
	}

	if r.r.Buffered() > 1 {
		peek, err := r.r.Peek(1)
		if err == nil && isASCIILetter(peek[0]) {
			return trim(line), nil
		}
	}

	r.buf = append(r.buf[:0], trim(line)...)
	for r.skipSpace() > 0 {
		line, err := r.readLineSlice()
		if err != nil {
			break
		}
		r.buf = append(r.buf, ' ')
		r.buf = append(r.buf, trim(line)...)
	}
	return r.buf, nil
}

func (r *Reader) skipSpace() int {
	n := 0
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			break
		}
		if c != ' ' && c != '\t' {
			r.r.UnreadByte()
			break
		}
		n++
	}
	r.nRead += n
	return n
}

// ReadMIMEHeader reads a sequence of possibly-folded "Key: Value"
// lines up to the terminating blank line, decoding any RFC 2047
// encoded words found in a value.
func (r *Reader) ReadMIMEHeader() (Header, error) {
	h := Header{Index: make(map[Key][][]byte)}

	if buf, err := r.r.Peek(1); err == nil && (buf[0] == ' ' || buf[0] == '\t') {
		line, err := r.readLineSlice()
		if err != nil {
			return h, err
		}
		return h, ProtocolError("malformed MIME header initial line: " + string(line))
	}

	for {
		kv, err := r.readContinuedLineSlice()
		if len(kv) == 0 {
			return h, err
		}

		i := bytes.IndexByte(kv, ':')
		if i < 0 {
			return h, ProtocolError("malformed MIME header line: " + string(kv))
		}
		endKey := i
		for endKey > 0 && kv[endKey-1] == ' ' {
			endKey--
		}
		key := CanonicalKey(kv[:endKey])
		if key == "" {
			continue
		}

		i++
		for i < len(kv) && (kv[i] == ' ' || kv[i] == '\t') {
			i++
		}
		value := kv[i:]
		if bytes.Contains(value, []byte("=?")) {
			value = rfc2047.Decode(value, rfc2047.Options{})
		} else {
			vcopy := make([]byte, len(value))
			copy(vcopy, value)
			value = vcopy
		}
		h.Add(key, value)

		if err != nil {
			return h, err
		}
	}
}

func isASCIILetter(b byte) bool {
	return 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z'
}

func trim(s []byte) []byte {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	n := len(s)
	for n > i && (s[n-1] == ' ' || s[n-1] == '\t') {
		n--
	}
	return s[i:n]
}
