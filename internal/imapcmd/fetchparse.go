package imapcmd

import (
	"fmt"
	"strconv"
	"strings"
)

// parseFetch tokenizes the parenthesized attribute list of a
// "* N FETCH (...)" response, streaming any literal-bearing sections
// to the Handler's LiteralSink as they are encountered.
//
// The tricky part, and the reason this isn't a plain string scan, is
// that a literal's {n} marker ends the physical line the underlying
// imapconn.Conn.ReadLine call returned: the n bytes that follow are
// raw (not CRLF-framed), and the rest of the FETCH list resumes only
// after those n bytes, on what Conn sees as a brand new line. This
// mirrors how imap/imapparser.Scanner's ContFn callback works on the
// server side, just read instead of written.
func (e *Engine) parseFetch(msn uint32, list string) {
	resp := FetchResponse{MSN: msn}
	p := &fetchParser{e: e, resp: &resp}

	list = strings.TrimSpace(list)
	list = strings.TrimPrefix(list, "(")
	list = strings.TrimSuffix(list, ")")
	p.buf = list

	for {
		if err := p.step(); err != nil {
			return
		}
		if p.done {
			break
		}
	}
	e.handler.OnFetch(resp)
}

type fetchParser struct {
	e    *Engine
	resp *FetchResponse
	buf  string
	done bool

	// needRefill is set right after a literal is drained: per the
	// grammar there is always at least a closing ")" still to come on
	// a fresh physical line, so an empty buf at that point means
	// "read more", not "done".
	needRefill bool
}

// refill is called when buf is exhausted mid-attribute-list but the
// wire FETCH response hasn't terminated yet (i.e. we just consumed a
// literal and the closing ")" is on the next physical line).
func (p *fetchParser) refill() error {
	line, err := p.e.conn.ReadLine()
	if err != nil {
		return err
	}
	p.buf = string(line)
	return nil
}

func (p *fetchParser) step() error {
	p.buf = strings.TrimLeft(p.buf, " ")
	if p.buf == "" {
		if p.needRefill {
			if err := p.refill(); err != nil {
				return err
			}
			if strings.TrimLeft(p.buf, " ") != "" {
				p.needRefill = false
			}
			return p.step()
		}
		p.done = true
		return nil
	}
	if strings.HasPrefix(p.buf, ")") {
		p.buf = p.buf[1:]
		p.done = true
		return nil
	}

	word, rest := splitAttrWord(p.buf)
	upper := strings.ToUpper(word)

	switch {
	case upper == "UID":
		rest = strings.TrimLeft(rest, " ")
		n, tail := takeNumber(rest)
		p.resp.UID = uint32(n)
		p.buf = tail

	case upper == "FLAGS":
		rest = strings.TrimLeft(rest, " ")
		flags, tail, err := takeParenList(rest, p)
		if err != nil {
			return err
		}
		p.resp.Flags = parseFlagList("(" + flags + ")")
		p.buf = tail

	case upper == "INTERNALDATE":
		rest = strings.TrimLeft(rest, " ")
		val, tail, err := takeQuoted(rest, p)
		if err != nil {
			return err
		}
		p.resp.HasInternalDate = true
		p.resp.InternalDate = val
		p.buf = tail

	case upper == "RFC822.SIZE":
		rest = strings.TrimLeft(rest, " ")
		n, tail := takeNumber(rest)
		p.resp.HasSize = true
		p.resp.Size = n
		p.buf = tail

	case upper == "MODSEQ":
		rest = strings.TrimLeft(rest, " ")
		inner, tail, err := takeParenList(rest, p)
		if err != nil {
			return err
		}
		n, _ := strconv.ParseUint(strings.TrimSpace(inner), 10, 64)
		p.resp.HasModSeq = true
		p.resp.ModSeq = n
		p.buf = tail

	case upper == "RFC822" || upper == "RFC822.HEADER" || upper == "RFC822.TEXT" ||
		strings.HasPrefix(upper, "BODY[") || strings.HasPrefix(upper, "BODY.PEEK[") ||
		strings.HasPrefix(upper, "BINARY[") || strings.HasPrefix(upper, "BINARY.PEEK["):
		rest = strings.TrimLeft(rest, " ")
		// Optional partial-fetch suffix "<offset>" before the literal.
		if strings.HasPrefix(rest, "<") {
			if end := strings.IndexByte(rest, '>'); end >= 0 {
				rest = rest[end+1:]
			}
		}
		rest = strings.TrimLeft(rest, " ")
		size, tail, err := p.takeLiteralSize(rest)
		if err != nil {
			return err
		}
		sink, err := p.e.handler.OpenLiteralSink(p.resp.MSN, word, size)
		if err != nil {
			return err
		}
		if err := p.e.conn.ReadLiteral(size, sink); err != nil {
			sink.Close()
			return err
		}
		if err := sink.Close(); err != nil {
			return err
		}
		p.resp.Sections = append(p.resp.Sections, word)
		p.needRefill = true
		p.buf = tail

	default:
		// Unknown attribute: skip a single token/value defensively so
		// one unrecognized FETCH item doesn't desync the parser.
		rest = strings.TrimLeft(rest, " ")
		_, tail := splitAttrWord(rest)
		p.buf = tail
	}
	return nil
}

// splitAttrWord splits the next FETCH attribute name off s. Section
// specifiers like "BODY[HEADER.FIELDS (SUBJECT)]" contain spaces and
// parens inside their brackets, so the split tracks '['/']' depth and
// only treats space/')' as a terminator outside any bracket.
func splitAttrWord(s string) (word, rest string) {
	i := 0
	depth := 0
	for i < len(s) {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ' ', ')':
			if depth == 0 {
				return s[:i], s[i:]
			}
		}
		i++
	}
	return s[:i], s[i:]
}

func takeNumber(s string) (int64, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, _ := strconv.ParseInt(s[:i], 10, 64)
	return n, s[i:]
}

// takeParenList returns the text inside a balanced "(...)" starting at
// s, refilling from the wire if the closing paren is on a later
// physical line (this happens when a FLAGS/MODSEQ list itself never
// spans a literal in practice, but we refill defensively all the same
// since nothing in the grammar rules it out for a misbehaving peer).
func takeParenList(s string, p *fetchParser) (inner, rest string, err error) {
	if !strings.HasPrefix(s, "(") {
		return "", s, fmt.Errorf("imapcmd: expected '(' in %q", s)
	}
	depth := 0
	acc := s
	for {
		for i := 0; i < len(acc); i++ {
			switch acc[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return acc[1:i], acc[i+1:], nil
				}
			}
		}
		if err := p.refill(); err != nil {
			return "", "", err
		}
		acc = acc + " " + p.buf
	}
}

func takeQuoted(s string, p *fetchParser) (value, rest string, err error) {
	if strings.HasPrefix(strings.ToUpper(s), "NIL") {
		return "", s[3:], nil
	}
	if !strings.HasPrefix(s, "\"") {
		return "", s, fmt.Errorf("imapcmd: expected quoted string in %q", s)
	}
	var b strings.Builder
	i := 1
	for {
		for i < len(s) {
			if s[i] == '\\' && i+1 < len(s) {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			if s[i] == '"' {
				return b.String(), s[i+1:], nil
			}
			b.WriteByte(s[i])
			i++
		}
		if err := p.refill(); err != nil {
			return "", "", err
		}
		s = p.buf
		i = 0
	}
}

// takeLiteralSize parses a leading "{n}" (optionally "{n+}" for
// LITERAL+) and refills from the wire if it isn't yet present on buf
// (meaning the physical line break fell exactly before it).
func (p *fetchParser) takeLiteralSize(s string) (int64, string, error) {
	for !strings.HasPrefix(s, "{") {
		if err := p.refill(); err != nil {
			return 0, "", err
		}
		s = strings.TrimLeft(p.buf, " ")
	}
	end := strings.IndexByte(s, '}')
	for end < 0 {
		if err := p.refill(); err != nil {
			return 0, "", err
		}
		s = s + p.buf
		end = strings.IndexByte(s, '}')
	}
	digits := strings.TrimSuffix(s[1:end], "+")
	n, perr := strconv.ParseInt(digits, 10, 64)
	if perr != nil {
		return 0, "", fmt.Errorf("imapcmd: bad literal size %q: %w", s[1:end], perr)
	}
	// Whatever followed "{n}" on this physical line was only the
	// line terminator (ReadLine already stripped it), so the literal
	// bytes begin at the next raw read; nothing remains in s after
	// the closing brace for this response line.
	return n, s[end+1:], nil
}
