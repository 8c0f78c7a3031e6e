// Package dkimfetch opportunistically surfaces a message's
// DKIM-Signature header once its full body has reached the body
// cache: it parses and, where possible, verifies the signature, but a
// DNS lookup failure, a missing signature, or an unsupported
// algorithm is never treated as a fetch error — Inspect always
// returns a Result, never aborts the caller's sync pass.
//
// Grounded on the teacher's email/dkim package: same RFC 6376 header
// canonicalization and body-hash rules, same reliance on stdlib
// crypto/rsa and crypto/x509 for the actual signature check (the
// teacher's own verifier never reaches for golang.org/x/crypto here;
// it reaches for that package elsewhere, for bcrypt password hashing
// and acme/autocert TLS, neither a fit for a client-side read-only
// signature check). Only the first DKIM-Signature header is examined,
// and only rsa-sha256 is verified (any other algorithm is reported as
// unsupported), since this package surfaces a signal for display, not
// an authentication decision.
package dkimfetch

import (
	"bufio"
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

var (
	errNotSigned        = errors.New("dkimfetch: no DKIM-Signature header")
	errMalformed        = errors.New("dkimfetch: signature is malformed")
	errUnsupportedAlgo  = errors.New("dkimfetch: only rsa-sha256 is supported")
	errUnsupportedCanon = errors.New("dkimfetch: unknown canonicalization")
	errNoDomainKey      = errors.New("dkimfetch: no usable key in domain TXT record")
)

// Result is what Inspect found, always populated even when the
// message carries no signature or verification could not complete.
type Result struct {
	Present  bool
	Domain   string
	Selector string
	Verified bool
	// Err explains why Verified is false when Present is true; nil
	// when Present is false or verification succeeded.
	Err error
}

// Fetcher looks up a domain's DKIM public key; LookupTXT defaults to
// net.DefaultResolver.LookupTXT when nil.
type Fetcher struct {
	LookupTXT func(ctx context.Context, domain string) ([]string, error)
}

// Inspect reads email (headers then body, seekable so canonicalization
// can revisit the header block) and reports what it found.
func (f *Fetcher) Inspect(ctx context.Context, email io.ReadSeeker) Result {
	sig, err := parseSignature(email)
	if err != nil {
		if errors.Is(err, errNotSigned) {
			return Result{Present: false}
		}
		return Result{Present: true, Err: err}
	}
	res := Result{Present: true, Domain: sig.domain, Selector: sig.selector}

	if sig.algo != crypto.SHA256 {
		res.Err = errUnsupportedAlgo
		return res
	}

	bodyHash, err := hashBody(sig.canonBody, sig.bodyLimit, email)
	if err != nil {
		res.Err = err
		return res
	}
	if !bytes.Equal(sig.bodyHash, bodyHash) {
		res.Err = errors.New("dkimfetch: body hash mismatch")
		return res
	}

	h := sha256.New()
	if err := writeCanonHeaders(h, email, sig.headers, sig.canonHeader); err != nil {
		res.Err = err
		return res
	}

	pubKey, err := f.lookupKey(ctx, sig.selector+"._domainkey."+sig.domain)
	if err != nil {
		res.Err = err
		return res
	}
	if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, h.Sum(nil), sig.sig); err != nil {
		res.Err = fmt.Errorf("dkimfetch: signature does not verify: %w", err)
		return res
	}

	res.Verified = true
	return res
}

type signature struct {
	domain, selector          string
	algo                      crypto.Hash
	canonHeader, canonBody    string
	headers                   [][]byte
	sig, bodyHash             []byte
	bodyLimit                 int64
}

func parseSignature(r io.ReadSeeker) (*signature, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	raw, err := readHeader(r, dkimHeaderName)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errNotSigned
	}
	raw = raw[len(dkimHeaderName):]

	sig := &signature{canonHeader: "simple", canonBody: "simple"}
	var hasVersion bool
	for len(raw) > 0 {
		var part []byte
		if i := bytes.IndexByte(raw, ';'); i >= 0 {
			part, raw = bytes.TrimSpace(raw[:i]), raw[i+1:]
		} else {
			part, raw = bytes.TrimSpace(raw), nil
		}
		if len(part) == 0 {
			continue
		}
		i := bytes.IndexByte(part, '=')
		if i == -1 {
			return nil, errMalformed
		}
		k, v := string(bytes.TrimSpace(part[:i])), bytes.TrimSpace(part[i+1:])
		switch k {
		case "v":
			hasVersion = string(v) == "1"
		case "a":
			switch string(v) {
			case "rsa-sha256":
				sig.algo = crypto.SHA256
			case "rsa-sha1":
				sig.algo = crypto.SHA1
			default:
				return nil, errUnsupportedAlgo
			}
		case "c":
			header, body, ok := strings.Cut(string(v), "/")
			if !ok {
				body = "simple"
			}
			if header != "simple" && header != "relaxed" {
				return nil, errUnsupportedCanon
			}
			if body != "simple" && body != "relaxed" {
				return nil, errUnsupportedCanon
			}
			sig.canonHeader, sig.canonBody = header, body
		case "d":
			sig.domain = string(v)
		case "s":
			sig.selector = string(v)
		case "h":
			for _, h := range strings.Split(string(v), ":") {
				sig.headers = append(sig.headers, bytes.TrimSpace([]byte(h)))
			}
		case "b":
			sig.sig, err = decodeBase64Folded(v)
			if err != nil {
				return nil, errMalformed
			}
		case "bh":
			sig.bodyHash, err = decodeBase64Folded(v)
			if err != nil {
				return nil, errMalformed
			}
		case "l":
			sig.bodyLimit, err = strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return nil, errMalformed
			}
		}
	}
	if !hasVersion || sig.domain == "" || sig.selector == "" || len(sig.sig) == 0 || len(sig.bodyHash) == 0 {
		return nil, errMalformed
	}
	return sig, nil
}

func decodeBase64Folded(v []byte) ([]byte, error) {
	unfolded := make([]byte, 0, len(v))
	for _, c := range v {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			unfolded = append(unfolded, c)
		}
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(unfolded)))
	n, err := base64.StdEncoding.Decode(out, unfolded)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

var dkimHeaderName = []byte("DKIM-Signature:")

// readHeader returns name's unfolded raw bytes (including name
// itself), or nil if the header is absent.
func readHeader(r io.Reader, name []byte) ([]byte, error) {
	s := bufio.NewScanner(r)
	var buf bytes.Buffer
	for s.Scan() {
		line := s.Bytes()
		if len(line) == 0 {
			break
		}
		if len(line) >= len(name) && bytes.EqualFold(line[:len(name)], name) {
			buf.Write(line)
			buf.WriteString("\r\n")
			for s.Scan() {
				cont := s.Bytes()
				if len(cont) == 0 || (cont[0] != ' ' && cont[0] != '\t') {
					return buf.Bytes(), s.Err()
				}
				buf.Write(cont)
				buf.WriteString("\r\n")
			}
			return buf.Bytes(), s.Err()
		}
	}
	return buf.Bytes(), s.Err()
}

// writeCanonHeaders hashes the headers named in h (in that order, the
// DKIM-Signature header itself always last with its "b=" value
// blanked), per RFC 6376 §3.4.
func writeCanonHeaders(dst io.Writer, src io.ReadSeeker, headers [][]byte, canon string) error {
	write := func(name []byte) error {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return err
		}
		raw, err := readHeader(src, name)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return nil
		}
		if canon == "relaxed" {
			raw = relaxHeader(raw)
		}
		_, err = dst.Write(raw)
		return err
	}
	for _, name := range headers {
		if err := write(name); err != nil {
			return err
		}
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	raw, err := readHeader(src, dkimHeaderName)
	if err != nil {
		return err
	}
	raw = bytes.TrimRight(raw, "\r\n")
	if canon == "relaxed" {
		raw = bytes.TrimRight(relaxHeader(raw), "\r\n")
	}
	blanked := blankSigValue(raw)
	_, err = dst.Write(blanked)
	return err
}

// relaxHeader applies RFC 6376 "relaxed" header canonicalization:
// lowercase the name, collapse folding whitespace to single spaces,
// trim around the colon.
func relaxHeader(raw []byte) []byte {
	name, rest, ok := bytes.Cut(raw, []byte(":"))
	if !ok {
		return raw
	}
	name = bytes.ToLower(bytes.TrimSpace(name))
	rest = collapseWS(bytes.TrimSpace(collapseWS(rest)))
	out := append(append(append([]byte{}, name...), ':'), rest...)
	return append(out, '\r', '\n')
}

func collapseWS(b []byte) []byte {
	var out []byte
	lastWS := false
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			if !lastWS {
				out = append(out, ' ')
				lastWS = true
			}
		default:
			out = append(out, c)
			lastWS = false
		}
	}
	return out
}

// blankSigValue replaces the "b=" field's value with an empty string,
// the way the signer itself computed the hash it's vouching for.
func blankSigValue(raw []byte) []byte {
	parts := bytes.Split(raw, []byte(";"))
	for i, part := range parts {
		k, v, ok := bytes.Cut(part, []byte("="))
		if ok && len(bytes.TrimSpace(k)) == 1 && bytes.TrimSpace(k)[0] == 'b' {
			parts[i] = append(append([]byte{}, k...), '=')
			_ = v
		}
	}
	return bytes.Join(parts, []byte(";"))
}

// hashBody reads past the header/body blank-line boundary and hashes
// the body under the given canonicalization, honoring an optional
// "l=" byte limit.
func hashBody(canon string, limit int64, email io.ReadSeeker) ([]byte, error) {
	if _, err := email.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReader(email)
	for {
		if _, err := r.ReadBytes('\n'); err != nil {
			return nil, fmt.Errorf("dkimfetch: no blank line ending headers: %w", err)
		}
		if b, err := r.Peek(2); err == nil && b[0] == '\r' && b[1] == '\n' {
			r.Discard(2)
			break
		}
	}
	var body io.Reader = r
	if limit != 0 {
		body = io.LimitReader(body, limit)
	}
	if canon == "relaxed" {
		body = &relaxedBody{r: body}
	} else {
		body = &simpleBody{r: body}
	}
	h := sha256.New()
	n, err := io.Copy(h, body)
	if err != nil {
		return nil, fmt.Errorf("dkimfetch: hashing body: %w", err)
	}
	if limit != 0 && n != limit {
		return nil, errors.New("dkimfetch: body shorter than declared l= limit")
	}
	return h.Sum(nil), nil
}

// simpleBody implements RFC 6376 §3.4.3 "simple" body canonicalization:
// trailing empty lines collapse to a single CRLF.
type simpleBody struct {
	r   io.Reader
	buf bytes.Buffer
	eof bool
}

func (s *simpleBody) Read(p []byte) (int, error) {
	if !s.eof {
		b, err := io.ReadAll(s.r)
		if err != nil {
			return 0, err
		}
		s.buf.Write(normalizeTrailingCRLF(b))
		s.eof = true
	}
	return s.buf.Read(p)
}

func normalizeTrailingCRLF(b []byte) []byte {
	b = bytes.TrimRight(b, "\r\n")
	return append(b, '\r', '\n')
}

// relaxedBody implements RFC 6376 §3.4.4 "relaxed" body canonicalization:
// intra-line whitespace runs collapse to one space, then the same
// trailing-CRLF rule as simpleBody.
type relaxedBody struct {
	r   io.Reader
	buf bytes.Buffer
	eof bool
}

func (s *relaxedBody) Read(p []byte) (int, error) {
	if !s.eof {
		raw, err := io.ReadAll(s.r)
		if err != nil {
			return 0, err
		}
		lines := bytes.Split(raw, []byte("\n"))
		for i, line := range lines {
			line = bytes.TrimRight(line, "\r")
			lines[i] = collapseWS(line)
		}
		out := bytes.Join(lines, []byte("\r\n"))
		s.buf.Write(normalizeTrailingCRLF(out))
		s.eof = true
	}
	return s.buf.Read(p)
}

func (f *Fetcher) lookupKey(ctx context.Context, fqdn string) (*rsa.PublicKey, error) {
	lookup := f.LookupTXT
	if lookup == nil {
		lookup = func(ctx context.Context, domain string) ([]string, error) {
			return net.DefaultResolver.LookupTXT(ctx, domain)
		}
	}
	txts, err := lookup(ctx, fqdn)
	if err != nil {
		return nil, fmt.Errorf("dkimfetch: TXT lookup %s: %w", fqdn, err)
	}
	var joined strings.Builder
	for _, t := range txts {
		joined.WriteString(t)
	}
	var keyData []byte
	for _, field := range strings.Split(joined.String(), ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) == "p" {
			keyData, err = base64.StdEncoding.DecodeString(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("dkimfetch: decoding p= from %s: %w", fqdn, err)
			}
		}
	}
	if len(keyData) == 0 {
		return nil, errNoDomainKey
	}
	pk, err := x509.ParsePKIXPublicKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("dkimfetch: parsing public key for %s: %w", fqdn, err)
	}
	pub, ok := pk.(*rsa.PublicKey)
	if !ok {
		return nil, errNoDomainKey
	}
	return pub, nil
}
