// Package imapconn implements the buffered line/literal connection
// the IMAP command engine runs over: dial (plain or TLS), STARTTLS
// upgrade, CRLF-framed line reads, and exact-length literal reads.
//
// It follows the bufio.Reader/bufio.Writer pairing used server-side
// by imapserver.Conn.initBufio, turned client-side: a server wraps
// its net.Conn in a bufio.Reader fed to a parser's Scanner; this
// package wraps a client net.Conn the same way and exposes the
// line/literal primitives the command engine (internal/imapcmd)
// tokenizes on top of.
package imapconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"spilled.ink/mailengine/internal/bufpool"
)

// ErrLineTooLong is returned by ReadLine if a response line exceeds
// MaxLineLength without a terminating CRLF — almost always a sign
// the peer is not speaking IMAP.
var ErrLineTooLong = errors.New("imapconn: response line too long")

// MaxLineLength bounds a single non-literal response line, guarding
// against a misbehaving or malicious peer feeding an unbounded line.
const MaxLineLength = 1 << 16

// Conn is a single IMAP connection: a duplex, buffered, optionally
// TLS-wrapped byte channel plus the line/literal framing IMAP needs.
//
// Conn is not safe for concurrent use; exactly one goroutine drives
// a given account's connection at a time.
type Conn struct {
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer

	pool *bufpool.Pool
	line *bufpool.Buffer

	readTimeout time.Duration
}

// Dial opens a plain TCP connection to addr.
func Dial(ctx context.Context, network, addr string, pool *bufpool.Pool) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("imapconn: dial %s: %w", addr, err)
	}
	return newConn(nc, pool), nil
}

// DialTLS opens a TLS connection to addr.
func DialTLS(ctx context.Context, network, addr string, tlsConfig *tls.Config, pool *bufpool.Pool) (*Conn, error) {
	d := tls.Dialer{Config: tlsConfig}
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("imapconn: dial tls %s: %w", addr, err)
	}
	return newConn(nc, pool), nil
}

// New wraps an already-established net.Conn (e.g. net.Pipe() in
// tests, or a connection handed off from another package) without
// dialing.
func New(nc net.Conn, pool *bufpool.Pool) *Conn {
	return newConn(nc, pool)
}

func newConn(nc net.Conn, pool *bufpool.Pool) *Conn {
	if pool == nil {
		pool = bufpool.NewPool(0)
	}
	return &Conn{
		netConn: nc,
		br:      bufio.NewReaderSize(nc, 4096),
		bw:      bufio.NewWriterSize(nc, 4096),
		pool:    pool,
		line:    pool.Get(),
	}
}

// StartTLS upgrades the connection in place (after the client has
// issued STARTTLS and received a continuation OK). Any buffered
// plaintext bytes are discarded, matching the IMAP requirement that
// STARTTLS resets the connection's parsing state.
func (c *Conn) StartTLS(tlsConfig *tls.Config) error {
	tlsConn := tls.Client(c.netConn, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("imapconn: starttls handshake: %w", err)
	}
	c.netConn = tlsConn
	c.br = bufio.NewReaderSize(tlsConn, 4096)
	c.bw = bufio.NewWriterSize(tlsConn, 4096)
	return nil
}

// SetReadTimeout sets the deadline applied before each blocking read;
// zero disables the timeout.
func (c *Conn) SetReadTimeout(d time.Duration) { c.readTimeout = d }

func (c *Conn) applyReadDeadline() {
	if c.readTimeout > 0 {
		c.netConn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

// ReadLine blocks for one CRLF-framed response line and returns it
// with the trailing CRLF (or bare LF, tolerated) stripped. The
// returned slice is only valid until the next call to ReadLine or
// ReadLiteral.
func (c *Conn) ReadLine() ([]byte, error) {
	c.applyReadDeadline()
	c.line.Reset()
	for {
		chunk, err := c.br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			c.line.Append(chunk)
			if c.line.Len() > MaxLineLength {
				return nil, ErrLineTooLong
			}
			continue
		}
		if err != nil {
			c.line.Append(chunk)
			return c.line.Bytes(), err
		}
		c.line.Append(chunk)
		break
	}
	b := c.line.Bytes()
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
		if n > 0 && b[n-1] == '\r' {
			n--
		}
	}
	return b[:n], nil
}

// ReadLiteral drains exactly n bytes (an IMAP "{n}" literal body)
// into dst.
func (c *Conn) ReadLiteral(n int64, dst io.Writer) error {
	c.applyReadDeadline()
	_, err := io.CopyN(dst, c.br, n)
	if err != nil {
		return fmt.Errorf("imapconn: read literal (%d bytes): %w", n, err)
	}
	return nil
}

// WriteString writes a string to the outgoing buffer without
// flushing.
func (c *Conn) WriteString(s string) error {
	_, err := c.bw.WriteString(s)
	return err
}

// Write writes bytes to the outgoing buffer without flushing.
func (c *Conn) Write(p []byte) (int, error) { return c.bw.Write(p) }

// WriteLiteral streams n bytes from src to the outgoing buffer
// without flushing.
func (c *Conn) WriteLiteral(n int64, src io.Reader) error {
	_, err := io.CopyN(c.bw, src, n)
	return err
}

// Flush sends any buffered output.
func (c *Conn) Flush() error { return c.bw.Flush() }

// Close tears down the connection, releasing its line buffer back to
// the pool.
func (c *Conn) Close() error {
	if c.line != nil {
		c.pool.Release(c.line)
		c.line = nil
	}
	return c.netConn.Close()
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr { return c.netConn.RemoteAddr() }
