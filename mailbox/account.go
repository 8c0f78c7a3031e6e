package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"spilled.ink/mailengine/internal/bufpool"
	"spilled.ink/mailengine/internal/imapauth"
	"spilled.ink/mailengine/internal/imapcmd"
	"spilled.ink/mailengine/internal/imapconn"
)

// DialOptions configures OpenAccount's connection: address, TLS
// posture, and the credentials to authenticate with.
type DialOptions struct {
	Addr      string // "host:port"
	UseTLS    bool   // dial straight into TLS (imaps)
	StartTLS  bool   // dial plaintext, then issue STARTTLS before auth
	TLSConfig *tls.Config
	Creds     imapauth.Credentials
}

// Account is one authenticated IMAP connection: capability state plus
// the command engine every Mailbox opened against it shares.
//
// Account is not safe for concurrent use; per the single-threaded
// contract this module follows throughout, exactly one goroutine
// drives an Account (and any Mailbox opened on it) at a time.
type Account struct {
	conn *imapconn.Conn
	eng  *imapcmd.Engine
	h    *acctHandler

	Caps map[string]bool
}

// OpenAccount dials, negotiates TLS if requested, and authenticates,
// returning an Account ready for mailbox.Open.
func OpenAccount(ctx context.Context, opts DialOptions) (*Account, error) {
	conn, err := dial(ctx, opts)
	if err != nil {
		return nil, err
	}

	h := &acctHandler{}
	a := &Account{conn: conn, eng: imapcmd.New(conn, h), h: h, Caps: make(map[string]bool)}

	if err := a.readGreeting(); err != nil {
		a.conn.Close()
		return nil, err
	}
	if err := a.capability(); err != nil {
		a.conn.Close()
		return nil, err
	}

	if opts.StartTLS && !opts.UseTLS {
		if err := a.startTLS(opts.TLSConfig); err != nil {
			a.conn.Close()
			return nil, err
		}
		if err := a.capability(); err != nil {
			a.conn.Close()
			return nil, err
		}
	}

	if err := a.authenticate(opts.Creds); err != nil {
		a.conn.Close()
		return nil, err
	}
	if err := a.capability(); err != nil {
		a.conn.Close()
		return nil, err
	}
	return a, nil
}

func dial(ctx context.Context, opts DialOptions) (*imapconn.Conn, error) {
	pool := bufpool.NewPool(0)
	if opts.UseTLS {
		return imapconn.DialTLS(ctx, "tcp", opts.Addr, opts.TLSConfig, pool)
	}
	return imapconn.Dial(ctx, "tcp", opts.Addr, pool)
}

// readGreeting consumes the server's untagged "* OK ..." banner, the
// one response a client reads before issuing any command of its own.
func (a *Account) readGreeting() error {
	line, err := a.conn.ReadLine()
	if err != nil {
		return fmt.Errorf("mailbox: read greeting: %w", err)
	}
	if len(line) == 0 || line[0] != '*' {
		return fmt.Errorf("mailbox: unexpected greeting: %q", line)
	}
	return nil
}

func (a *Account) capability() error {
	a.h.reset()
	_, result, err := a.eng.Do("CAPABILITY", nil)
	if err != nil {
		return fmt.Errorf("mailbox: capability: %w", err)
	}
	if result.Status != imapcmd.ResultOK {
		return fmt.Errorf("mailbox: capability: %s %s", result.Status, result.Text)
	}
	for _, c := range a.h.Caps {
		a.Caps[strings.ToUpper(c)] = true
	}
	return nil
}

func (a *Account) startTLS(cfg *tls.Config) error {
	_, result, err := a.eng.Do("STARTTLS", nil)
	if err != nil {
		return fmt.Errorf("mailbox: starttls: %w", err)
	}
	if result.Status != imapcmd.ResultOK {
		return fmt.Errorf("mailbox: starttls: %s %s", result.Status, result.Text)
	}
	if err := a.conn.StartTLS(cfg); err != nil {
		return fmt.Errorf("mailbox: starttls: %w", err)
	}
	return nil
}

// authenticate runs imapauth's chain with no GSSAPI mechanism, so only
// CRAM-MD5 -> PLAIN -> LOGIN are tried and GSSAPI is never attempted,
// driving each mechanism's AUTHENTICATE exchange directly over the
// raw connection: imapcmd.Engine.Do's onContinuation callback carries
// no payload, so it cannot hand a mechanism the base64 challenge a
// "+" continuation line delivers.
func (a *Account) authenticate(creds imapauth.Credentials) error {
	return imapauth.Chain(creds, nil, func(mech imapauth.Mechanism) error {
		return a.exchangeMechanism(mech)
	})
}

func (a *Account) exchangeMechanism(mech imapauth.Mechanism) error {
	tag := a.eng.NextTag()
	if err := a.conn.WriteString(tag + " AUTHENTICATE " + mech.Name() + "\r\n"); err != nil {
		return err
	}
	if err := a.conn.Flush(); err != nil {
		return err
	}

	var challenge []byte
	for {
		line, err := a.conn.ReadLine()
		if err != nil {
			return fmt.Errorf("mailbox: authenticate %s: %w", mech.Name(), err)
		}
		switch {
		case len(line) > 0 && line[0] == '*':
			continue
		case len(line) > 0 && line[0] == '+':
			if len(line) > 1 {
				challenge, err = imapauth.DecodeChallenge(strings.TrimSpace(string(line[1:])))
				if err != nil {
					return fmt.Errorf("mailbox: authenticate %s: decode challenge: %w", mech.Name(), err)
				}
			} else {
				challenge = nil
			}

			resp, _, err := mech.Step(challenge)
			if err != nil {
				return fmt.Errorf("mailbox: authenticate %s: %w", mech.Name(), err)
			}
			if err := a.conn.WriteString(imapauth.EncodeResponse(resp) + "\r\n"); err != nil {
				return err
			}
			if err := a.conn.Flush(); err != nil {
				return err
			}
		default:
			gotTag, result, err := parseTaggedLine(line)
			if err != nil {
				return err
			}
			if gotTag != tag {
				continue
			}
			if result.Status != imapcmd.ResultOK {
				return fmt.Errorf("mailbox: authenticate %s: %s %s", mech.Name(), result.Status, result.Text)
			}
			return nil
		}
	}
}

// parseTaggedLine parses a tagged "tag OK/NO/BAD [codes] text" response
// line; imapcmd's own parser of the same shape is unexported, so the
// raw AUTHENTICATE loop (which bypasses imapcmd.Engine entirely) needs
// its own copy.
func parseTaggedLine(line []byte) (tag string, result imapcmd.Result, err error) {
	s := string(line)
	tag, rest, ok := strings.Cut(s, " ")
	if !ok {
		return "", imapcmd.Result{}, fmt.Errorf("mailbox: malformed tagged response: %q", s)
	}
	statusWord, rest, _ := strings.Cut(rest, " ")
	var status imapcmd.ResultStatus
	switch strings.ToUpper(statusWord) {
	case "OK":
		status = imapcmd.ResultOK
	case "NO":
		status = imapcmd.ResultNO
	case "BAD":
		status = imapcmd.ResultBAD
	default:
		return "", imapcmd.Result{}, fmt.Errorf("mailbox: malformed tagged response: %q", s)
	}
	rest = strings.TrimSpace(rest)
	var codes []string
	for strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		codes = append(codes, rest[1:end])
		rest = strings.TrimSpace(rest[end+1:])
	}
	return tag, imapcmd.Result{Status: status, Text: rest, Codes: codes}, nil
}

// Close issues LOGOUT and tears down the connection.
func (a *Account) Close() error {
	_, _, err := a.eng.Do("LOGOUT", nil)
	closeErr := a.conn.Close()
	if err != nil {
		return fmt.Errorf("mailbox: logout: %w", err)
	}
	return closeErr
}
