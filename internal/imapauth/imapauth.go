// Package imapauth implements the client's IMAP authentication
// chain: GSSAPI -> CRAM-MD5 -> SASL PLAIN/LOGIN, each driven over an
// AUTHENTICATE continuation exchange.
package imapauth

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrAllMethodsFailed is returned when every mechanism in the chain
// has been tried and none succeeded.
var ErrAllMethodsFailed = errors.New("imapauth: all authentication methods failed")

// Mechanism is a single SASL authentication method.
type Mechanism interface {
	// Name is the IMAP AUTHENTICATE mechanism name, e.g. "CRAM-MD5".
	Name() string
	// Step computes the client response to a base64-decoded server
	// challenge (nil on the first step of mechanisms that send an
	// initial response).
	Step(challenge []byte) (response []byte, done bool, err error)
}

// Credentials is a username/password pair, the minimum every built-in
// mechanism below needs.
type Credentials struct {
	User, Pass string
}

// Chain runs the prioritized GSSAPI -> CRAM-MD5 -> PLAIN -> LOGIN
// authentication chain against exchange, trying each registered
// mechanism (gssapi may be nil) in turn until one succeeds.
//
// exchange drives a single mechanism end to end: it must issue
// "AUTHENTICATE {name}", feed each server continuation challenge to
// mech.Step, write the base64 response, and return nil only once the
// tagged OK arrives.
func Chain(creds Credentials, gssapi Mechanism, exchange func(Mechanism) error) error {
	var mechanisms []Mechanism
	if gssapi != nil {
		mechanisms = append(mechanisms, gssapi)
	}
	mechanisms = append(mechanisms,
		&CRAMMD5{Credentials: creds},
		&Plain{Credentials: creds},
		&Login{Credentials: creds},
	)

	var lastErr error
	for _, mech := range mechanisms {
		if err := exchange(mech); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrAllMethodsFailed, lastErr)
	}
	return ErrAllMethodsFailed
}

// CRAMMD5 implements RFC 2195: the client responds to the server's
// base64 challenge with "user HMAC-MD5(password, challenge)-in-hex".
type CRAMMD5 struct {
	Credentials
	responded bool
}

func (m *CRAMMD5) Name() string { return "CRAM-MD5" }

func (m *CRAMMD5) Step(challenge []byte) ([]byte, bool, error) {
	if m.responded {
		return nil, true, nil
	}
	m.responded = true
	digest := CRAMMD5Digest(m.Pass, challenge)
	return []byte(m.User + " " + hex.EncodeToString(digest)), true, nil
}

// CRAMMD5Digest computes HMAC-MD5(password, challenge), the RFC 2195
// digest.
func CRAMMD5Digest(password string, challenge []byte) []byte {
	mac := hmac.New(md5.New, []byte(password))
	mac.Write(challenge)
	return mac.Sum(nil)
}

// Plain implements SASL PLAIN (RFC 4616): "\0user\0pass".
type Plain struct {
	Credentials
	responded bool
}

func (m *Plain) Name() string { return "PLAIN" }

func (m *Plain) Step(challenge []byte) ([]byte, bool, error) {
	if m.responded {
		return nil, true, nil
	}
	m.responded = true
	return []byte("\x00" + m.User + "\x00" + m.Pass), true, nil
}

// Login implements the (non-standard but widely deployed) SASL LOGIN
// mechanism: server asks for "Username:" then "Password:" via two
// challenges; the client just sends the two credentials in order.
type Login struct {
	Credentials
	step int
}

func (m *Login) Name() string { return "LOGIN" }

func (m *Login) Step(challenge []byte) ([]byte, bool, error) {
	switch m.step {
	case 0:
		m.step++
		return []byte(m.User), false, nil
	case 1:
		m.step++
		return []byte(m.Pass), true, nil
	default:
		return nil, true, nil
	}
}

// EncodeResponse base64-encodes a mechanism's response for the wire,
// matching the IMAP SASL continuation framing.
func EncodeResponse(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// DecodeChallenge base64-decodes a server continuation payload.
func DecodeChallenge(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
