package syncdriver

import (
	"net"
	"path/filepath"
	"testing"

	"crawshaw.io/iox"

	"spilled.ink/mailengine/internal/bcache"
	"spilled.ink/mailengine/internal/hcache"
	"spilled.ink/mailengine/internal/imapconn"
	"spilled.ink/mailengine/internal/mailcore"
)

// testRig bundles a Driver with the server half of its net.Pipe()
// connection, following the same synchronous-rendezvous pattern as
// imapcmd's own engine_test.go.
type testRig struct {
	d      *Driver
	server net.Conn
}

func newTestRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	hc, err := hcache.Open("file::memory:?mode=memory&cache=shared", "INBOX")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hc.Close() })

	dir := t.TempDir()
	bc, err := bcache.Open(iox.NewFiler(0), filepath.Join(dir, "bodies"))
	if err != nil {
		t.Fatal(err)
	}

	mbox := mailcore.NewMailbox(mailcore.MailboxTypeIMAP, "INBOX")
	mbox.IMAP = mailcore.NewImapMboxData()

	conn := imapconn.New(client, nil)
	d := New(conn, mbox, hc, bc, mailcore.NewImapAccountData(), cfg)

	rig := &testRig{d: d, server: server}
	rig.drainCommands()
	return rig
}

// drainCommands runs a persistent background reader against the
// server side of the pipe, discarding whatever the Driver writes.
// net.Pipe() Write calls block until matched by a Read on the peer,
// and a Driver test issues several commands over the run of a single
// InitialDownload/Append/Copy call, so a one-shot read (as a single
// scripted exchange can get away with) isn't enough here: the drain
// must keep running for the rig's whole lifetime.
func (r *testRig) drainCommands() {
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := r.server.Read(buf); err != nil {
				return
			}
		}
	}()
}

// serve writes each line plus a CRLF terminator to the server side of
// the pipe from a background goroutine (net.Pipe() writes block until
// the other side reads, which here is the Driver's own response loop).
func (r *testRig) serve(lines ...string) {
	go func() {
		for _, l := range lines {
			if _, err := r.server.Write([]byte(l + "\r\n")); err != nil {
				return
			}
		}
	}()
}

// serveRaw writes each byte slice verbatim, with no terminator added,
// for scripting a FETCH literal's exact payload bytes alongside the
// framing lines around it (built with serve-style "\r\n" lines).
func (r *testRig) serveRaw(chunks ...[]byte) {
	go func() {
		for _, c := range chunks {
			if _, err := r.server.Write(c); err != nil {
				return
			}
		}
	}()
}

// mailcoreEmailForTest builds a minimal Email suitable for seeding the
// header cache in a placement test: a subject (so a placed-from-cache
// assertion has something to check) and an IMAP backend carrying uid.
func mailcoreEmailForTest(subject string, uid uint32) *mailcore.Email {
	return &mailcore.Email{
		Subject: subject,
		Backend: &mailcore.ImapEmailData{UID: uid},
	}
}
