package mailbox

import (
	"context"
	"fmt"
	"io"
	"os"

	"spilled.ink/mailengine/internal/bcache"
	"spilled.ink/mailengine/internal/mailcore"
)

// Msg is a read-only, file-backed handle on one message's full body,
// downloaded into the body cache on MsgOpen. It is read-only: the
// facade's write path for a new or modified message is Append, not a
// write-capable Msg.
type Msg struct {
	f   *os.File
	uid uint32
}

// MsgOpen downloads e's body into the body cache (if not already
// cached under the current UIDVALIDITY) and returns a handle for
// reading it, with e's header fields refreshed from the full body.
func (mb *Mailbox) MsgOpen(ctx context.Context, e *mailcore.Email) (*Msg, error) {
	uid := uidOfEmail(e)
	if uid == 0 {
		return nil, fmt.Errorf("mailbox: msg open: email has no IMAP UID")
	}
	id := bcache.ID(mb.Core.IMAP.UIDValidity, uid)

	f, err := mb.BC.Get(id)
	if err != nil {
		if err := mb.driver.FetchBody(ctx, e, mb.Core.IMAP.UIDValidity); err != nil {
			return nil, fmt.Errorf("mailbox: msg open: %w", err)
		}
		f, err = mb.BC.Get(id)
		if err != nil {
			return nil, fmt.Errorf("mailbox: msg open: reopen cached body: %w", err)
		}
	}
	return &Msg{f: f, uid: uid}, nil
}

// UID returns the IMAP UID the message was fetched under.
func (m *Msg) UID() uint32 { return m.uid }

func (m *Msg) Read(p []byte) (int, error)                   { return m.f.Read(p) }
func (m *Msg) Seek(offset int64, whence int) (int64, error) { return m.f.Seek(offset, whence) }

var _ io.ReadSeeker = (*Msg)(nil)

// MsgCommit is a no-op: Msg is read-only, so there is nothing to
// flush back. It exists so callers can write `defer m.MsgCommit()`
// symmetrically with a future write-capable handle without special
// casing this one.
func (m *Msg) MsgCommit() error { return nil }

// MsgClose releases the underlying file handle.
func (m *Msg) MsgClose() error { return m.f.Close() }

func uidOfEmail(e *mailcore.Email) uint32 {
	if ed, ok := e.Backend.(*mailcore.ImapEmailData); ok {
		return ed.UID
	}
	return 0
}
