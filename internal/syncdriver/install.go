package syncdriver

import (
	"bufio"
	"bytes"
	"fmt"

	"spilled.ink/mailengine/internal/imapdate"
	"spilled.ink/mailengine/internal/imf"
	"spilled.ink/mailengine/internal/mailcore"
	"spilled.ink/mailengine/internal/mboxstate"
)

// installFromFetch turns a freshly FETCHed row (UID, FLAGS,
// INTERNALDATE, RFC822.SIZE, and a captured header literal) into an
// Email and installs it into the dense MSN array. Returns an error for
// a duplicate MSN (already installed) or an MSN outside the mailbox's
// reserved range — both indicate a server/client desync rather than
// recoverable cache staleness.
func (d *Driver) installFromFetch(ev *fetchEvent) (*mailcore.Email, error) {
	if ev.MSN == 0 || int(ev.MSN) > d.Mailbox.Len() {
		return nil, fmt.Errorf("syncdriver: fetch for out-of-range msn %d (mailbox has %d slots)", ev.MSN, d.Mailbox.Len())
	}
	if existing := d.Mailbox.Get(ev.MSN); existing != nil {
		return nil, fmt.Errorf("syncdriver: duplicate fetch for already-installed msn %d", ev.MSN)
	}

	e := &mailcore.Email{Size: ev.Size}
	ed := &mailcore.ImapEmailData{UID: ev.UID, MSN: ev.MSN}
	e.Backend = ed

	if ev.HasInternalDate {
		if epoch, _, err := imapdate.ParseIMAPInternalDate(ev.InternalDate); err == nil {
			e.InternalDate = epoch
		}
	}

	if len(ev.Header) > 0 {
		r := imf.NewReader(bufio.NewReader(bytes.NewReader(ev.Header)))
		if h, err := r.ReadMIMEHeader(); err == nil {
			env := imf.BuildEnvelope(&h)
			e.From = env.From
			e.Sender = env.Sender
			e.To = env.To
			e.Cc = env.Cc
			e.Subject = env.Subject
			e.MessageID = env.MessageID
			e.InReplyTo = env.InReplyTo
			e.References = env.References
			if e.InternalDate == 0 {
				e.InternalDate = env.Date
			}
		}
	}

	mboxstate.Apply(e, ev.Flags, mboxstate.MarkOldPolicy(d.Config.MarkOld))
	e.Flags.Active = true

	d.Mailbox.Set(ev.MSN, e)
	d.Mailbox.IMAP.UIDHash[ev.UID] = e
	return e, nil
}

// placeFromCache installs a cached Email (fetched from hcache by UID)
// at msn during an evalhc/CONDSTORE/QRESYNC placement pass. Flags, if
// non-nil, are a fresher server FLAGS atom list reconciled onto the
// cached Email before installation.
func (d *Driver) placeFromCache(msn uint32, e *mailcore.Email, flags [][]byte) {
	if flags != nil {
		mboxstate.Apply(e, flags, mboxstate.MarkOldPolicy(d.Config.MarkOld))
	}
	e.Flags.Active = true
	if ed, ok := e.Backend.(*mailcore.ImapEmailData); ok {
		ed.MSN = msn
		d.Mailbox.IMAP.UIDHash[ed.UID] = e
	}
	d.Mailbox.Set(msn, e)
}
