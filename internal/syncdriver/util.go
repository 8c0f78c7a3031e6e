package syncdriver

import "spilled.ink/mailengine/internal/mailcore"

// uidOf returns e's IMAP UID, or 0 if e has no IMAP backend data.
func uidOf(e *mailcore.Email) uint32 {
	if ed, ok := e.Backend.(*mailcore.ImapEmailData); ok {
		return ed.UID
	}
	return 0
}

// resetMailboxState clears every installed Email and the UID hash,
// used before retrying as a full fetch after a failed QRESYNC
// consistency check.
func (d *Driver) resetMailboxState() {
	for msn := uint32(1); msn <= uint32(d.Mailbox.Len()); msn++ {
		d.Mailbox.Set(msn, nil)
	}
	for k := range d.Mailbox.IMAP.UIDHash {
		delete(d.Mailbox.IMAP.UIDHash, k)
	}
}
