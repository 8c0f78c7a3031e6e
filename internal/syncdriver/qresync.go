package syncdriver

import (
	"context"
	"strconv"
	"strings"

	"spilled.ink/mailengine/internal/hcache"
	"spilled.ink/mailengine/internal/mailcore"
)

// encodeUIDSeqSet renders the mailbox's current UID-per-MSN order (MSN
// 1..Len, skipping holes) as the /UIDSEQSET cache entry: a
// comma-joined decimal UID list in MSN order. A plain list rather than
// a range-compressed sequence set, since QRESYNC replay needs the
// exact MSN assignment, not just set membership.
func (d *Driver) encodeUIDSeqSet() string {
	var b strings.Builder
	for msn := uint32(1); msn <= uint32(d.Mailbox.Len()); msn++ {
		e := d.Mailbox.Get(msn)
		if e == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(uidOf(e)), 10))
	}
	return b.String()
}

func decodeUIDSeqSet(s string) []uint32 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(v))
	}
	return out
}

// verifyQresync re-walks every installed Email after a QRESYNC pass
// and confirms MSN and UID-hash consistency: Mailbox.Get(edata.MSN)
// must return the same Email, and the UID hash must map the Email's
// own UID back to itself. A mismatch means the QRESYNC delta left the
// local state inconsistent with the server's, so the caller must wipe
// the header cache's MSN index and UID hash and retry as a full
// normal fetch.
func (d *Driver) verifyQresync() bool {
	for msn := uint32(1); msn <= uint32(d.Mailbox.Len()); msn++ {
		e := d.Mailbox.Get(msn)
		if e == nil {
			continue
		}
		uid := uidOf(e)
		if uid == 0 {
			return false
		}
		if e.MboxIndex() != int(msn)-1 {
			return false
		}
		if ed, ok := e.Backend.(*mailcore.ImapEmailData); ok && ed.MSN != msn {
			return false
		}
		if d.Mailbox.IMAP.UIDHash[uid] != e {
			return false
		}
	}
	return true
}

// invalidateQresync clears the cached MODSEQ and UID-sequence-set
// meta keys so the next InitialDownload sees no cached MODSEQ and
// chooses neither QRESYNC nor CONDSTORE.
func (d *Driver) invalidateQresync(ctx context.Context) error {
	if err := d.HC.Delete(ctx, []byte(hcache.KeyModSeq)); err != nil {
		return err
	}
	return d.HC.Delete(ctx, []byte(hcache.KeyUIDSeqSet))
}
