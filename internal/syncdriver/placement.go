package syncdriver

import (
	"context"
	"fmt"

	"spilled.ink/mailengine/internal/imapcmd"
	"spilled.ink/mailengine/internal/mboxstate"
)

// placeFromEvalCache runs the "evalhc"/CONDSTORE placement FETCH: a
// single UID FETCH across the whole known UID range, looking each
// returned UID up in the header cache and installing a hit at its
// reported MSN. A miss is left as a hole for downloadMissing to fill.
// skipFlags omits FLAGS from the wire request, used under CONDSTORE
// where the cached flags are already current.
func (d *Driver) placeFromEvalCache(ctx context.Context, uidNext uint32, skipFlags bool) error {
	if uidNext <= 1 {
		return nil
	}
	items := "(UID FLAGS)"
	if skipFlags {
		items = "(UID)"
	}
	cmd := fmt.Sprintf("UID FETCH 1:%d %s", uidNext-1, items)
	events, _, err := d.runCommand(cmd)
	if err != nil {
		return err
	}
	for _, ev := range events.Fetches {
		if ev.UID == 0 {
			continue
		}
		cached, found, err := d.HC.Fetch(ctx, msgKey(ev.UID))
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		var flags [][]byte
		if !skipFlags {
			flags = ev.Flags
		}
		d.placeFromCache(ev.MSN, cached, flags)
	}
	return nil
}

// placeFromQresync replays the cached MSN-ordered UID list directly
// (no network round trip needed to place what's already known), then
// asks the server only for what changed since the cached MODSEQ,
// applying VANISHED removals as it goes.
func (d *Driver) placeFromQresync(ctx context.Context, cached cachedState) error {
	uids := decodeUIDSeqSet(cached.uidSeqSet)
	for i, uid := range uids {
		msn := uint32(i + 1)
		e, found, err := d.HC.Fetch(ctx, msgKey(uid))
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		d.placeFromCache(msn, e, nil)
	}

	cmd := fmt.Sprintf("UID FETCH 1:* (FLAGS) (CHANGEDSINCE %d VANISHED)", cached.modSeq)
	events, _, err := d.runCommand(cmd)
	if err != nil {
		return err
	}
	for _, ev := range events.Fetches {
		e := d.Mailbox.IMAP.UIDHash[ev.UID]
		if e == nil {
			continue
		}
		mboxstate.Apply(e, ev.Flags, mboxstate.MarkOldPolicy(d.Config.MarkOld))
	}
	for _, v := range events.Vanished {
		for _, r := range v.UIDs {
			d.removeByUIDRange(r.Min, r.Max)
		}
	}
	d.Mailbox.Compact()
	return nil
}

// removeByUIDRange marks every installed Email whose UID falls in
// [min, max] inactive and clears it from the UID hash, matching
// VANISHED's "remove by UID, not by MSN shift" semantics; the caller
// compacts the dense array once after a batch of these.
func (d *Driver) removeByUIDRange(min, max uint32) {
	for uid, e := range d.Mailbox.IMAP.UIDHash {
		if uid < min || uid > max {
			continue
		}
		delete(d.Mailbox.IMAP.UIDHash, uid)
		if i := e.MboxIndex(); i >= 0 {
			d.Mailbox.Set(uint32(i+1), nil)
		}
	}
}

// runCommand issues an immediate command with no literal-writing
// continuation, dispatching untagged responses into the Driver's own
// event collector (reset first), and returns it once the tagged
// response arrives. The returned Result is valid even when err is
// non-nil from a NO/BAD status, so callers can inspect response codes
// like TRYCREATE.
func (d *Driver) runCommand(line string) (*sessionEvents, imapcmd.Result, error) {
	d.sessionEvents.reset()
	_, result, err := d.Engine.Do(line, nil)
	if err != nil {
		return nil, imapcmd.Result{}, err
	}
	if result.Status != imapcmd.ResultOK {
		return d.sessionEvents, result, fmt.Errorf("syncdriver: command %q failed: %s %s", line, result.Status, result.Text)
	}
	return d.sessionEvents, result, nil
}
