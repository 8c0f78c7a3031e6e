package syncdriver

import (
	"context"

	"spilled.ink/mailengine/internal/mailcore"
	"spilled.ink/mailengine/internal/mboxstate"
)

// Check issues NOOP and classifies the result per mailcore.CheckStatus.
// FLAGS-only FETCH updates are applied immediately, since they never
// renumber the MSN array; new EXISTS/EXPUNGE observations are folded
// into Mailbox.IMAP.Reopen and remembered for ApplyPendingReopen,
// since applying them immediately could invalidate an MSN a caller is
// mid-reference on (an open Msg, a batch selection) — that is exactly
// what ReopenAllow exists to gate.
func (d *Driver) Check(ctx context.Context) (mailcore.CheckStatus, error) {
	if err := d.checkInterrupt(ctx); err != nil {
		d.Mailbox.IMAP.CheckStatus = mailcore.CheckError
		return mailcore.CheckError, err
	}
	events, _, err := d.runCommand("NOOP")
	if err != nil {
		d.Mailbox.IMAP.CheckStatus = mailcore.CheckError
		return mailcore.CheckError, err
	}

	flagsChanged := false
	for _, ev := range events.Fetches {
		if ev.Flags == nil {
			continue
		}
		if e := d.Mailbox.Get(ev.MSN); e != nil {
			mboxstate.Apply(e, ev.Flags, mboxstate.MarkOldPolicy(d.Config.MarkOld))
			flagsChanged = true
		}
	}

	if len(events.Expunges) > 0 {
		d.pendingExpunges = append(d.pendingExpunges, events.Expunges...)
		d.Mailbox.IMAP.Reopen |= mailcore.ReopenExpungePending
	}
	if len(events.Exists) > 0 {
		d.pendingExists = events.Exists[len(events.Exists)-1]
		d.Mailbox.IMAP.Reopen |= mailcore.ReopenNewmailPending
	}

	status := mailcore.CheckOK
	switch {
	case d.Mailbox.IMAP.Reopen&mailcore.ReopenExpungePending != 0:
		status = mailcore.CheckReopened
	case d.Mailbox.IMAP.Reopen&mailcore.ReopenNewmailPending != 0:
		status = mailcore.CheckNewMail
	case flagsChanged:
		status = mailcore.CheckFlags
	}
	d.Mailbox.IMAP.CheckStatus = status
	return status, nil
}

// ApplyPendingReopen replays whatever Check deferred — expunges in
// the order observed (matching Mailbox.FreeFrom's "EXPUNGE n shifts
// every later MSN down by one" semantics) and a chunked fetch of any
// newly reported EXISTS range — but only once ReopenAllow is set,
// signalling the caller has confirmed no Msg handle from this mailbox
// is currently open.
func (d *Driver) ApplyPendingReopen(ctx context.Context) error {
	if d.Mailbox.IMAP.Reopen&mailcore.ReopenAllow == 0 {
		return nil
	}

	for _, msn := range d.pendingExpunges {
		d.Mailbox.FreeFrom(msn)
	}
	d.pendingExpunges = nil
	d.Mailbox.IMAP.Reopen &^= mailcore.ReopenExpungePending

	if d.pendingExists > uint32(d.Mailbox.Len()) {
		d.Mailbox.Reserve(int(d.pendingExists))
		if _, err := d.downloadMissing(ctx, d.pendingExists); err != nil {
			return err
		}
	}
	d.pendingExists = 0
	d.Mailbox.IMAP.Reopen &^= mailcore.ReopenNewmailPending

	d.Mailbox.Recompute()
	return nil
}
