package mailbox

import (
	"context"
	"fmt"

	"spilled.ink/mailengine/internal/mailcore"
)

// MxStatus summarizes a Mailbox's aggregate counters and what Sync
// just did, for a caller (e.g. a status line) that doesn't want to
// walk Core itself.
type MxStatus struct {
	Count, Unread, Flagged, Deleted int
	Size                            int64

	Reopened    bool
	FlagsPushed []uint32
	Expunged    int
}

// Sync reconciles pending local state with the server: if allowReopen
// is true, first applies whatever Check deferred (new mail, expunges
// observed by a prior NOOP), then pushes locally changed flags via
// STORE and issues EXPUNGE for anything marked \Deleted.
//
// allowReopen must be false while any Msg from this Mailbox is open,
// since applying a deferred EXPUNGE renumbers the MSN array out from
// under a handle still referencing it.
func (mb *Mailbox) Sync(ctx context.Context, allowReopen bool) (MxStatus, error) {
	var st MxStatus

	if allowReopen {
		mb.Core.IMAP.Reopen |= mailcore.ReopenAllow
		reopenedBefore := mb.Core.IMAP.Reopen&(mailcore.ReopenExpungePending|mailcore.ReopenNewmailPending) != 0
		if err := mb.driver.ApplyPendingReopen(ctx); err != nil {
			return st, fmt.Errorf("mailbox: sync: %w", err)
		}
		st.Reopened = reopenedBefore
		mb.Core.IMAP.Reopen &^= mailcore.ReopenAllow
	}

	pushed, err := mb.driver.PushChangedFlags(ctx)
	if err != nil {
		return st, fmt.Errorf("mailbox: sync: push flags: %w", err)
	}
	st.FlagsPushed = pushed

	if !mb.ReadOnly {
		n, err := mb.driver.ExpungeDeleted(ctx)
		if err != nil {
			return st, fmt.Errorf("mailbox: sync: expunge: %w", err)
		}
		st.Expunged = n
	}

	mb.Core.Recompute()
	st.Count, st.Unread, st.Flagged, st.Deleted, st.Size =
		mb.Core.Count, mb.Core.Unread, mb.Core.Flagged, mb.Core.Deleted, mb.Core.Size
	return st, nil
}
