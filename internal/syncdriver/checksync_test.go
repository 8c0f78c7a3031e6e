package syncdriver

import (
	"context"
	"testing"

	"spilled.ink/mailengine/internal/mailcore"
)

func seedInstalled(d *Driver, n int) {
	d.Mailbox.Reserve(n)
	for i := 1; i <= n; i++ {
		e := &mailcore.Email{Backend: &mailcore.ImapEmailData{UID: uint32(100 + i)}}
		d.Mailbox.Set(uint32(i), e)
	}
	d.Mailbox.Recompute()
}

func TestCheckClassifiesFlagsOnly(t *testing.T) {
	rig := newTestRig(t, Config{})
	seedInstalled(rig.d, 3)
	rig.serve(
		`* 2 FETCH (FLAGS (\Seen))`,
		`a0001 OK NOOP completed`,
	)

	status, err := rig.d.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status != mailcore.CheckFlags {
		t.Errorf("status = %v, want CheckFlags", status)
	}
	if e := rig.d.Mailbox.Get(2); !e.Flags.Read {
		t.Errorf("expected msn 2 marked read")
	}
}

func TestCheckDefersExpungeUntilReopenAllow(t *testing.T) {
	rig := newTestRig(t, Config{})
	seedInstalled(rig.d, 3)
	rig.serve(
		`* 2 EXPUNGE`,
		`a0001 OK NOOP completed`,
	)

	status, err := rig.d.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status != mailcore.CheckReopened {
		t.Errorf("status = %v, want CheckReopened", status)
	}
	if rig.d.Mailbox.Len() != 3 {
		t.Errorf("expected expunge deferred, mailbox len = %d", rig.d.Mailbox.Len())
	}

	rig.d.Mailbox.IMAP.Reopen |= mailcore.ReopenAllow
	if err := rig.d.ApplyPendingReopen(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rig.d.Mailbox.Len() != 2 {
		t.Errorf("expected expunge applied, mailbox len = %d", rig.d.Mailbox.Len())
	}
	if rig.d.Mailbox.IMAP.Reopen&mailcore.ReopenExpungePending != 0 {
		t.Errorf("expected ReopenExpungePending cleared")
	}
}
