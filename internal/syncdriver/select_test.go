package syncdriver

import (
	"context"
	"testing"
)

func TestSelectParsesCodesAndExists(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.serve(
		`* 15 EXISTS`,
		`* 1 RECENT`,
		`a0001 OK [UIDVALIDITY 100][UIDNEXT 16][HIGHESTMODSEQ 5000] SELECT completed`,
	)

	sr, err := rig.d.Select(context.Background(), "INBOX", false, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if sr.UIDValidity != 100 || sr.UIDNext != 16 || sr.ExistsCount != 15 {
		t.Errorf("select = %+v", sr)
	}
	if rig.d.Mailbox.IMAP.ModSeq != 5000 {
		t.Errorf("modseq = %d, want 5000", rig.d.Mailbox.IMAP.ModSeq)
	}
	if sr.ReadOnly {
		t.Errorf("expected read-write select")
	}
}

func TestSelectExamineIsReadOnly(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.serve(`a0001 OK [READ-ONLY] EXAMINE completed`)

	sr, err := rig.d.Select(context.Background(), "INBOX", true, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if !sr.ReadOnly {
		t.Errorf("expected read-only result")
	}
}
