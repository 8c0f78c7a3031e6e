package mailcore

import "testing"

func uidEmail(uid uint32) *Email {
	return &Email{Backend: &ImapEmailData{UID: uid}, Flags: Flags{Active: true}}
}

func setMSN(e *Email, msn uint32) {
	e.Backend.(*ImapEmailData).MSN = msn
}

// After EXPUNGE, for every installed Email e, msn_get(e.msn-1) == e.
func TestMSNInvariant(t *testing.T) {
	m := NewMailbox(MailboxTypeIMAP, "INBOX")
	m.Reserve(5)
	uids := []uint32{10, 11, 12, 13, 14}
	for i, uid := range uids {
		e := uidEmail(uid)
		setMSN(e, uint32(i+1))
		m.Set(uint32(i+1), e)
	}

	removed := m.FreeFrom(3) // equivalent to receiving "* 3 EXPUNGE"
	if removed.Backend.(*ImapEmailData).UID != 12 {
		t.Fatalf("removed uid = %d, want 12", removed.Backend.(*ImapEmailData).UID)
	}
	if removed.Flags.Active {
		t.Errorf("removed email should be inactive")
	}

	wantUIDs := []uint32{10, 11, 13, 14}
	if m.Len() != 4 {
		t.Fatalf("len = %d, want 4", m.Len())
	}
	for i, want := range wantUIDs {
		e := m.Get(uint32(i + 1))
		if e == nil {
			t.Fatalf("msn %d: hole", i+1)
		}
		ed := e.Backend.(*ImapEmailData)
		if ed.UID != want {
			t.Errorf("msn %d uid = %d, want %d", i+1, ed.UID, want)
		}
		if ed.MSN != uint32(i+1) {
			t.Errorf("msn %d e.msn = %d, want %d", i+1, ed.MSN, i+1)
		}
		if e.MboxIndex() != i {
			t.Errorf("msn %d mboxIndex = %d, want %d", i+1, e.MboxIndex(), i)
		}
	}
	if m.Get(5) != nil {
		t.Errorf("no email should have msn==5 after the shift")
	}
}

func TestCompactDropsHoles(t *testing.T) {
	m := NewMailbox(MailboxTypeIMAP, "INBOX")
	m.Reserve(3)
	e1, e3 := uidEmail(1), uidEmail(3)
	m.Set(1, e1)
	m.Set(3, e3)
	m.Compact()
	if m.Len() != 2 {
		t.Fatalf("len = %d, want 2", m.Len())
	}
	if m.Get(1) != e1 || m.Get(2) != e3 {
		t.Errorf("compaction did not renumber as expected")
	}
	if e3.Backend.(*ImapEmailData).MSN != 2 {
		t.Errorf("e3 msn = %d, want 2", e3.Backend.(*ImapEmailData).MSN)
	}
}

func TestRecomputeAggregates(t *testing.T) {
	m := NewMailbox(MailboxTypeIMAP, "INBOX")
	m.Reserve(2)
	e1 := uidEmail(1)
	e1.Size = 100
	e1.Flags.Read = false
	e2 := uidEmail(2)
	e2.Size = 50
	e2.Flags.Read = true
	e2.Flags.Flagged = true
	m.Set(1, e1)
	m.Set(2, e2)
	m.Recompute()
	if m.Count != 2 || m.Unread != 1 || m.Flagged != 1 || m.Size != 150 {
		t.Errorf("aggregates = %+v", m)
	}
}

func TestByMessageIDIndexing(t *testing.T) {
	m := NewMailbox(MailboxTypeIMAP, "INBOX")
	m.Reserve(1)
	e := uidEmail(1)
	e.MessageID = "<abc@example.com>"
	m.Set(1, e)
	if m.ByMessageID("<abc@example.com>") != e {
		t.Errorf("ByMessageID lookup failed")
	}
	m.FreeFrom(1)
	if m.ByMessageID("<abc@example.com>") != nil {
		t.Errorf("expired Email should be unindexed")
	}
}
