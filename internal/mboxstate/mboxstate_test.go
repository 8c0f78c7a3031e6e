package mboxstate

import (
	"testing"

	"spilled.ink/mailengine/internal/mailcore"
)

func TestParseFlagsBasic(t *testing.T) {
	atoms := toAtoms(`\Seen`, `\Flagged`, `work`)
	flags, sys, kw := ParseFlags(atoms)
	if !flags.Read || !flags.Flagged {
		t.Errorf("flags = %+v", flags)
	}
	if len(kw) != 1 || kw[0] != "work" {
		t.Errorf("keywords = %v", kw)
	}
	if len(sys) != 0 {
		t.Errorf("sysKeywords = %v", sys)
	}
}

// A changed==true Email with local flagged=true must keep
// flagged=true after a server FLAGS update lacking \Flagged.
func TestFlagsReconciliationLocalWins(t *testing.T) {
	e := &mailcore.Email{
		Backend: &mailcore.ImapEmailData{},
		Flags:   mailcore.Flags{Changed: true, Flagged: true},
	}
	Apply(e, toAtoms(`\Seen`), false)

	if !e.Flags.Flagged {
		t.Errorf("flagged = false, want true (local should win)")
	}
	if !e.Flags.Changed {
		t.Errorf("changed was cleared; Apply must never clear it")
	}
}

func TestFlagsReconciliationServerAuthoritativeWhenNotChanged(t *testing.T) {
	e := &mailcore.Email{Backend: &mailcore.ImapEmailData{}}
	Apply(e, toAtoms(`\Seen`, `\Flagged`), false)
	if !e.Flags.Read || !e.Flags.Flagged {
		t.Errorf("flags = %+v, want read+flagged", e.Flags)
	}
}

func TestMarkOldPolicy(t *testing.T) {
	e := &mailcore.Email{Backend: &mailcore.ImapEmailData{}}
	Apply(e, toAtoms(), true)
	if !e.Flags.Old {
		t.Errorf("expected old=true for unseen, non-recent message under markOld")
	}

	e2 := &mailcore.Email{Backend: &mailcore.ImapEmailData{}}
	Apply(e2, toAtoms(`\Recent`), true)
	if e2.Flags.Old {
		t.Errorf("recent message should not be marked old")
	}
}

func TestDraftAcceptedEvenWhenChanged(t *testing.T) {
	e := &mailcore.Email{
		Backend: &mailcore.ImapEmailData{},
		Flags:   mailcore.Flags{Changed: true},
	}
	Apply(e, toAtoms(`\Draft`, `work`), false)
	ed := e.Backend.(*mailcore.ImapEmailData)
	if len(ed.Flagged.SystemKeywords) != 1 || ed.Flagged.SystemKeywords[0] != `\Draft` {
		t.Errorf("system keywords = %v, want [\\Draft]", ed.Flagged.SystemKeywords)
	}
	if len(ed.Flagged.Keywords) != 1 || ed.Flagged.Keywords[0] != "work" {
		t.Errorf("keywords = %v, want [work]", ed.Flagged.Keywords)
	}
}

func toAtoms(s ...string) [][]byte {
	out := make([][]byte, len(s))
	for i, v := range s {
		out[i] = []byte(v)
	}
	return out
}
