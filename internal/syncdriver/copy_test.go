package syncdriver

import (
	"context"
	"testing"

	"spilled.ink/mailengine/internal/mailcore"
)

func TestCopySuccess(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.serve(`a0001 OK COPY completed`)

	e1 := mailcoreEmailForTest("one", 1)
	e2 := mailcoreEmailForTest("two", 2)
	if err := rig.d.Copy(context.Background(), []*mailcore.Email{e1, e2}, "Archive", false); err != nil {
		t.Fatal(err)
	}
	if e1.Flags.Deleted || e2.Flags.Deleted {
		t.Errorf("plain copy must not mark \\Deleted")
	}
}

func TestCopyMoveMarksDeletedLocally(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.serve(`a0001 OK COPY completed`)

	e := mailcoreEmailForTest("one", 1)
	if err := rig.d.Copy(context.Background(), []*mailcore.Email{e}, "Archive", true); err != nil {
		t.Fatal(err)
	}
	if !e.Flags.Deleted || !e.Flags.Changed {
		t.Errorf("move must mark \\Deleted and Changed locally, got %+v", e.Flags)
	}
}

func TestCopyTryCreate(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.serve(`a0001 NO [TRYCREATE] no such mailbox`)

	e := mailcoreEmailForTest("one", 1)
	err := rig.d.Copy(context.Background(), []*mailcore.Email{e}, "Archive", true)
	if err != ErrTryCreate {
		t.Fatalf("err = %v, want ErrTryCreate", err)
	}
	if e.Flags.Deleted {
		t.Errorf("a failed copy must not mark \\Deleted")
	}
}

func TestCopyEmptyIsNoop(t *testing.T) {
	rig := newTestRig(t, Config{})
	if err := rig.d.Copy(context.Background(), nil, "Archive", true); err != nil {
		t.Fatal(err)
	}
}

func TestUidSetText(t *testing.T) {
	emails := []*mailcore.Email{
		mailcoreEmailForTest("a", 3),
		mailcoreEmailForTest("b", 7),
		mailcoreEmailForTest("c", 9),
	}
	if got := uidSetText(emails); got != "3,7,9" {
		t.Errorf("uidSetText = %q, want %q", got, "3,7,9")
	}
}
