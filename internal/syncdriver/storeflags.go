package syncdriver

import (
	"context"
	"fmt"
	"strings"

	"spilled.ink/mailengine/internal/mailcore"
)

// flagAtoms is the fixed STORE vocabulary Sync pushes; keyword flags
// ride along unchanged but aren't themselves toggled by the facade's
// tag mapping.
var flagAtoms = []struct {
	bit  func(mailcore.Flags) bool
	atom string
}{
	{func(f mailcore.Flags) bool { return f.Read }, `\Seen`},
	{func(f mailcore.Flags) bool { return f.Deleted }, `\Deleted`},
	{func(f mailcore.Flags) bool { return f.Flagged }, `\Flagged`},
	{func(f mailcore.Flags) bool { return f.Replied }, `\Answered`},
}

// PushChangedFlags issues one `UID STORE uid FLAGS (...)` per Email
// with Flags.Changed set, sending the full reconciled flag set (not
// +FLAGS/-FLAGS, since the local Email already holds the merged
// view), clearing Changed once the server confirms. It returns the
// UIDs successfully pushed.
func (d *Driver) PushChangedFlags(ctx context.Context) ([]uint32, error) {
	var pushed []uint32
	for msn := uint32(1); msn <= uint32(d.Mailbox.Len()); msn++ {
		e := d.Mailbox.Get(msn)
		if e == nil || !e.Flags.Changed {
			continue
		}
		if err := d.checkInterrupt(ctx); err != nil {
			return pushed, err
		}
		uid := uidOf(e)
		if uid == 0 {
			continue
		}

		var atoms []string
		for _, fa := range flagAtoms {
			if fa.bit(e.Flags) {
				atoms = append(atoms, fa.atom)
			}
		}
		if ed, ok := e.Backend.(*mailcore.ImapEmailData); ok {
			atoms = append(atoms, ed.Flagged.Keywords...)
		}

		cmd := fmt.Sprintf("UID STORE %d FLAGS (%s)", uid, strings.Join(atoms, " "))
		if _, _, err := d.runCommand(cmd); err != nil {
			return pushed, fmt.Errorf("syncdriver: store flags uid %d: %w", uid, err)
		}
		e.Flags.Changed = false
		pushed = append(pushed, uid)
	}
	return pushed, nil
}

// ExpungeDeleted issues EXPUNGE if any installed Email is locally
// marked \Deleted, removing each confirmed message from the dense
// array as its untagged EXPUNGE arrives.
func (d *Driver) ExpungeDeleted(ctx context.Context) (int, error) {
	if err := d.checkInterrupt(ctx); err != nil {
		return 0, err
	}
	anyDeleted := false
	for msn := uint32(1); msn <= uint32(d.Mailbox.Len()); msn++ {
		if e := d.Mailbox.Get(msn); e != nil && e.Flags.Deleted {
			anyDeleted = true
			break
		}
	}
	if !anyDeleted {
		return 0, nil
	}

	events, _, err := d.runCommand("EXPUNGE")
	if err != nil {
		return 0, err
	}
	for _, msn := range events.Expunges {
		d.Mailbox.FreeFrom(msn)
	}
	d.Mailbox.Recompute()
	return len(events.Expunges), nil
}
