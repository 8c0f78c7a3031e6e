package syncdriver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"spilled.ink/mailengine/internal/mailcore"
)

// Copy issues `UID COPY {uidset} {dest}` for the given Emails. If move
// is true, the source Emails are marked \Deleted locally once the
// server confirms the copy (the actual EXPUNGE is pushed later by the
// facade's sync step, per the mailbox facade's copy operation
// description). A "[TRYCREATE]" response is reported as ErrTryCreate
// so the caller can create dest and retry once.
func (d *Driver) Copy(ctx context.Context, emails []*mailcore.Email, dest string, move bool) error {
	if len(emails) == 0 {
		return nil
	}
	if err := d.checkInterrupt(ctx); err != nil {
		return err
	}
	uidSet := uidSetText(emails)
	cmd := fmt.Sprintf("UID COPY %s %s", uidSet, imapQuoteMailbox(dest))

	_, result, err := d.runCommand(cmd)
	if err != nil {
		if result.HasCode("TRYCREATE") {
			return ErrTryCreate
		}
		return err
	}

	if move {
		for _, e := range emails {
			e.Flags.Deleted = true
			e.Flags.Changed = true
		}
	}
	return nil
}

// uidSetText renders the given Emails' own UIDs as a comma-joined
// sequence set in the order given. Runs are not compressed into
// ranges and duplicates are not removed; the set is already small in
// the caller's typical use — a user-selected batch of messages.
func uidSetText(emails []*mailcore.Email) string {
	var parts []string
	for _, e := range emails {
		parts = append(parts, strconv.FormatUint(uint64(uidOf(e)), 10))
	}
	return strings.Join(parts, ",")
}
