package mailbox

import (
	"context"
	"errors"
	"fmt"

	"spilled.ink/mailengine/internal/imapcmd"
	"spilled.ink/mailengine/internal/mailcore"
	"spilled.ink/mailengine/internal/syncdriver"
	"spilled.ink/mailengine/internal/utf7mod"
)

// Copy issues UID COPY for the given Emails into dest, creating dest
// first (and retrying once) if the server reports TRYCREATE. If move
// is true, the source Emails are marked \Deleted locally; the actual
// EXPUNGE happens on the next Sync.
//
// dest is given in local (not wire-encoded) form; syncdriver.Copy
// only quotes its mailbox argument, so the UTF-7 encoding happens
// here.
func (mb *Mailbox) Copy(ctx context.Context, dest string, emails []*mailcore.Email, move bool) error {
	wireDest := utf7mod.Encode(dest)
	err := mb.driver.Copy(ctx, emails, wireDest, move)
	if errors.Is(err, syncdriver.ErrTryCreate) {
		if err := mb.create(dest); err != nil {
			return fmt.Errorf("mailbox: copy: %w", err)
		}
		err = mb.driver.Copy(ctx, emails, wireDest, move)
	}
	if err != nil {
		return fmt.Errorf("mailbox: copy: %w", err)
	}
	return nil
}

// create issues CREATE for a mailbox name, given in local (not
// wire-encoded) form.
func (mb *Mailbox) create(name string) error {
	_, result, err := mb.driver.Engine.Do("CREATE "+quoteMailboxName(name), nil)
	if err != nil {
		return err
	}
	if result.Status != imapcmd.ResultOK {
		return fmt.Errorf("create %s: %s %s", name, result.Status, result.Text)
	}
	return nil
}
