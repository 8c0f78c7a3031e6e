package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"

	"spilled.ink/mailengine/internal/syncdriver"
	"spilled.ink/mailengine/internal/utf7mod"
)

// Append streams src into mailboxName as a new message via APPEND,
// creating the mailbox first (and retrying once) if the server
// reports TRYCREATE. Retrying after TRYCREATE requires src to
// implement io.Seeker (Append consumes it fully staging the literal
// before the server's response is known); a non-seekable src that
// hits TRYCREATE returns the error unretried.
func (mb *Mailbox) Append(ctx context.Context, mailboxName string, src io.Reader, flags []string, internalDate string) error {
	wireName := utf7mod.Encode(mailboxName)
	err := mb.driver.Append(ctx, mb.filer, wireName, src, flags, internalDate)
	if errors.Is(err, syncdriver.ErrTryCreate) {
		seeker, ok := src.(io.Seeker)
		if !ok {
			return fmt.Errorf("mailbox: append %s: mailbox does not exist and src cannot be rewound to retry after create", mailboxName)
		}
		if err := mb.create(mailboxName); err != nil {
			return fmt.Errorf("mailbox: append: %w", err)
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("mailbox: append %s: rewind for retry: %w", mailboxName, err)
		}
		err = mb.driver.Append(ctx, mb.filer, wireName, src, flags, internalDate)
	}
	if err != nil {
		return fmt.Errorf("mailbox: append %s: %w", mailboxName, err)
	}
	return nil
}
