package mailbox

import (
	"context"

	"spilled.ink/mailengine/internal/mailcore"
)

// Check issues NOOP and reports what changed. FLAGS updates are
// applied to Core immediately; new mail and expunges are observed but
// deferred until Sync is called with allowReopen true (no Msg handle
// from this Mailbox may be open at that point).
func (mb *Mailbox) Check(ctx context.Context) (mailcore.CheckStatus, error) {
	return mb.driver.Check(ctx)
}
