package syncdriver

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"spilled.ink/mailengine/internal/bcache"
	"spilled.ink/mailengine/internal/imf"
	"spilled.ink/mailengine/internal/mailcore"
	"spilled.ink/mailengine/internal/mboxstate"
)

// stagedLiteralWriter adapts a *bcache.Staged (Write/Commit/Discard)
// to the LiteralWriter interface (Write/Close) OpenLiteralSink hands
// out during streaming: Close here means "the literal finished
// arriving cleanly", not "commit" — the caller commits explicitly
// after the surrounding FETCH's tagged response confirms success.
type stagedLiteralWriter struct {
	staged *bcache.Staged
}

func (w *stagedLiteralWriter) Write(p []byte) (int, error) { return w.staged.Write(p) }
func (w *stagedLiteralWriter) Close() error                { return nil }

// FetchBody downloads e's full body with `UID FETCH uid BODY.PEEK[]`
// (or BODY[] if Config.Peek is false), streaming it directly into the
// body cache rather than buffering in memory. A trailing FLAGS
// attribute on the same FETCH is reconciled per internal/mboxstate.
// On success, the body cache entry is committed and the header is
// re-parsed from the now-complete body (the initial download pass
// only fetched a field subset), including reconciling Flags.Read
// against a "Status" header if present.
func (d *Driver) FetchBody(ctx context.Context, e *mailcore.Email, uidvalidity uint32) error {
	if err := d.checkInterrupt(ctx); err != nil {
		return err
	}
	uid := uidOf(e)
	if uid == 0 {
		return fmt.Errorf("syncdriver: fetch body: email has no UID")
	}
	id := bcache.ID(uidvalidity, uid)
	staged := d.BC.Put(id)
	committed := false
	defer func() {
		if !committed {
			staged.Discard()
		}
	}()

	section := "BODY.PEEK[]"
	if !d.Config.Peek {
		section = "BODY[]"
	}

	d.sessionEvents.literalTarget = &stagedLiteralWriter{staged: staged}
	cmd := fmt.Sprintf("UID FETCH %d (%s FLAGS)", uid, section)
	events, _, err := d.runCommand(cmd)
	if err != nil {
		d.sessionEvents.literalTarget = nil
		return fmt.Errorf("syncdriver: fetch body uid %d: %w", uid, err)
	}

	if err := staged.Commit(); err != nil {
		return fmt.Errorf("syncdriver: fetch body uid %d: commit: %w", uid, err)
	}
	committed = true

	for _, ev := range events.Fetches {
		if ev.UID != 0 && ev.UID != uid {
			continue
		}
		if ev.Flags != nil {
			mboxstate.Apply(e, ev.Flags, mboxstate.MarkOldPolicy(d.Config.MarkOld))
		}
	}

	f, err := d.BC.Get(id)
	if err != nil {
		return fmt.Errorf("syncdriver: fetch body uid %d: reopen: %w", uid, err)
	}
	defer f.Close()

	r := imf.NewReader(bufio.NewReader(f))
	h, err := r.ReadMIMEHeader()
	if err != nil {
		return fmt.Errorf("syncdriver: fetch body uid %d: header reparse: %w", uid, err)
	}
	env := imf.BuildEnvelope(&h)
	e.From = env.From
	e.Sender = env.Sender
	e.To = env.To
	e.Cc = env.Cc
	e.Subject = env.Subject
	e.MessageID = env.MessageID
	e.InReplyTo = env.InReplyTo
	e.References = env.References
	if env.Date != 0 {
		e.InternalDate = env.Date
	}

	if status := string(h.Get("Status")); status != "" {
		e.Flags.Read = strings.Contains(status, "R")
	}
	return nil
}
