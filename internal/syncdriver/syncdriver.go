// Package syncdriver drives the command/response exchange that
// populates a Mailbox's Email array from a live IMAP session: strategy
// selection (evalhc/CONDSTORE/QRESYNC/full fetch), the chunked FETCH
// loop that installs Emails into the dense MSN array, APPEND/COPY/MOVE,
// single-message body fetch, and the post-fetch QRESYNC verification
// pass. It is the collaborator the public mailbox facade (package
// mailbox) calls into for every operation that talks to the wire.
//
// Grounded on imapserver's per-connection command dispatch (the same
// "one goroutine drives one session, state lives on a handler struct"
// shape, turned around to drive a session instead of serve one) and on
// spilldb/webcache for the cache-first/fall-back-to-origin pattern this
// package applies to the header cache.
package syncdriver

import (
	"context"
	"fmt"
	"sync/atomic"

	"spilled.ink/mailengine/internal/bcache"
	"spilled.ink/mailengine/internal/hcache"
	"spilled.ink/mailengine/internal/imapcmd"
	"spilled.ink/mailengine/internal/imapconn"
	"spilled.ink/mailengine/internal/mailcore"
)

// Strategy is the initial-download strategy chosen from cached state
// and server capabilities.
type Strategy int

const (
	// StrategyFull re-downloads every envelope from MSN 1.
	StrategyFull Strategy = iota
	// StrategyEval trusts the header cache for UIDs already known and
	// asks the server only for UID+FLAGS to place them, filling holes
	// with a normal FETCH.
	StrategyEval
	// StrategyCondstore is StrategyEval but skips FLAGS in the
	// placement FETCH, since the cached flags are already current as
	// of the cached MODSEQ and only CHANGEDSINCE deltas matter.
	StrategyCondstore
	// StrategyQresync replays the cached UID sequence set directly
	// and asks the server only for what changed since the cached
	// MODSEQ, including vanished UIDs.
	StrategyQresync
)

func (s Strategy) String() string {
	switch s {
	case StrategyFull:
		return "full"
	case StrategyEval:
		return "eval"
	case StrategyCondstore:
		return "condstore"
	case StrategyQresync:
		return "qresync"
	default:
		return "unknown"
	}
}

// Config tunes the chunked range builder and the header fields
// requested on the initial download FETCH.
type Config struct {
	// ChunkMaxNewMSN bounds how many not-yet-installed MSNs a single
	// FETCH chunk may request; zero means unbounded.
	ChunkMaxNewMSN int
	// ChunkMaxBytes bounds the textual length of a chunk's sequence
	// set; zero means the package default of 500.
	ChunkMaxBytes int
	// Peek controls whether single-message body fetches use
	// BODY.PEEK[] (true, never sets \Seen) or BODY[] (false).
	Peek bool
	// MarkOld controls whether newly observed unread, non-\Recent
	// messages are marked Old (mboxstate.MarkOldPolicy).
	MarkOld bool
}

func (c Config) chunkMaxBytes() int {
	if c.ChunkMaxBytes <= 0 {
		return 500
	}
	return c.ChunkMaxBytes
}

// HeaderFields is the BODY.PEEK[HEADER.FIELDS (...)] field list the
// initial download FETCH requests, matching what internal/imf's
// CanonicalKey recognizes so nothing requested goes unparsed.
var HeaderFields = []string{
	"DATE", "FROM", "SENDER", "SUBJECT", "TO", "CC", "MESSAGE-ID",
	"REFERENCES", "CONTENT-TYPE", "CONTENT-DESCRIPTION", "IN-REPLY-TO",
	"REPLY-TO", "LINES", "LIST-POST", "LIST-SUBSCRIBE", "LIST-UNSUBSCRIBE",
	"X-LABEL", "X-ORIGINAL-TO",
}

// Canceler lets the caller decide whether a user interrupt observed
// between command steps should abort the operation in progress.
// Confirm is only consulted after an interrupt has actually been
// observed; returning false resumes the operation.
type Canceler interface {
	Confirm(ctx context.Context) bool
}

// ErrAborted is returned when a Canceler confirms a user interrupt.
var ErrAborted = fmt.Errorf("syncdriver: aborted")

// Driver drives one selected mailbox's sync operations over a single
// imapcmd.Engine. It is not safe for concurrent use: exactly one
// goroutine owns a Driver's mailbox at a time, matching the engine's
// own single-connection contract.
//
// Driver embeds *sessionEvents and so is itself an imapcmd.Handler: it
// is the Handler passed to imapcmd.New, collecting every untagged
// response dispatched while one of its own commands is outstanding.
type Driver struct {
	*sessionEvents

	Engine  *imapcmd.Engine
	Mailbox *mailcore.Mailbox
	HC      *hcache.Cache
	BC      *bcache.Cache
	Account *mailcore.ImapAccountData

	Config   Config
	Canceler Canceler

	interrupted atomic.Bool

	// pendingExpunges and pendingExists are untagged EXISTS/EXPUNGE
	// observations Check has folded into Mailbox.IMAP.Reopen but not
	// yet applied to the dense array; ApplyPendingReopen replays them
	// once the caller sets ReopenAllow.
	pendingExpunges []uint32
	pendingExists   uint32
}

// New returns a Driver that owns a fresh imapcmd.Engine over conn.
func New(conn *imapconn.Conn, mbox *mailcore.Mailbox, hc *hcache.Cache, bc *bcache.Cache, account *mailcore.ImapAccountData, cfg Config) *Driver {
	d := &Driver{
		sessionEvents: newSessionEvents(),
		Mailbox:       mbox,
		HC:            hc,
		BC:            bc,
		Account:       account,
		Config:        cfg,
	}
	d.Engine = imapcmd.New(conn, d)
	return d
}

// Interrupt sets the sticky interrupt flag polled between command
// steps and chunk iterations; it is safe to call from a signal
// handler goroutine since the flag is an atomic.Bool.
func (d *Driver) Interrupt() { d.interrupted.Store(true) }

// checkInterrupt polls the sticky flag; if set, it consults the
// Canceler (if any) and returns ErrAborted if confirmed. The flag is
// always cleared so a declined interrupt doesn't keep firing.
func (d *Driver) checkInterrupt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.interrupted.Swap(false) {
		return nil
	}
	if d.Canceler != nil && d.Canceler.Confirm(ctx) {
		return ErrAborted
	}
	return nil
}
