package mailbox

import (
	"context"
	"fmt"
	"path/filepath"

	"crawshaw.io/iox"

	"spilled.ink/mailengine/internal/bcache"
	"spilled.ink/mailengine/internal/hcache"
	"spilled.ink/mailengine/internal/imapcmd"
	"spilled.ink/mailengine/internal/mailcore"
	"spilled.ink/mailengine/internal/syncdriver"
	"spilled.ink/mailengine/internal/utf7mod"
)

// OpenConfig names where the two-tier cache lives and tunes the sync
// driver's chunking/peek behavior; see syncdriver.Config.
type OpenConfig struct {
	ReadOnly bool
	CacheDir string // directory holding this mailbox's header DB and body store
	Filer    *iox.Filer
	Driver   syncdriver.Config
}

// Mailbox is one selected folder's live session: the dense Email
// array, the two-tier cache backing it, and the sync driver that
// keeps both in step with the server.
type Mailbox struct {
	acct   *Account
	driver *syncdriver.Driver
	filer  *iox.Filer

	Core *mailcore.Mailbox
	HC   *hcache.Cache
	BC   *bcache.Cache

	WireName string
	ReadOnly bool
}

// Open selects mailboxName on acct's connection and runs the initial
// download pass (strategy chosen from the header cache's prior state
// against the server's CONDSTORE/QRESYNC capabilities), returning a
// Mailbox whose Core array mirrors the server.
//
// acct must not be used for any other Mailbox concurrently: Open
// reuses acct's connection for the new driver's own command engine.
func Open(ctx context.Context, acct *Account, mailboxName string, cfg OpenConfig) (*Mailbox, error) {
	wireName := utf7mod.Encode(mailboxName)

	core := mailcore.NewMailbox(mailcore.MailboxTypeIMAP, mailboxName)
	core.IMAP = mailcore.NewImapMboxData()
	core.IMAP.WireName = wireName

	hc, err := hcache.Open(filepath.Join(cfg.CacheDir, "hcache.db"), mailboxName)
	if err != nil {
		return nil, fmt.Errorf("mailbox: open %s: header cache: %w", mailboxName, err)
	}
	bc, err := bcache.Open(cfg.Filer, filepath.Join(cfg.CacheDir, "bodies"))
	if err != nil {
		hc.Close()
		return nil, fmt.Errorf("mailbox: open %s: body cache: %w", mailboxName, err)
	}

	driver := syncdriver.New(acct.conn, core, hc, bc, mailcore.NewImapAccountData(), cfg.Driver)

	condstoreOK := acct.Caps["CONDSTORE"]
	qresyncOK := acct.Caps["QRESYNC"]
	qresyncEnabled := false
	if qresyncOK {
		if _, result, err := driver.Engine.Do("ENABLE QRESYNC CONDSTORE", nil); err == nil && result.Status == imapcmd.ResultOK {
			qresyncEnabled = true
			condstoreOK = true
		}
	}

	sr, err := driver.Select(ctx, wireName, cfg.ReadOnly, condstoreOK, qresyncEnabled)
	if err != nil {
		hc.Close()
		return nil, fmt.Errorf("mailbox: open %s: select: %w", mailboxName, err)
	}

	mb := &Mailbox{
		acct: acct, driver: driver, filer: cfg.Filer,
		Core: core, HC: hc, BC: bc,
		WireName: wireName, ReadOnly: sr.ReadOnly,
	}
	core.ReadOnly = sr.ReadOnly

	if _, err := driver.InitialDownload(ctx, sr.ServerState); err != nil {
		hc.Close()
		return nil, fmt.Errorf("mailbox: open %s: initial download: %w", mailboxName, err)
	}
	return mb, nil
}

// Close releases the mailbox's cache handles. It does not issue
// CLOSE or LOGOUT; the owning Account stays connected for whatever
// Mailbox is opened next.
func (mb *Mailbox) Close() error {
	return mb.HC.Close()
}
