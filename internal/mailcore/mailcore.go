// Package mailcore holds the data model shared by the sync driver and
// the public mailbox facade: Email, Mailbox, and the IMAP-specific
// per-account/per-mailbox state. It exists as a separate package (the
// teacher keeps an analogous split between imap.go's types and
// imapserver's implementation) so both internal/syncdriver and the
// public mailbox package can depend on the same types without a
// mailbox -> syncdriver -> mailbox import cycle.
package mailcore

import "time"

// Flags are the per-session flags carried on every Email, mirroring
// the {read, old, deleted, flagged, replied, changed, active} set.
type Flags struct {
	Read    bool
	Old     bool
	Deleted bool
	Flagged bool
	Replied bool
	Changed bool // pending local modification not yet synced
	Active  bool // still present since last EXPUNGE/VANISHED reconciliation
}

// BackendData is the v-table seam a Email's backend-specific slot
// implements. IMAP is the only implementation in this module, but
// keeping the seam means the core never switch-types on backend kind.
type BackendData interface {
	backendData()
}

// ImapEmailData is the IMAP edata slot: UID, MSN, server flags, and
// server-side keyword list.
type ImapEmailData struct {
	UID     uint32
	MSN     uint32 // 1-based; 0 means "not currently installed"
	Flagged ImapFlagSet
}

func (*ImapEmailData) backendData() {}

// ImapFlagSet is the raw server-side flag/keyword view, parsed by
// internal/mboxstate from a FLAGS (...) response.
type ImapFlagSet struct {
	Keywords       []string // non-\ atoms
	SystemKeywords []string // \ atoms the core doesn't map to a Flags bit
}

// Email is a single message's envelope-level metadata plus session
// flags. It carries no message body; MsgOpen (facade) opens the body
// from the body cache on demand.
type Email struct {
	Flags Flags

	MessageID string
	Subject   string
	From      string
	Sender    string
	To        string
	Cc        string
	InReplyTo string
	References string

	InternalDate int64 // seconds since epoch, server INTERNALDATE
	Size         int64 // RFC822.SIZE

	Tags []string

	Backend BackendData

	// mboxIndex is a non-owning back-reference into the owning
	// Mailbox's dense array, valid only while Active and installed;
	// it is never used to free the Email (Mailbox owns that).
	mboxIndex int
	installed bool
}

// MboxIndex returns the Email's current position in its owning
// Mailbox's dense array, or -1 if not installed.
func (e *Email) MboxIndex() int {
	if !e.installed {
		return -1
	}
	return e.mboxIndex
}

func (e *Email) setMboxIndex(i int) {
	e.mboxIndex = i
	e.installed = true
}

func (e *Email) clearMboxIndex() {
	e.mboxIndex = 0
	e.installed = false
}

// MailboxType distinguishes backend kinds recognized by path_probe.
type MailboxType int

const (
	MailboxTypeUnknown MailboxType = iota
	MailboxTypeIMAP
	MailboxTypeNotmuch
)

// Mailbox is a logical folder: an ordered, dense sequence of *Email
// (the MSN-indexed arena) plus derived aggregates.
type Mailbox struct {
	Type     MailboxType
	Name     string
	Verbose  bool
	ReadOnly bool

	arena []*Email // dense, index i holds the Email at MSN i+1, or nil for a hole

	Count   int
	Unread  int
	Flagged int
	Deleted int
	Size    int64

	byMessageID map[string]*Email

	IMAP *ImapMboxData
}

// NewMailbox returns an empty Mailbox of the given type.
func NewMailbox(typ MailboxType, name string) *Mailbox {
	return &Mailbox{
		Type:        typ,
		Name:        name,
		byMessageID: make(map[string]*Email),
	}
}

// Reserve grows the dense array to at least n slots (MSNs 1..n).
func (m *Mailbox) Reserve(n int) {
	if n <= len(m.arena) {
		return
	}
	grown := make([]*Email, n)
	copy(grown, m.arena)
	m.arena = grown
}

// Len returns the current dense array length (the highest MSN ever
// reserved, not the count of non-nil slots).
func (m *Mailbox) Len() int { return len(m.arena) }

// Get returns the Email installed at MSN msn (1-based), or nil if the
// slot is empty (a "hole") or out of range.
func (m *Mailbox) Get(msn uint32) *Email {
	i := int(msn) - 1
	if i < 0 || i >= len(m.arena) {
		return nil
	}
	return m.arena[i]
}

// Set installs e at MSN msn (1-based), growing the arena if needed.
func (m *Mailbox) Set(msn uint32, e *Email) {
	i := int(msn) - 1
	if i < 0 {
		return
	}
	if i >= len(m.arena) {
		m.Reserve(i + 1)
	}
	if old := m.arena[i]; old != nil {
		old.clearMboxIndex()
		m.unindex(old)
	}
	m.arena[i] = e
	if e != nil {
		e.setMboxIndex(i)
		e.Flags.Active = true
		m.index(e)
	}
}

func (m *Mailbox) index(e *Email) {
	if e.MessageID != "" {
		m.byMessageID[e.MessageID] = e
	}
}

func (m *Mailbox) unindex(e *Email) {
	if e.MessageID != "" && m.byMessageID[e.MessageID] == e {
		delete(m.byMessageID, e.MessageID)
	}
}

// ByMessageID looks up an installed Email by its Message-Id header.
func (m *Mailbox) ByMessageID(id string) *Email { return m.byMessageID[id] }

// FreeFrom removes the slot at msn (1-based), shifting every slot
// with a higher MSN down by one and marking the removed Email
// inactive, matching IMAP's EXPUNGE semantics: EXPUNGE n shifts MSN
// indices down by one starting at n.
func (m *Mailbox) FreeFrom(msn uint32) *Email {
	i := int(msn) - 1
	if i < 0 || i >= len(m.arena) {
		return nil
	}
	removed := m.arena[i]
	if removed != nil {
		removed.Flags.Active = false
		removed.clearMboxIndex()
		m.unindex(removed)
	}
	copy(m.arena[i:], m.arena[i+1:])
	m.arena = m.arena[:len(m.arena)-1]
	for j := i; j < len(m.arena); j++ {
		if m.arena[j] != nil {
			m.arena[j].setMboxIndex(j)
			if ed, ok := m.arena[j].Backend.(*ImapEmailData); ok {
				ed.MSN = uint32(j + 1)
			}
		}
	}
	return removed
}

// Compact drops every nil hole from the dense array without
// renumbering non-nil entries relative to each other (their MSNs are
// recomputed to their new position); used after a batch of VANISHED
// removals, which remove by UID rather than shifting MSNs one at a
// time.
func (m *Mailbox) Compact() {
	out := m.arena[:0]
	for _, e := range m.arena {
		if e == nil {
			continue
		}
		out = append(out, e)
	}
	m.arena = out
	for j, e := range m.arena {
		e.setMboxIndex(j)
		if ed, ok := e.Backend.(*ImapEmailData); ok {
			ed.MSN = uint32(j + 1)
		}
	}
}

// Recompute refreshes the derived aggregate counters (Count, Unread,
// Flagged, Deleted, Size) by scanning the dense array.
func (m *Mailbox) Recompute() {
	m.Count, m.Unread, m.Flagged, m.Deleted, m.Size = 0, 0, 0, 0, 0
	for _, e := range m.arena {
		if e == nil || !e.Flags.Active {
			continue
		}
		m.Count++
		if !e.Flags.Read {
			m.Unread++
		}
		if e.Flags.Flagged {
			m.Flagged++
		}
		if e.Flags.Deleted {
			m.Deleted++
		}
		m.Size += e.Size
	}
}

// ReopenFlag bits, set by untagged response handling and applied once
// the command engine is quiescent.
type ReopenFlag uint32

const (
	ReopenExpungePending ReopenFlag = 1 << iota
	ReopenNewmailPending
	ReopenAllow
)

// ImapMboxData is the per-selected-mailbox IMAP state.
type ImapMboxData struct {
	WireName   string // as sent on the wire (possibly UTF-7 munged)
	MungedName string

	UIDValidity uint32
	UIDNext     uint32
	ModSeq      uint64

	UIDHash map[uint32]*Email

	QResyncEnabled bool
	Delimiter      byte

	Reopen      ReopenFlag
	CheckStatus CheckStatus
}

// CheckStatus classifies the outcome of a mailbox Check (NOOP) call.
type CheckStatus int

const (
	CheckOK CheckStatus = iota
	CheckNewMail
	CheckFlags
	CheckReopened
	CheckError
)

func NewImapMboxData() *ImapMboxData {
	return &ImapMboxData{UIDHash: make(map[uint32]*Email)}
}

// ImapAccountData is per-TCP-connection state: capability bitset,
// currently selected mailbox, and authenticated user and time.
type ImapAccountData struct {
	Capabilities map[string]bool
	Selected     *Mailbox

	AuthUser string
	AuthTime time.Time
}

func NewImapAccountData() *ImapAccountData {
	return &ImapAccountData{Capabilities: make(map[string]bool)}
}

func (a *ImapAccountData) HasCapability(name string) bool { return a.Capabilities[name] }
