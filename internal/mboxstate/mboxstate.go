// Package mboxstate implements IMAP mailbox state: translating a wire
// FLAGS (...) list into mailcore.Flags/ImapFlagSet, and the
// local-wins reconciliation policy for flags changed locally but not
// yet pushed to the server.
//
// The flag vocabulary mirrors imap/imapparser/types.go's Store/
// StoreMode types (imapparser.Store.Flags is exactly this same
// \Seen/\Deleted/\Flagged/\Answered/\Recent/\Draft set, read here
// from the client's point of view instead of written by a server).
package mboxstate

import (
	"strings"

	"spilled.ink/mailengine/internal/mailcore"
)

// ParseFlags classifies a FETCH/FLAGS atom list into session flags,
// keywords, and system keywords not mapped to a Flags bit.
func ParseFlags(atoms [][]byte) (flags mailcore.Flags, sysKeywords, keywords []string) {
	flags.Active = true
	for _, a := range atoms {
		s := string(a)
		if strings.HasPrefix(s, `\`) {
			switch strings.ToLower(s[1:]) {
			case "seen":
				flags.Read = true
			case "deleted":
				flags.Deleted = true
			case "flagged":
				flags.Flagged = true
			case "answered":
				flags.Replied = true
			case "recent":
				// local-only "old" bit is derived below, not a Flags field itself
			case "draft":
				sysKeywords = append(sysKeywords, s)
			default:
				sysKeywords = append(sysKeywords, s)
			}
			continue
		}
		keywords = append(keywords, s)
	}
	return flags, sysKeywords, keywords
}

// IsRecent reports whether the raw atom list contained \Recent; Apply
// needs this separately from ParseFlags since \Recent feeds the
// derived "old" bit rather than a Flags field directly.
func IsRecent(atoms [][]byte) bool {
	for _, a := range atoms {
		if strings.EqualFold(string(a), `\Recent`) {
			return true
		}
	}
	return false
}

// MarkOldPolicy controls whether Apply derives Email.Flags.Old.
type MarkOldPolicy bool

// Apply reconciles a server FLAGS update onto e. If e.Flags.Changed
// is true (a local modification is pending sync), the local
// read/deleted/flagged/replied bits win and only keywords and the
// \Draft system keyword are accepted from the server; otherwise the
// server is authoritative. Changed is never cleared by Apply — a
// sync driver clears it only once the local change has actually been
// pushed via STORE.
func Apply(e *mailcore.Email, atoms [][]byte, markOld MarkOldPolicy) {
	ed, _ := e.Backend.(*mailcore.ImapEmailData)

	serverFlags, sysKeywords, keywords := ParseFlags(atoms)
	recent := IsRecent(atoms)

	if e.Flags.Changed {
		// Local wins for read/deleted/flagged/replied; still accept
		// keywords and \Draft from the server.
		if ed != nil {
			ed.Flagged.Keywords = keywords
			ed.Flagged.SystemKeywords = filterDraft(sysKeywords)
		}
		return
	}

	e.Flags.Read = serverFlags.Read
	e.Flags.Deleted = serverFlags.Deleted
	e.Flags.Flagged = serverFlags.Flagged
	e.Flags.Replied = serverFlags.Replied
	if bool(markOld) && !serverFlags.Read && !recent {
		e.Flags.Old = true
	}
	if ed != nil {
		ed.Flagged.Keywords = keywords
		ed.Flagged.SystemKeywords = sysKeywords
	}
}

func filterDraft(sysKeywords []string) []string {
	var out []string
	for _, k := range sysKeywords {
		if strings.EqualFold(k, `\Draft`) {
			out = append(out, k)
		}
	}
	return out
}
