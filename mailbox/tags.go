package mailbox

import (
	"context"
	"sort"

	"spilled.ink/mailengine/internal/mailcore"
)

// TagMapping translates between the client's free-form tag vocabulary
// and the IMAP keyword atoms carried in an ImapFlagSet.Keywords list.
// The default mapping is the identity (a tag "foo" rides as the
// keyword atom "foo"), since arbitrary non-\ atoms are already legal
// IMAP keywords; a caller with a client-specific prefix convention
// (e.g. Gmail labels) can supply its own.
type TagMapping struct {
	ToKeyword func(tag string) string
	ToTag     func(keyword string) string
}

// DefaultTagMapping is the identity mapping described on TagMapping.
func DefaultTagMapping() TagMapping {
	identity := func(s string) string { return s }
	return TagMapping{ToKeyword: identity, ToTag: identity}
}

// TagsCommit reconciles e.Tags against tags (the caller's desired
// tag set), updating both the local Tags slice and the IMAP keyword
// list the next Sync call's STORE will push, and marking Flags.Changed
// so Sync actually pushes it.
func (mb *Mailbox) TagsCommit(ctx context.Context, e *mailcore.Email, tags []string, mapping TagMapping) error {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	e.Tags = sorted

	ed, ok := e.Backend.(*mailcore.ImapEmailData)
	if !ok {
		return nil
	}
	keywords := make([]string, len(sorted))
	for i, t := range sorted {
		keywords[i] = mapping.ToKeyword(t)
	}
	ed.Flagged.Keywords = keywords
	e.Flags.Changed = true
	return nil
}
