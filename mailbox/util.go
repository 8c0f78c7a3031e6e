package mailbox

import (
	"strings"

	"spilled.ink/mailengine/internal/utf7mod"
)

// quoteMailboxName UTF-7-encodes name (mailbox names with non-ASCII
// characters must travel as modified UTF-7 per RFC 3501 section 5.1)
// and renders it as an IMAP quoted string.
func quoteMailboxName(name string) string {
	wire := utf7mod.Encode(name)
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range wire {
		if r == '\\' || r == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
