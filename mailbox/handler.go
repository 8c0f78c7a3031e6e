package mailbox

import (
	"bytes"

	"spilled.ink/mailengine/internal/imapcmd"
)

// acctHandler collects the untagged responses that matter before a
// mailbox is selected: CAPABILITY and the delimiter/name pairs from a
// LIST "" "". It implements imapcmd.Handler with no-ops for the rest,
// since no FETCH/EXPUNGE/VANISHED/FLAGS response is expected on the
// pre-select engine an Account drives.
type acctHandler struct {
	Caps  []string
	Lists []imapcmd.ListResponse
}

func (h *acctHandler) reset() {
	h.Caps = nil
	h.Lists = nil
}

func (h *acctHandler) OnExists(uint32)                     {}
func (h *acctHandler) OnRecent(uint32)                      {}
func (h *acctHandler) OnExpunge(uint32)                     {}
func (h *acctHandler) OnVanished(bool, []imapcmd.SeqRange)  {}
func (h *acctHandler) OnFetch(imapcmd.FetchResponse)        {}
func (h *acctHandler) OnFlags([][]byte)                     {}
func (h *acctHandler) OnStatus(string, map[string]int64)    {}
func (h *acctHandler) OnUntaggedOK(codes []string, text string) {}
func (h *acctHandler) OnUntaggedBad(string)                 {}
func (h *acctHandler) OnList(item imapcmd.ListResponse)     { h.Lists = append(h.Lists, item) }
func (h *acctHandler) OnCapability(caps []string)           { h.Caps = caps }

// OpenLiteralSink discards a literal encountered before a mailbox is
// selected; none of the commands this package issues pre-select (see
// account.go) expect one.
func (h *acctHandler) OpenLiteralSink(msn uint32, section string, size int64) (imapcmd.LiteralSink, error) {
	return &discardSink{buf: &bytes.Buffer{}}, nil
}

type discardSink struct{ buf *bytes.Buffer }

func (d *discardSink) Write(p []byte) (int, error) { return d.buf.Write(p) }
func (d *discardSink) Close() error                { return nil }

var _ imapcmd.Handler = (*acctHandler)(nil)
