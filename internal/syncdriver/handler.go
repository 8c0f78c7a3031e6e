package syncdriver

import (
	"bytes"

	"spilled.ink/mailengine/internal/imapcmd"
)

// fetchEvent is one parsed "* n FETCH (...)" response, scalar
// attributes plus any literal sections captured by a literalCapture.
type fetchEvent struct {
	imapcmd.FetchResponse
	Header []byte // captured BODY.PEEK[HEADER.FIELDS (...)] / RFC822.HEADER bytes, if requested
	Body   []byte // captured BODY[]/BODY.PEEK[] bytes, if requested and small enough to buffer
}

// sessionEvents accumulates everything the engine dispatches while a
// Driver step is outstanding: new-mail/expunge/vanished counts, FETCH
// rows, and capability/list/status responses a caller may also be
// waiting on. It implements imapcmd.Handler.
//
// literalTarget, when set, receives the bytes of the next FETCH
// literal directly (used by single-message body fetch to stream into
// the body cache instead of buffering); otherwise literals are
// buffered onto the matching fetchEvent.
type sessionEvents struct {
	Exists   []uint32
	Recent   []uint32
	Expunges []uint32
	Vanished []vanishedEvent
	Fetches  []*fetchEvent
	Flags    [][]byte
	Lists    []imapcmd.ListResponse
	Status   map[string]map[string]int64
	Caps     []string
	OKCodes  [][]string
	OKTexts  []string
	BadTexts []string

	literalTarget LiteralWriter
}

type vanishedEvent struct {
	Earlier bool
	UIDs    []imapcmd.SeqRange
}

// LiteralWriter receives a streamed FETCH literal's bytes directly,
// bypassing sessionEvents' buffering — used by single-message fetch to
// stream a body straight into the body cache's staged writer.
type LiteralWriter interface {
	Write(p []byte) (int, error)
	Close() error
}

func newSessionEvents() *sessionEvents {
	return &sessionEvents{Status: make(map[string]map[string]int64)}
}

// reset clears every accumulated event ahead of issuing a new command,
// without disturbing a pending literalTarget (set by the caller right
// before Do, consumed by the first OpenLiteralSink call).
func (s *sessionEvents) reset() {
	s.Exists = nil
	s.Recent = nil
	s.Expunges = nil
	s.Vanished = nil
	s.Fetches = nil
	s.Flags = nil
	s.Lists = nil
	s.Status = make(map[string]map[string]int64)
	s.Caps = nil
	s.OKCodes = nil
	s.OKTexts = nil
	s.BadTexts = nil
}

func (s *sessionEvents) OnExists(n uint32) { s.Exists = append(s.Exists, n) }
func (s *sessionEvents) OnRecent(n uint32) { s.Recent = append(s.Recent, n) }
func (s *sessionEvents) OnExpunge(msn uint32) { s.Expunges = append(s.Expunges, msn) }
func (s *sessionEvents) OnVanished(earlier bool, uids []imapcmd.SeqRange) {
	s.Vanished = append(s.Vanished, vanishedEvent{Earlier: earlier, UIDs: uids})
}
func (s *sessionEvents) OnFlags(flags [][]byte) { s.Flags = flags }
func (s *sessionEvents) OnList(item imapcmd.ListResponse) { s.Lists = append(s.Lists, item) }
func (s *sessionEvents) OnStatus(mailbox string, items map[string]int64) { s.Status[mailbox] = items }
func (s *sessionEvents) OnCapability(caps []string) { s.Caps = caps }
func (s *sessionEvents) OnUntaggedOK(codes []string, text string) {
	s.OKCodes = append(s.OKCodes, codes)
	s.OKTexts = append(s.OKTexts, text)
}
func (s *sessionEvents) OnUntaggedBad(text string) { s.BadTexts = append(s.BadTexts, text) }

func (s *sessionEvents) OnFetch(item imapcmd.FetchResponse) {
	// A literal in this same response has already opened a placeholder
	// event through OpenLiteralSink; fill that one in rather than add a
	// second event for the same MSN.
	if n := len(s.Fetches); n > 0 {
		last := s.Fetches[n-1]
		if last.MSN == item.MSN && last.UID == 0 && last.Flags == nil && !last.HasSize && !last.HasInternalDate && len(last.Sections) > 0 {
			sections := last.Sections
			last.FetchResponse = item
			if len(last.Sections) == 0 {
				last.Sections = sections
			}
			return
		}
	}
	s.Fetches = append(s.Fetches, &fetchEvent{FetchResponse: item})
}

// literalSink buffers into the owning fetchEvent unless a one-shot
// literalTarget has been set, in which case it streams there instead
// (and clears the target once consumed).
type literalSink struct {
	buf    *bytes.Buffer
	target LiteralWriter
	attach func([]byte)
}

func (l *literalSink) Write(p []byte) (int, error) {
	if l.target != nil {
		return l.target.Write(p)
	}
	return l.buf.Write(p)
}

func (l *literalSink) Close() error {
	if l.target != nil {
		return l.target.Close()
	}
	if l.attach != nil {
		l.attach(l.buf.Bytes())
	}
	return nil
}

// OpenLiteralSink implements imapcmd.Handler. section distinguishes a
// header-ish literal (RFC822.HEADER, BODY[HEADER.FIELDS ...]) from a
// full-body literal (BODY[], BODY.PEEK[]) so the event is attached to
// the right field.
func (s *sessionEvents) OpenLiteralSink(msn uint32, section string, size int64) (imapcmd.LiteralSink, error) {
	var ev *fetchEvent
	for _, f := range s.Fetches {
		if f.MSN == msn {
			ev = f
		}
	}
	if ev == nil {
		ev = &fetchEvent{FetchResponse: imapcmd.FetchResponse{MSN: msn}}
		s.Fetches = append(s.Fetches, ev)
	}
	ev.Sections = append(ev.Sections, section)

	if s.literalTarget != nil {
		target := s.literalTarget
		s.literalTarget = nil
		return &literalSink{target: target}, nil
	}

	buf := &bytes.Buffer{}
	buf.Grow(int(size))
	isHeader := isHeaderSection(section)
	return &literalSink{buf: buf, attach: func(b []byte) {
		if isHeader {
			ev.Header = b
		} else {
			ev.Body = b
		}
	}}, nil
}

func isHeaderSection(section string) bool {
	switch {
	case section == "RFC822.HEADER":
		return true
	case len(section) >= 6 && section[:6] == "BODY[H":
		return true
	case len(section) >= 11 && section[:11] == "BODY.PEEK[H":
		return true
	default:
		return false
	}
}

var _ imapcmd.Handler = (*sessionEvents)(nil)
