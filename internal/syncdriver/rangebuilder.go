package syncdriver

import (
	"fmt"
	"strings"
)

// holeSet reports, for an MSN in [1, high], whether it still needs a
// FETCH (true) or is already installed (false).
type holeSet interface {
	needsFetch(msn uint32) bool
}

// mailboxHoles adapts a Mailbox to holeSet: an MSN beyond the dense
// array's current length, or holding a nil slot, still needs a fetch.
type mailboxHoles struct {
	get func(msn uint32) bool
}

func (h mailboxHoles) needsFetch(msn uint32) bool { return h.get(msn) }

// buildChunks walks msnBegin..msnEnd (inclusive) and groups the MSNs
// reported by holes as needing a fetch into compact sequence-set
// chunks ("a,b:c,d:e"), each bounded by maxNew (new MSN count; 0 means
// unbounded) and maxBytes (textual length of the chunk's sequence-set
// text).
func buildChunks(msnBegin, msnEnd uint32, holes holeSet, maxNew, maxBytes int) []string {
	if msnBegin > msnEnd {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = 500
	}

	var chunks []string
	var b strings.Builder
	newInChunk := 0

	flush := func() {
		if b.Len() > 0 {
			chunks = append(chunks, b.String())
			b.Reset()
			newInChunk = 0
		}
	}

	var runStart, runEnd uint32
	haveRun := false

	appendRun := func() {
		if !haveRun {
			return
		}
		for {
			if maxNew > 0 && newInChunk >= maxNew {
				flush()
			}
			end := runEnd
			if maxNew > 0 && int(end-runStart)+1 > maxNew-newInChunk {
				end = runStart + uint32(maxNew-newInChunk) - 1
			}
			n := int(end-runStart) + 1
			var piece string
			if runStart == end {
				piece = fmt.Sprintf("%d", runStart)
			} else {
				piece = fmt.Sprintf("%d:%d", runStart, end)
			}
			sep := 0
			if b.Len() > 0 {
				sep = 1 // comma
			}
			if (maxNew > 0 && newInChunk+n > maxNew) || (b.Len()+sep+len(piece) > maxBytes) {
				flush()
				sep = 0
			}
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(piece)
			newInChunk += n
			if end == runEnd {
				break
			}
			runStart = end + 1
		}
		haveRun = false
	}

	for msn := msnBegin; msn <= msnEnd; msn++ {
		if !holes.needsFetch(msn) {
			appendRun()
			continue
		}
		if haveRun && msn == runEnd+1 {
			runEnd = msn
			continue
		}
		appendRun()
		runStart, runEnd, haveRun = msn, msn, true
	}
	appendRun()
	flush()
	return chunks
}
