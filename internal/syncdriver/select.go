package syncdriver

import (
	"context"
	"strconv"
	"strings"
)

// SelectResult is what a SELECT/EXAMINE response reports about the
// mailbox the driver is about to manage, plus whether the server
// forced read-only (e.g. "[READ-ONLY]" on a plain SELECT).
type SelectResult struct {
	ServerState
	ReadOnly bool
}

// Select issues SELECT (or EXAMINE, if readOnly) and parses the
// response codes (UIDVALIDITY, UIDNEXT, HIGHESTMODSEQ) and untagged
// EXISTS the server sends, filling in a ServerState ready for
// InitialDownload. condstoreOK and qresyncEnabled reflect capability
// negotiation the caller already did (CAPABILITY, and ENABLE QRESYNC)
// before calling Select.
func (d *Driver) Select(ctx context.Context, mailboxWire string, readOnly, condstoreOK, qresyncEnabled bool) (SelectResult, error) {
	if err := d.checkInterrupt(ctx); err != nil {
		return SelectResult{}, err
	}
	verb := "SELECT"
	if readOnly {
		verb = "EXAMINE"
	}
	events, result, err := d.runCommand(verb + " " + imapQuoteMailbox(mailboxWire))
	if err != nil {
		return SelectResult{}, err
	}

	sr := SelectResult{ReadOnly: readOnly || result.HasCode("READ-ONLY")}
	sr.CondstoreOK = condstoreOK
	sr.QresyncEnabled = qresyncEnabled
	for _, c := range result.Codes {
		field, val, _ := strings.Cut(c, " ")
		switch strings.ToUpper(field) {
		case "UIDVALIDITY":
			if v, err := strconv.ParseUint(val, 10, 32); err == nil {
				sr.UIDValidity = uint32(v)
			}
		case "UIDNEXT":
			if v, err := strconv.ParseUint(val, 10, 32); err == nil {
				sr.UIDNext = uint32(v)
			}
		case "HIGHESTMODSEQ":
			if v, err := strconv.ParseUint(val, 10, 64); err == nil {
				d.Mailbox.IMAP.ModSeq = v
			}
		}
	}
	if len(events.Exists) > 0 {
		sr.ExistsCount = events.Exists[len(events.Exists)-1]
	}
	return sr, nil
}
