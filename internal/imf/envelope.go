package imf

import "spilled.ink/mailengine/internal/imapdate"

// Envelope is the subset of a message's header the sync driver
// installs onto an Email: the fields fetched via BODY.PEEK[HEADER.
// FIELDS (...)] in the initial download pass.
type Envelope struct {
	Date           int64 // seconds since epoch; 0 if absent/unparseable
	From           string
	Sender         string
	To             string
	Cc             string
	Subject        string
	MessageID      string
	InReplyTo      string
	References     string
	ContentType    string
	ListPost       string
	ListSubscribe  string
	ListUnsubscribe string
	Label          string
	OriginalTo     string
}

// BuildEnvelope extracts the envelope fields from a parsed Header. A
// missing or unparseable Date leaves Envelope.Date at zero.
func BuildEnvelope(h *Header) Envelope {
	get := func(k Key) string { return string(h.Get(k)) }

	var e Envelope
	e.From = get("From")
	e.Sender = get("Sender")
	e.To = get("To")
	e.Cc = get("Cc")
	e.Subject = get("Subject")
	e.MessageID = get("Message-Id")
	e.InReplyTo = get("In-Reply-To")
	e.References = get("References")
	e.ContentType = get("Content-Type")
	e.ListPost = get("List-Post")
	e.ListSubscribe = get("List-Subscribe")
	e.ListUnsubscribe = get("List-Unsubscribe")
	e.Label = get("X-Label")
	e.OriginalTo = get("X-Original-To")

	if raw := h.Get("Date"); len(raw) > 0 {
		if epoch, _, err := imapdate.Parse(string(raw)); err == nil {
			e.Date = epoch
		}
	}
	return e
}
