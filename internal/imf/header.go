// Package imf is a trimmed, header-only RFC 5322 reader: a MIME-style
// header reader plus an envelope builder, the "RFC 822 header reader"
// collaborator the sync driver needs to turn a FETCH header literal
// into an Envelope. There is no full MIME body tree here — multipart
// walking stays out of scope — only the header map and the handful of
// envelope fields the sync driver installs onto an Email.
package imf

import (
	"bytes"
	"fmt"
)

// Key is a canonicalised MIME header field name.
type Key string

// HeaderEntry is one header line, key and raw (already RFC 2047
// decoded) value.
type HeaderEntry struct {
	Key   Key
	Value []byte
}

// Header is a MIME-style header: an ordered entry list plus an index
// for fast lookup by canonical key.
type Header struct {
	Entries []HeaderEntry
	Index   map[Key][][]byte
}

func (h *Header) Add(k Key, v []byte) {
	h.Entries = append(h.Entries, HeaderEntry{Key: k, Value: v})
	if h.Index == nil {
		h.Index = make(map[Key][][]byte)
	}
	h.Index[k] = append(h.Index[k], v)
}

// Get returns the first value stored under k, or nil.
func (h *Header) Get(k Key) []byte {
	vals := h.Index[k]
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}

// All returns every value stored under k, in header order.
func (h *Header) All(k Key) [][]byte { return h.Index[k] }

// ProtocolError reports a malformed header the reader couldn't parse.
type ProtocolError string

func (p ProtocolError) Error() string { return string(p) }

// CanonicalKey canonicalises a raw header field name into the small
// set of keys the sync driver's header fetch (DATE FROM SENDER
// SUBJECT TO CC MESSAGE-ID REFERENCES CONTENT-TYPE
// CONTENT-DESCRIPTION IN-REPLY-TO REPLY-TO LINES LIST-POST
// LIST-SUBSCRIBE LIST-UNSUBSCRIBE X-LABEL X-ORIGINAL-TO) actually
// requests, falling back to a general title-cased form for anything
// else so arbitrary headers still round-trip.
func CanonicalKey(raw []byte) Key {
	b := make([]byte, len(raw))
	copy(b, raw)
	asciiLower(b)

	switch string(b) {
	case "date":
		return "Date"
	case "from":
		return "From"
	case "sender":
		return "Sender"
	case "subject":
		return "Subject"
	case "to":
		return "To"
	case "cc":
		return "Cc"
	case "message-id":
		return "Message-Id"
	case "references":
		return "References"
	case "content-type":
		return "Content-Type"
	case "content-description":
		return "Content-Description"
	case "in-reply-to":
		return "In-Reply-To"
	case "reply-to":
		return "Reply-To"
	case "lines":
		return "Lines"
	case "list-post":
		return "List-Post"
	case "list-subscribe":
		return "List-Subscribe"
	case "list-unsubscribe":
		return "List-Unsubscribe"
	case "x-label":
		return "X-Label"
	case "x-original-to":
		return "X-Original-To"
	default:
		titleCase(b)
		return Key(b)
	}
}

func asciiLower(data []byte) {
	for i, c := range data {
		if c >= 'A' && c <= 'Z' {
			data[i] = c + ('a' - 'A')
		}
	}
}

func titleCase(b []byte) {
	for i, c := range b {
		if c >= 'a' && c <= 'z' && (i == 0 || b[i-1] == '-') {
			b[i] -= 'a' - 'A'
		}
	}
}

func (h Header) String() string {
	var buf bytes.Buffer
	for _, e := range h.Entries {
		fmt.Fprintf(&buf, "%s: %s\n", e.Key, e.Value)
	}
	return buf.String()
}
