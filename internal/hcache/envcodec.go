package hcache

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"spilled.ink/mailengine/internal/mailcore"
)

// Entries are a tagged stream of length-prefixed fields followed by a
// trailing IEEE CRC32 stamped at store time. This hand-rolls the wire
// format rather than reaching for encoding/gob, matching the explicit,
// hand-rolled framing used elsewhere for IMAP data (the token scanner
// in imap/imapparser, the header folding in email/header.go).
const (
	tagMessageID = iota + 1
	tagSubject
	tagFrom
	tagSender
	tagTo
	tagCc
	tagInReplyTo
	tagReferences
	tagInternalDate
	tagSize
	tagFlags
	tagUID
	tagMSN
	tagKeywords
	tagSystemKeywords
	tagTags
	tagEnd = 0xff
)

// EncodeEmail serializes e into the envelope wire format, appending a
// CRC32 (IEEE) trailer that Decode verifies.
func EncodeEmail(e *mailcore.Email) []byte {
	var b []byte
	b = putStringField(b, tagMessageID, e.MessageID)
	b = putStringField(b, tagSubject, e.Subject)
	b = putStringField(b, tagFrom, e.From)
	b = putStringField(b, tagSender, e.Sender)
	b = putStringField(b, tagTo, e.To)
	b = putStringField(b, tagCc, e.Cc)
	b = putStringField(b, tagInReplyTo, e.InReplyTo)
	b = putStringField(b, tagReferences, e.References)
	b = putVarintField(b, tagInternalDate, uint64(e.InternalDate))
	b = putVarintField(b, tagSize, uint64(e.Size))
	b = putByteField(b, tagFlags, encodeFlags(e.Flags))
	if ed, ok := e.Backend.(*mailcore.ImapEmailData); ok {
		b = putVarintField(b, tagUID, uint64(ed.UID))
		b = putVarintField(b, tagMSN, uint64(ed.MSN))
		b = putStringListField(b, tagKeywords, ed.Flagged.Keywords)
		b = putStringListField(b, tagSystemKeywords, ed.Flagged.SystemKeywords)
	}
	b = putStringListField(b, tagTags, e.Tags)
	b = append(b, tagEnd)

	crc := crc32.ChecksumIEEE(b)
	out := make([]byte, len(b)+4)
	copy(out, b)
	binary.BigEndian.PutUint32(out[len(b):], crc)
	return out
}

// ErrCRCMismatch is returned by DecodeEmail when the trailing CRC
// doesn't match. Callers must treat this as a cache miss, not
// propagate it as an error.
var ErrCRCMismatch = fmt.Errorf("hcache: crc mismatch")

// DecodeEmail reconstructs an Email from bytes produced by
// EncodeEmail, verifying the CRC trailer first.
func DecodeEmail(data []byte) (*mailcore.Email, error) {
	if len(data) < 4 {
		return nil, ErrCRCMismatch
	}
	body, wantCRC := data[:len(data)-4], binary.BigEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, ErrCRCMismatch
	}

	e := &mailcore.Email{}
	ed := &mailcore.ImapEmailData{}
	hasIMAP := false

	r := body
	for len(r) > 0 {
		tag := r[0]
		r = r[1:]
		if tag == tagEnd {
			break
		}
		switch tag {
		case tagMessageID:
			e.MessageID, r = getString(r)
		case tagSubject:
			e.Subject, r = getString(r)
		case tagFrom:
			e.From, r = getString(r)
		case tagSender:
			e.Sender, r = getString(r)
		case tagTo:
			e.To, r = getString(r)
		case tagCc:
			e.Cc, r = getString(r)
		case tagInReplyTo:
			e.InReplyTo, r = getString(r)
		case tagReferences:
			e.References, r = getString(r)
		case tagInternalDate:
			var v uint64
			v, r = getVarint(r)
			e.InternalDate = int64(v)
		case tagSize:
			var v uint64
			v, r = getVarint(r)
			e.Size = int64(v)
		case tagFlags:
			var raw []byte
			raw, r = getBytes(r)
			if len(raw) == 1 {
				e.Flags = decodeFlags(raw[0])
			}
		case tagUID:
			var v uint64
			v, r = getVarint(r)
			ed.UID = uint32(v)
			hasIMAP = true
		case tagMSN:
			var v uint64
			v, r = getVarint(r)
			ed.MSN = uint32(v)
			hasIMAP = true
		case tagKeywords:
			ed.Flagged.Keywords, r = getStringList(r)
			hasIMAP = true
		case tagSystemKeywords:
			ed.Flagged.SystemKeywords, r = getStringList(r)
			hasIMAP = true
		case tagTags:
			e.Tags, r = getStringList(r)
		default:
			// Unknown tag from a newer writer: skip a length-prefixed
			// blob defensively rather than fail the whole entry.
			_, r = getBytes(r)
		}
	}
	if hasIMAP {
		e.Backend = ed
	}
	return e, nil
}

func encodeFlags(f mailcore.Flags) byte {
	var b byte
	if f.Read {
		b |= 1 << 0
	}
	if f.Old {
		b |= 1 << 1
	}
	if f.Deleted {
		b |= 1 << 2
	}
	if f.Flagged {
		b |= 1 << 3
	}
	if f.Replied {
		b |= 1 << 4
	}
	if f.Changed {
		b |= 1 << 5
	}
	if f.Active {
		b |= 1 << 6
	}
	return b
}

func decodeFlags(b byte) mailcore.Flags {
	return mailcore.Flags{
		Read:    b&(1<<0) != 0,
		Old:     b&(1<<1) != 0,
		Deleted: b&(1<<2) != 0,
		Flagged: b&(1<<3) != 0,
		Replied: b&(1<<4) != 0,
		Changed: b&(1<<5) != 0,
		Active:  b&(1<<6) != 0,
	}
}

func putStringField(b []byte, tag byte, s string) []byte {
	return putByteField(b, tag, []byte(s))
}

func putByteField(b []byte, tag byte, v []byte) []byte {
	b = append(b, tag)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(v)))
	b = append(b, tmp[:n]...)
	return append(b, v...)
}

func putVarintField(b []byte, tag byte, v uint64) []byte {
	b = append(b, tag)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(b, tmp[:n]...)
}

func putStringListField(b []byte, tag byte, list []string) []byte {
	b = append(b, tag)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(list)))
	b = append(b, tmp[:n]...)
	for _, s := range list {
		n := binary.PutUvarint(tmp[:], uint64(len(s)))
		b = append(b, tmp[:n]...)
		b = append(b, s...)
	}
	return b
}

func getVarint(r []byte) (uint64, []byte) {
	v, n := binary.Uvarint(r)
	if n <= 0 {
		return 0, nil
	}
	return v, r[n:]
}

func getBytes(r []byte) ([]byte, []byte) {
	n, rest := getVarint(r)
	if uint64(len(rest)) < n {
		return nil, nil
	}
	return rest[:n], rest[n:]
}

func getString(r []byte) (string, []byte) {
	b, rest := getBytes(r)
	return string(b), rest
}

func getStringList(r []byte) ([]string, []byte) {
	n, rest := getVarint(r)
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		var s string
		s, rest = getString(rest)
		out = append(out, s)
	}
	return out, rest
}
