package syncdriver

import "encoding/binary"

// msgKey is the header-cache key for a message, a big-endian UID: the
// header cache's keys are caller-chosen opaque byte strings, and UID
// is the natural choice since /UIDVALIDITY changes invalidate the
// whole mailbox (and therefore every key) at once.
func msgKey(uid uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uid)
	return b[:]
}
