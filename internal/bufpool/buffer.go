// Package bufpool implements a growable byte buffer and a per-context
// free list for reusing them.
//
// The free list is explicit rather than global: the connection
// (imapconn.Dial, DialTLS and New) is constructed with a *Pool, so two
// accounts running on separate goroutines never contend over pool
// state. SPEC_FULL.md §4.1 discusses this choice.
package bufpool

// Buffer is a growable byte buffer with a cursor-free logical length.
//
// Unlike bytes.Buffer, Buffer never discards its backing array on
// Reset; it is meant to be obtained from a Pool, reused many times,
// and returned.
type Buffer struct {
	data []byte
}

// New returns a Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Reset sets the logical length to 0 without releasing capacity.
func (b *Buffer) Reset() { b.data = b.data[:0] }

// Len reports the logical length.
func (b *Buffer) Len() int { return len(b.data) }

// Cap reports the allocated capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Bytes returns the buffer's contents. The slice is valid until the
// next mutating call.
func (b *Buffer) Bytes() []byte { return b.data }

// String returns the buffer's contents as a string (a copy).
func (b *Buffer) String() string { return string(b.data) }

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(c byte) { b.data = append(b.data, c) }

// Append appends bytes.
func (b *Buffer) Append(p []byte) { b.data = append(b.data, p...) }

// AppendString appends a Go string (the "C-string" operation from the
// source material, minus the NUL terminator Go strings don't carry).
func (b *Buffer) AppendString(s string) { b.data = append(b.data, s...) }

// Printf appends a formatted string without allocating an
// intermediate string when possible.
func (b *Buffer) Printf(format string, args ...interface{}) {
	b.data = appendf(b.data, format, args...)
}

// CopyFrom replaces the contents with a copy of src's contents.
func (b *Buffer) CopyFrom(src *Buffer) {
	b.data = append(b.data[:0], src.data...)
}

// Duplicate returns a new Buffer with a copy of this buffer's contents.
func (b *Buffer) Duplicate() *Buffer {
	dup := New(len(b.data))
	dup.Append(b.data)
	return dup
}

// Substring copies [start:end) into dst, growing it if needed.
func (b *Buffer) Substring(dst *Buffer, start, end int) {
	dst.data = append(dst.data[:0], b.data[start:end]...)
}

// Lowercase lowercases the ASCII letters in the buffer in place.
func (b *Buffer) Lowercase() {
	for i, c := range b.data {
		if 'A' <= c && c <= 'Z' {
			b.data[i] = c + ('a' - 'A')
		}
	}
}

// AppendPath appends a '/'-joined path component, inserting a
// separator only if one isn't already present.
func (b *Buffer) AppendPath(component string) {
	if len(b.data) > 0 && b.data[len(b.data)-1] != '/' && len(component) > 0 && component[0] != '/' {
		b.data = append(b.data, '/')
	}
	b.data = append(b.data, component...)
}

// Find returns the index of the first occurrence of sub, or -1.
func (b *Buffer) Find(sub []byte) int { return indexBytes(b.data, sub) }

// RFind returns the index of the last occurrence of sub, or -1.
func (b *Buffer) RFind(sub []byte) int { return lastIndexBytes(b.data, sub) }

// StartsWith reports whether the buffer begins with prefix.
func (b *Buffer) StartsWith(prefix []byte) bool {
	if len(prefix) > len(b.data) {
		return false
	}
	for i, c := range prefix {
		if b.data[i] != c {
			return false
		}
	}
	return true
}

// Equal reports whether the buffer's contents equal other.
func (b *Buffer) Equal(other []byte) bool {
	if len(b.data) != len(other) {
		return false
	}
	for i, c := range other {
		if b.data[i] != c {
			return false
		}
	}
	return true
}
