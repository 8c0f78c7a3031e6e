// Package rfc2047 implements the MIME "encoded-word" header codec
// defined by RFC 2047: =?charset?Q|B?text?=.
//
// third_party/imf/addr.go only ever decodes encoded words, wrapping
// net/mime.WordDecoder with a golang.org/x/text CharsetReader. This
// package generalizes that to also encode, since a drafted outgoing
// message with a non-ASCII Subject needs to be APPENDed with
// correctly encoded headers; charset conversion itself still goes
// through internal/charset, keeping golang.org/x/text as the only
// place encoding tables live.
package rfc2047

// MaxWordLength is the longest a single "=?charset?Q|B?text?=" token
// may be, per RFC 2047 section 2.
const MaxWordLength = 75

// MaxLineColumns is the widest a folded output line may be: no line
// whose visible length exceeds 76 columns.
const MaxLineColumns = 76

// Encoding identifies the transfer encoding inside an encoded word.
type Encoding byte

const (
	Q Encoding = 'Q'
	B Encoding = 'B'
)
