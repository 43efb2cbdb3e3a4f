package crypto

import "golang.org/x/crypto/blake2b"

// ContentHashSize is the fixed width, in bytes, of a content hash.
const ContentHashSize = 32

// ContentHash uniquely identifies a Message's canonical encoding. It is the
// relay's deduplication key and is assumed not to collide for any two
// distinct canonical encodings.
type ContentHash [ContentHashSize]byte

// HashContent computes the content hash of a canonical encoding (header with
// the signature field zero-filled, followed by the payload). Callers must
// zero the signature field themselves before calling this function; it does
// not know the wire layout.
func HashContent(canonical []byte) ContentHash {
	return blake2b.Sum256(canonical)
}

// String returns the hex representation of the hash, mainly for logging.
func (h ContentHash) String() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(h)*2)
	for i, b := range h {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}
