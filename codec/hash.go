package codec

import "lukechampine.com/blake3"

// HashSize is the digest size used for all content identifiers.
const HashSize = 32

// ID hashes the canonical encoding of an Encodable, matching spec
// id(x) = BLAKE3(encode(x)).
func ID(v Encodable) [HashSize]byte {
	return Hash(Encode(v))
}

// Hash returns the plain (unkeyed) BLAKE3-256 digest of b.
func Hash(b []byte) [HashSize]byte {
	return blake3.Sum256(b)
}

// KeyedHash returns the BLAKE3-256 digest of b keyed by key, used to derive
// the per-group mailbox ids (spec §4.6) from a domain-separation string.
// blake3's keyed mode requires a 32-byte key, so the domain string is
// itself hashed down to size first.
func KeyedHash(domain string, b []byte) [HashSize]byte {
	var key [32]byte
	dk := blake3.Sum256([]byte(domain))
	copy(key[:], dk[:])
	h := blake3.New(HashSize, key[:])
	h.Write(b)
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
