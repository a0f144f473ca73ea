// Package keys provides the public-key fingerprint primitive used to match
// delegation declarations against transaction signatories.
package keys

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// FingerprintSize is the digest length in bytes (blake2b-224, the key-hash
// size used on-chain).
const FingerprintSize = 28

// Fingerprint derives the hex-encoded key hash of a raw public key.
func Fingerprint(pubKey []byte) string {
	h, err := blake2b.New(FingerprintSize, nil)
	if err != nil {
		// blake2b.New only fails on invalid key material; we pass none.
		panic(err)
	}
	_, _ = h.Write(pubKey)
	return hex.EncodeToString(h.Sum(nil))
}
