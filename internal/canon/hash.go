package canon

import (
	"encoding/hex"

	sha256 "github.com/minio/sha256-simd"
)

// HashSize is the length of a hex digest returned by Hash.
const HashSize = 64

// Hash returns the lowercase hex SHA-256 digest of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// JoinHash hashes parts joined by a single newline byte.
func JoinHash(parts ...[]byte) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'\n'})
		}
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
