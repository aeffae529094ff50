package value

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content hashing. The version suffix leaves room
// for algorithm migration without colliding with old hashes.
const (
	DomainBlob  = "snapdoc/blob/v1"
	DomainQuery = "snapdoc/query/v1"
)

// HashWithDomain computes SHA-256 with domain separation:
// SHA256(domain || 0x00 || data). The null byte prevents domain/data
// boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a stable identity for a query over a collection,
// used as the cache key component. Parts are joined with null separators
// before hashing so distinct part lists never collide.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(DomainQuery))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
