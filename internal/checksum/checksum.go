package checksum

import (
	"github.com/opencontainers/go-digest"
)

// Sum returns the SHA-256 digest of data in "sha256:<hex>" form.
func Sum(data []byte) string {
	return digest.FromBytes(data).String()
}

// SumString is Sum for string content.
func SumString(s string) string {
	return digest.FromString(s).String()
}

// Short returns the first 16 hex characters of the SHA-256 of s.
func Short(s string) string {
	return digest.FromString(s).Encoded()[:16]
}
