package psarc

import (
	"crypto/md5" //nolint:gosec // the format addresses entries by MD5 of their path
	"encoding/hex"
	"strings"
)

// DigestSize is the byte length of an entry name digest.
const DigestSize = 16

// NameDigest is the content-addressed name of an archive entry: the MD5 of
// its normalized path.
type NameDigest [DigestSize]byte

// String returns the lowercase hex form of the digest.
func (d NameDigest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest parses a 32-character hex string into a NameDigest.
func ParseDigest(s string) (NameDigest, error) {
	var d NameDigest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(raw) != DigestSize {
		return d, ErrNotFound
	}
	copy(d[:], raw)
	return d, nil
}

// HashPath computes the digest the archive format assigns to a path.
// Paths are hashed lower-cased with forward slashes.
func HashPath(path string) NameDigest {
	return md5.Sum([]byte(NormalizePath(path))) //nolint:gosec // format-mandated
}

// NormalizePath lower-cases a path and converts backslashes to forward
// slashes, matching the form the format hashes.
func NormalizePath(path string) string {
	return strings.ToLower(strings.ReplaceAll(path, `\`, "/"))
}

// Entry describes one file in the archive. Entries are immutable once
// parsed and are owned by their Archive.
type Entry struct {
	// Digest is the MD5 of the entry's normalized path. The digest of the
	// manifest entry (index 0) is all zeroes.
	Digest NameDigest

	// Path is the logical path recovered from the manifest, or "" for the
	// manifest itself and for orphan entries.
	Path string

	// UncompressedSize is the exact byte length of the entry's content.
	UncompressedSize uint64

	// FirstBlock is the index of the entry's first block in the archive's
	// shared block length table.
	FirstBlock uint32

	// Offset is the byte offset in the archive where the entry's first
	// block starts.
	Offset int64
}

// BlockCount returns how many blocks the entry spans for the given block
// size.
func (e *Entry) BlockCount(blockSize uint32) int {
	if e.UncompressedSize == 0 {
		return 0
	}
	return int((e.UncompressedSize + uint64(blockSize) - 1) / uint64(blockSize))
}
