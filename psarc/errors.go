package psarc

import (
	"errors"
	"fmt"
)

// Sentinel errors for the psarc package.
var (
	// ErrMalformedHeader is returned when the magic tag, version, or declared
	// compression method is not recognized.
	ErrMalformedHeader = errors.New("psarc: malformed header")

	// ErrTruncatedArchive is returned when declared lengths exceed the byte
	// source size.
	ErrTruncatedArchive = errors.New("psarc: truncated archive")

	// ErrCorruptEntry is returned when an entry's decompressed length does
	// not match its declared uncompressed size.
	ErrCorruptEntry = errors.New("psarc: corrupt entry")

	// ErrUnresolvedHash is returned when a digest has no matching manifest
	// path. Orphan entries are retained and remain extractable by digest.
	ErrUnresolvedHash = errors.New("psarc: unresolved hash")

	// ErrNotFound is returned when a path or digest does not exist in the
	// archive.
	ErrNotFound = errors.New("psarc: entry not found")

	// ErrNoManifest is returned when the archive has no entries to resolve
	// the manifest from.
	ErrNoManifest = errors.New("psarc: archive has no manifest entry")
)

// EntryError wraps a failure while reading one entry, carrying the entry's
// digest and the archive byte offset where reading started. Callers can
// abort the whole load or skip the affected entry.
type EntryError struct {
	Digest NameDigest
	Offset int64
	Err    error
}

// Error implements error.
func (e *EntryError) Error() string {
	return fmt.Sprintf("psarc: entry %s at offset %d: %v", e.Digest, e.Offset, e.Err)
}

// Unwrap returns the underlying error.
func (e *EntryError) Unwrap() error {
	return e.Err
}
