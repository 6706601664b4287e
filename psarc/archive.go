package psarc

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

const (
	headerSize   = 32
	tocEntrySize = 30

	magicTag       = "PSAR"
	compressionTag = "zlib"
)

// Minimum supported container version.
const (
	minVersionMajor = 1
	minVersionMinor = 4
)

// Archive is a parsed psarc container.
//
// The table of contents and block length table are parsed eagerly by Open;
// entry content is read on demand from the byte source. An Archive is safe
// for concurrent reads once ResolveManifest has returned.
type Archive struct {
	src ByteSource

	versionMajor uint16
	versionMinor uint16
	blockSize    uint32
	flags        uint32

	entries      []Entry
	blockLengths []uint16

	byDigest map[NameDigest]int
	byPath   map[string]int
	orphans  []NameDigest

	cacheEnabled bool
	cacheMu      sync.Mutex
	cache        map[NameDigest][]byte
	readGroup    singleflight.Group

	logger *slog.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger used for non-fatal diagnostics such as orphan
// entries. The default discards all output.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithEntryCache keeps extracted entry content in memory so repeated reads
// of the same entry decompress once. Concurrent reads of one entry are
// deduplicated.
func WithEntryCache() Option {
	return func(a *Archive) {
		a.cacheEnabled = true
		a.cache = make(map[NameDigest][]byte)
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.logger
}

// Open parses the container header, table of contents, and block length
// table from src. It does not read any entry content.
func Open(src ByteSource, opts ...Option) (*Archive, error) {
	header := make([]byte, headerSize)
	if _, err := src.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedArchive, err)
	}

	if string(header[0:4]) != magicTag {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformedHeader, header[0:4])
	}
	major := binary.BigEndian.Uint16(header[4:6])
	minor := binary.BigEndian.Uint16(header[6:8])
	if major < minVersionMajor || (major == minVersionMajor && minor < minVersionMinor) {
		return nil, fmt.Errorf("%w: unsupported version %d.%d", ErrMalformedHeader, major, minor)
	}
	if tag := strings.TrimRight(string(header[8:12]), "\x00"); tag != compressionTag {
		return nil, fmt.Errorf("%w: unknown compression method %q", ErrMalformedHeader, tag)
	}

	tocSize := binary.BigEndian.Uint32(header[12:16])
	entrySize := binary.BigEndian.Uint32(header[16:20])
	entryCount := binary.BigEndian.Uint32(header[20:24])
	blockSize := binary.BigEndian.Uint32(header[24:28])
	flags := binary.BigEndian.Uint32(header[28:32])

	if entrySize != tocEntrySize {
		return nil, fmt.Errorf("%w: unexpected TOC entry size %d", ErrMalformedHeader, entrySize)
	}
	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("%w: block size %d is not a power of two", ErrMalformedHeader, blockSize)
	}
	if int64(tocSize) > src.Size() {
		return nil, fmt.Errorf("%w: TOC length %d exceeds source size %d", ErrTruncatedArchive, tocSize, src.Size())
	}
	tocBytes := uint64(entryCount) * tocEntrySize
	if headerSize+tocBytes > uint64(tocSize) {
		return nil, fmt.Errorf("%w: %d entries do not fit in TOC of %d bytes", ErrTruncatedArchive, entryCount, tocSize)
	}

	toc := make([]byte, tocSize-headerSize)
	if _, err := src.ReadAt(toc, headerSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedArchive, err)
	}

	a := &Archive{
		src:          src,
		versionMajor: major,
		versionMinor: minor,
		blockSize:    blockSize,
		flags:        flags,
		entries:      make([]Entry, entryCount),
		byDigest:     make(map[NameDigest]int, entryCount),
	}
	for _, opt := range opts {
		opt(a)
	}

	for i := range a.entries {
		rec := toc[i*tocEntrySize : (i+1)*tocEntrySize]
		e := &a.entries[i]
		copy(e.Digest[:], rec[0:16])
		e.FirstBlock = binary.BigEndian.Uint32(rec[16:20])
		e.UncompressedSize = beUint40(rec[20:25])
		e.Offset = int64(beUint40(rec[25:30])) //nolint:gosec // 40-bit value fits int64

		if e.Offset > src.Size() {
			return nil, &EntryError{Digest: e.Digest, Offset: e.Offset, Err: ErrTruncatedArchive}
		}
		if prev, ok := a.byDigest[e.Digest]; ok {
			return nil, fmt.Errorf("%w: TOC records %d and %d share digest %s", ErrMalformedHeader, prev, i, e.Digest)
		}
		a.byDigest[e.Digest] = i
	}

	blockTable := toc[entryCount*tocEntrySize:]
	a.blockLengths = make([]uint16, len(blockTable)/2)
	for i := range a.blockLengths {
		a.blockLengths[i] = binary.BigEndian.Uint16(blockTable[i*2 : i*2+2])
	}

	return a, nil
}

// beUint40 reads a big-endian 40-bit unsigned integer.
func beUint40(b []byte) uint64 {
	return uint64(b[0])<<32 | uint64(b[1])<<24 | uint64(b[2])<<16 | uint64(b[3])<<8 | uint64(b[4])
}

// Version returns the container format version.
func (a *Archive) Version() (major, minor uint16) {
	return a.versionMajor, a.versionMinor
}

// BlockSize returns the configured block size.
func (a *Archive) BlockSize() uint32 {
	return a.blockSize
}

// Len returns the number of entries, including the manifest entry.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entries returns the parsed entry descriptors. The returned slice is owned
// by the Archive and must not be modified.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// EntryByDigest returns the entry with the given name digest.
func (a *Archive) EntryByDigest(d NameDigest) (*Entry, bool) {
	i, ok := a.byDigest[d]
	if !ok {
		return nil, false
	}
	return &a.entries[i], true
}

// EntryByPath returns the entry for the given logical path. It reports
// false until ResolveManifest has run or when the path is unknown. Lookup
// is case-insensitive, matching the format's path hashing.
func (a *Archive) EntryByPath(path string) (*Entry, bool) {
	i, ok := a.byPath[NormalizePath(path)]
	if !ok {
		return nil, false
	}
	return &a.entries[i], true
}

// Paths returns all logical paths recovered by ResolveManifest, in manifest
// order.
func (a *Archive) Paths() []string {
	paths := make([]string, 0, len(a.byPath))
	for _, e := range a.entries {
		if e.Path != "" {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// PathsByExtension returns all resolved paths ending in ext (e.g. ".sng").
// Matching is case-insensitive.
func (a *Archive) PathsByExtension(ext string) []string {
	ext = strings.ToLower(ext)
	var paths []string
	for _, e := range a.entries {
		if e.Path != "" && strings.HasSuffix(NormalizePath(e.Path), ext) {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// Orphans returns digests of entries that no manifest path hashed to.
// Orphan entries remain extractable by digest.
func (a *Archive) Orphans() []NameDigest {
	return a.orphans
}
