package psarc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Extract reads and decompresses the full content of one entry.
//
// The entry's block range is walked in order. A block whose recorded length
// is zero or equal to the archive block size is stored raw and copied
// verbatim; any other block is zlib-compressed and occupies exactly that
// many bytes in the archive. The concatenated output must match the entry's
// declared uncompressed size exactly or ErrCorruptEntry is returned.
//
// Extract performs no caching; see ReadFile for cached access.
func (a *Archive) Extract(e *Entry) ([]byte, error) {
	out, err := a.extract(e)
	if err != nil {
		return nil, &EntryError{Digest: e.Digest, Offset: e.Offset, Err: err}
	}
	return out, nil
}

func (a *Archive) extract(e *Entry) ([]byte, error) {
	out := make([]byte, 0, e.UncompressedSize)
	offset := e.Offset

	blocks := e.BlockCount(a.blockSize)
	for i := 0; i < blocks; i++ {
		blockIndex := int(e.FirstBlock) + i
		if blockIndex >= len(a.blockLengths) {
			return nil, fmt.Errorf("%w: block index %d out of range", ErrTruncatedArchive, blockIndex)
		}

		remaining := e.UncompressedSize - uint64(len(out))
		want := uint64(a.blockSize)
		if remaining < want {
			want = remaining
		}

		recorded := uint32(a.blockLengths[blockIndex])
		switch {
		case recorded == 0:
			// Stored raw at the configured block size; the final block
			// carries only the uncompressed remainder.
			raw, err := a.readAt(offset, int64(want)) //nolint:gosec // want <= blockSize
			if err != nil {
				return nil, err
			}
			out = append(out, raw...)
			offset += int64(want) //nolint:gosec // want <= blockSize
		case recorded == a.blockSize:
			// A compressed length equal to the block size marks an
			// incompressible block stored verbatim.
			raw, err := a.readAt(offset, int64(recorded))
			if err != nil {
				return nil, err
			}
			out = append(out, raw...)
			offset += int64(recorded)
		default:
			compressed, err := a.readAt(offset, int64(recorded))
			if err != nil {
				return nil, err
			}
			zr, err := zlib.NewReader(bytes.NewReader(compressed))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
			}
			// Cap inflation one byte past the expected size so a corrupt
			// stream fails before allocating its full expansion.
			chunk, err := io.ReadAll(io.LimitReader(zr, int64(want)+1)) //nolint:gosec // want <= blockSize
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
			}
			if uint64(len(chunk)) > want {
				return nil, fmt.Errorf("%w: block %d inflates past %d bytes", ErrCorruptEntry, blockIndex, want)
			}
			out = append(out, chunk...)
			offset += int64(recorded)
		}
	}

	if uint64(len(out)) != e.UncompressedSize {
		return nil, fmt.Errorf("%w: decompressed %d bytes, declared %d", ErrCorruptEntry, len(out), e.UncompressedSize)
	}
	return out, nil
}

// readAt reads exactly length bytes from the byte source.
func (a *Archive) readAt(offset, length int64) ([]byte, error) {
	if offset+length > a.src.Size() {
		return nil, fmt.Errorf("%w: read of %d bytes at %d past end %d", ErrTruncatedArchive, length, offset, a.src.Size())
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(a.src, offset, length), buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedArchive, err)
	}
	return buf, nil
}

// ReadFile extracts the entry at the given logical path. ResolveManifest
// must have run first. When the entry cache is enabled, content is
// decompressed once and concurrent reads of the same entry are deduplicated.
func (a *Archive) ReadFile(path string) ([]byte, error) {
	e, ok := a.EntryByPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return a.readEntry(e)
}

// ReadFileByDigest extracts an entry by raw name digest, which works for
// orphan entries that no manifest path resolves to.
func (a *Archive) ReadFileByDigest(d NameDigest) ([]byte, error) {
	e, ok := a.EntryByDigest(d)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d)
	}
	return a.readEntry(e)
}

func (a *Archive) readEntry(e *Entry) ([]byte, error) {
	if !a.cacheEnabled {
		return a.Extract(e)
	}

	a.cacheMu.Lock()
	cached, ok := a.cache[e.Digest]
	a.cacheMu.Unlock()
	if ok {
		a.log().Debug("entry cache hit", "digest", e.Digest.String())
		return cached, nil
	}

	content, err, _ := a.readGroup.Do(string(e.Digest[:]), func() (any, error) {
		a.cacheMu.Lock()
		cached, ok := a.cache[e.Digest]
		a.cacheMu.Unlock()
		if ok {
			return cached, nil
		}

		out, err := a.Extract(e)
		if err != nil {
			return nil, err
		}
		a.cacheMu.Lock()
		a.cache[e.Digest] = out
		a.cacheMu.Unlock()
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return content.([]byte), nil //nolint:errcheck // type assertion always succeeds when err is nil
}
