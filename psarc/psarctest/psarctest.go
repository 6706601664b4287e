// Package psarctest builds synthetic psarc archives in memory for tests.
package psarctest

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/tversteeg/rockysmithereens/psarc"
)

// File describes one entry of a synthetic archive.
type File struct {
	Path string
	Data []byte

	// Orphan entries appear in the TOC but not in the manifest.
	Orphan bool

	// StoredFull lists entry-relative block indices written raw with a
	// recorded length equal to the block size.
	StoredFull []int
}

type config struct {
	manifestLines []string
}

// Option configures BuildArchive.
type Option func(*config)

// WithManifestLines overrides the generated manifest content.
func WithManifestLines(lines ...string) Option {
	return func(cfg *config) {
		cfg.manifestLines = lines
	}
}

// BuildArchive assembles a valid psarc byte image. Blocks are
// zlib-compressed with the same module the decoder uses unless forced raw
// through StoredFull.
func BuildArchive(tb testing.TB, blockSize uint32, files []File, opts ...Option) []byte {
	tb.Helper()

	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.manifestLines == nil {
		for _, f := range files {
			if !f.Orphan {
				cfg.manifestLines = append(cfg.manifestLines, f.Path)
			}
		}
	}

	type rawEntry struct {
		digest psarc.NameDigest
		size   uint64
		blocks []uint16
		disk   []byte
	}

	encode := func(data []byte, storedFull []int) ([]uint16, []byte) {
		stored := make(map[int]bool, len(storedFull))
		for _, i := range storedFull {
			stored[i] = true
		}
		var blocks []uint16
		var disk []byte
		for off, j := 0, 0; off < len(data); j++ {
			end := off + int(blockSize)
			if end > len(data) {
				end = len(data)
			}
			chunk := data[off:end]
			if stored[j] {
				require.Len(tb, chunk, int(blockSize), "stored-full blocks must span a whole block")
				blocks = append(blocks, uint16(blockSize))
				disk = append(disk, chunk...)
			} else {
				var buf bytes.Buffer
				zw := zlib.NewWriter(&buf)
				_, err := zw.Write(chunk)
				require.NoError(tb, err)
				require.NoError(tb, zw.Close())
				require.NotEqual(tb, int(blockSize), buf.Len(), "compressed length may not collide with the stored escape")
				blocks = append(blocks, uint16(buf.Len()))
				disk = append(disk, buf.Bytes()...)
			}
			off = end
		}
		return blocks, disk
	}

	entries := make([]rawEntry, 0, len(files)+1)
	manifest := []byte(strings.Join(cfg.manifestLines, "\n"))
	blocks, disk := encode(manifest, nil)
	entries = append(entries, rawEntry{size: uint64(len(manifest)), blocks: blocks, disk: disk})
	for _, f := range files {
		blocks, disk := encode(f.Data, f.StoredFull)
		entries = append(entries, rawEntry{
			digest: psarc.HashPath(f.Path),
			size:   uint64(len(f.Data)),
			blocks: blocks,
			disk:   disk,
		})
	}

	totalBlocks := 0
	for _, e := range entries {
		totalBlocks += len(e.blocks)
	}
	// 32-byte header, 30-byte TOC records, u16 block lengths.
	tocSize := 32 + 30*len(entries) + 2*totalBlocks

	var out bytes.Buffer
	out.WriteString("PSAR")
	binary.Write(&out, binary.BigEndian, uint16(1))
	binary.Write(&out, binary.BigEndian, uint16(4))
	out.WriteString("zlib")
	binary.Write(&out, binary.BigEndian, uint32(tocSize))
	binary.Write(&out, binary.BigEndian, uint32(30))
	binary.Write(&out, binary.BigEndian, uint32(len(entries)))
	binary.Write(&out, binary.BigEndian, blockSize)
	binary.Write(&out, binary.BigEndian, uint32(0))

	firstBlock := uint32(0)
	offset := uint64(tocSize)
	for _, e := range entries {
		out.Write(e.digest[:])
		binary.Write(&out, binary.BigEndian, firstBlock)
		writeUint40(&out, e.size)
		writeUint40(&out, offset)
		firstBlock += uint32(len(e.blocks))
		offset += uint64(len(e.disk))
	}
	for _, e := range entries {
		for _, b := range e.blocks {
			binary.Write(&out, binary.BigEndian, b)
		}
	}
	for _, e := range entries {
		out.Write(e.disk)
	}

	return out.Bytes()
}

func writeUint40(out *bytes.Buffer, v uint64) {
	out.Write([]byte{byte(v >> 32), byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
