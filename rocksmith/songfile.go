package rocksmith

import (
	"fmt"

	"github.com/tversteeg/rockysmithereens/psarc"
	"github.com/tversteeg/rockysmithereens/sng"
)

// SongFile is a fully opened song archive: container parsed, manifest
// resolved, and song metadata decoded. Arrangement and audio content are
// read on demand.
type SongFile struct {
	Archive *psarc.Archive
	Songs   []SongManifest
}

// Parse opens an archive from src and decodes its song list. The entry
// cache is enabled so the arrangement and audio entries of a song are
// decompressed once even when requested again.
func Parse(src psarc.ByteSource, opts ...psarc.Option) (*SongFile, error) {
	opts = append([]psarc.Option{psarc.WithEntryCache()}, opts...)
	archive, err := psarc.Open(src, opts...)
	if err != nil {
		return nil, err
	}
	if err := archive.ResolveManifest(); err != nil {
		return nil, err
	}
	songs, err := LoadSongs(archive)
	if err != nil {
		return nil, err
	}
	return &SongFile{Archive: archive, Songs: songs}, nil
}

// Arrangement extracts and decodes the binary arrangement entry of ref.
// Decoding is eager: the whole arrangement is materialized before playback
// starts.
func (f *SongFile) Arrangement(ref *ArrangementRef) (*sng.Arrangement, error) {
	raw, err := f.Archive.ReadFile(ref.ArrangementPath)
	if err != nil {
		return nil, err
	}
	arr, err := sng.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("arrangement %s: %w", ref.ArrangementPath, err)
	}
	return arr, nil
}

// Audio extracts the raw bytes of ref's paired audio entry, to be handed to
// an external audio decoder.
func (f *SongFile) Audio(ref *ArrangementRef) ([]byte, error) {
	return f.Archive.ReadFile(ref.AudioPath)
}
