// Package rocksmith interprets the song metadata bundled in a psarc
// archive: the JSON manifests that name each arrangement, its difficulty
// tiers, tuning, and the archive paths of its arrangement and audio
// entries.
package rocksmith

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tversteeg/rockysmithereens/psarc"
)

// Sentinel errors for manifest decoding.
var (
	// ErrNoSongs is returned when an archive contains no song manifests.
	ErrNoSongs = errors.New("rocksmith: no song manifests in archive")

	// ErrBadURN is returned when an asset reference cannot be resolved to
	// an archive path.
	ErrBadURN = errors.New("rocksmith: unresolvable asset reference")
)

// manifestSuffix locates song metadata files among resolved paths.
const manifestSuffix = ".json"

// Tuning is the per-string tuning offset from standard, in semitones.
type Tuning struct {
	String0 int8 `json:"string0"`
	String1 int8 `json:"string1"`
	String2 int8 `json:"string2"`
	String3 int8 `json:"string3"`
	String4 int8 `json:"string4"`
	String5 int8 `json:"string5"`
}

// ArrangementRef describes one playable arrangement of a song.
type ArrangementRef struct {
	// Instrument is the arrangement name, e.g. "Lead", "Rhythm", "Bass".
	Instrument string

	// DifficultyTiers is the number of authored difficulty levels.
	DifficultyTiers uint8

	// ArrangementPath is the archive path of the binary arrangement entry.
	ArrangementPath string

	// AudioPath is the archive path of the paired audio entry.
	AudioPath string

	// Tuning of the instrument for this arrangement.
	Tuning Tuning
}

// SongManifest is the per-song metadata recovered from an archive. One
// archive may contain several songs, each with several arrangements.
type SongManifest struct {
	Title        string
	Artist       string
	Album        string
	Year         uint16
	SongLength   float32
	Arrangements []ArrangementRef
}

// Attributes mirrors the manifest JSON attribute block, limited to the
// fields this player consumes.
type Attributes struct {
	ArrangementName     string  `json:"ArrangementName"`
	SongName            string  `json:"SongName"`
	SongNameSort        string  `json:"SongNameSort"`
	ArtistName          string  `json:"ArtistName"`
	ArtistNameSort      string  `json:"ArtistNameSort"`
	AlbumName           string  `json:"AlbumName"`
	AlbumNameSort       string  `json:"AlbumNameSort"`
	SongYear            uint16  `json:"SongYear"`
	SongLength          float32 `json:"SongLength"`
	MaxPhraseDifficulty uint8   `json:"MaxPhraseDifficulty"`
	SongAsset           string  `json:"SongAsset"`
	SongBank            string  `json:"SongBank"`
	Tuning              Tuning  `json:"Tuning"`
}

type manifestFile struct {
	Entries map[string]struct {
		Attributes Attributes `json:"Attributes"`
	} `json:"Entries"`
}

// title returns the song name, falling back to the sort name the way the
// game's own metadata does.
func (a *Attributes) title() string {
	if a.SongName != "" {
		return a.SongName
	}
	return a.SongNameSort
}

func (a *Attributes) artist() string {
	if a.ArtistName != "" {
		return a.ArtistName
	}
	return a.ArtistNameSort
}

func (a *Attributes) album() string {
	if a.AlbumName != "" {
		return a.AlbumName
	}
	return a.AlbumNameSort
}

// LoadSongs locates every song manifest in a resolved archive and decodes
// the song list. Vocal arrangements carry no playable note data and are
// skipped. Manifests that fail to decode fail the whole load; callers that
// want to skip one song can decode per path with ParseManifest.
func LoadSongs(archive *psarc.Archive) ([]SongManifest, error) {
	paths := archive.PathsByExtension(manifestSuffix)
	if len(paths) == 0 {
		return nil, ErrNoSongs
	}

	// Group arrangements by song identity; one JSON manifest describes one
	// arrangement.
	songs := make(map[string]*SongManifest)
	var order []string
	for _, path := range paths {
		attrs, err := ParseManifest(archive, path)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		if attrs == nil || strings.EqualFold(attrs.ArrangementName, "Vocals") {
			continue
		}

		key := attrs.artist() + "\x00" + attrs.title()
		song, ok := songs[key]
		if !ok {
			song = &SongManifest{
				Title:      attrs.title(),
				Artist:     attrs.artist(),
				Album:      attrs.album(),
				Year:       attrs.SongYear,
				SongLength: attrs.SongLength,
			}
			songs[key] = song
			order = append(order, key)
		}

		ref, err := arrangementRef(archive, attrs)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		song.Arrangements = append(song.Arrangements, ref)
	}

	if len(order) == 0 {
		return nil, ErrNoSongs
	}
	out := make([]SongManifest, 0, len(order))
	for _, key := range order {
		song := songs[key]
		sort.SliceStable(song.Arrangements, func(i, j int) bool {
			return song.Arrangements[i].Instrument < song.Arrangements[j].Instrument
		})
		out = append(out, *song)
	}
	return out, nil
}

// ParseManifest decodes a single manifest entry into its attribute block.
// One manifest file describes one arrangement; a file carrying several
// attribute entries is rejected rather than picking one arbitrarily. It
// returns nil for manifests with no entries.
func ParseManifest(archive *psarc.Archive, path string) (*Attributes, error) {
	raw, err := archive.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var mf manifestFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, err
	}
	if len(mf.Entries) > 1 {
		return nil, fmt.Errorf("rocksmith: manifest %s carries %d attribute entries, want one", path, len(mf.Entries))
	}
	for _, entry := range mf.Entries {
		attrs := entry.Attributes
		return &attrs, nil
	}
	return nil, nil
}

// arrangementRef resolves the asset references of one arrangement to
// archive paths.
func arrangementRef(archive *psarc.Archive, attrs *Attributes) (ArrangementRef, error) {
	ref := ArrangementRef{
		Instrument:      attrs.ArrangementName,
		DifficultyTiers: attrs.MaxPhraseDifficulty + 1,
		Tuning:          attrs.Tuning,
	}

	var err error
	if ref.ArrangementPath, err = ResolveURN(archive, attrs.SongAsset, ".sng"); err != nil {
		return ref, err
	}
	if ref.AudioPath, err = ResolveURN(archive, attrs.SongBank, ".wem"); err != nil {
		return ref, err
	}
	return ref, nil
}

// ResolveURN maps a "urn:kind:subkind:name" asset reference to the archive
// path whose base name matches name with the given extension. References
// that are already plain paths resolve through the archive directly.
func ResolveURN(archive *psarc.Archive, urn, ext string) (string, error) {
	if urn == "" {
		return "", fmt.Errorf("%w: empty reference", ErrBadURN)
	}
	if _, ok := archive.EntryByPath(urn); ok {
		return urn, nil
	}

	name := urn
	if i := strings.LastIndexByte(urn, ':'); i >= 0 {
		name = urn[i+1:]
	}
	name = strings.TrimSuffix(psarc.NormalizePath(name), ext)

	candidates := archive.PathsByExtension(ext)
	want := "/" + name + ext
	for _, path := range candidates {
		normalized := psarc.NormalizePath(path)
		if strings.HasSuffix(normalized, want) || normalized == name+ext {
			return path, nil
		}
	}
	// Audio entries are often stored under opaque numeric names; when the
	// archive carries a single candidate it is the pairing.
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrBadURN, urn, ext)
}
