package sng

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for arrangement decoding.
var (
	// ErrBadArrangement is returned when the magic tag or version is not
	// recognized.
	ErrBadArrangement = errors.New("sng: not an arrangement file")

	// ErrTruncated is returned when a declared count runs past the end of
	// the data.
	ErrTruncated = errors.New("sng: truncated arrangement data")

	// ErrUnorderedBeats is returned when beat times are not strictly
	// increasing.
	ErrUnorderedBeats = errors.New("sng: beat times not strictly increasing")

	// ErrInvalidNoteLink is returned when a legato link points backward, at
	// itself, to a different string, or inside the note's own sustain.
	ErrInvalidNoteLink = errors.New("sng: invalid note link")
)

const (
	magicTag      = "SNGF"
	formatVersion = 1
)

// Decode parses the decompressed bytes of one arrangement entry.
//
// Decoding reads counts then fixed-size records in a single forward pass.
// Ordering and reference invariants are enforced during the decode; the
// returned Arrangement is fully validated and read-only.
func Decode(data []byte) (*Arrangement, error) {
	r := &reader{data: data}

	magic, err := r.bytes(4)
	if err != nil {
		return nil, err
	}
	if string(magic) != magicTag {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadArrangement, magic)
	}
	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadArrangement, version)
	}

	arr := &Arrangement{}
	if arr.StringCount, err = r.u8(); err != nil {
		return nil, err
	}
	if arr.StringCount == 0 {
		return nil, fmt.Errorf("%w: zero string count", ErrBadArrangement)
	}

	if arr.Beats, err = decodeBeats(r); err != nil {
		return nil, err
	}
	if arr.Phrases, err = decodeMarkers(r, "phrase", func(t float32, name string) Phrase {
		return Phrase{StartTime: t, Name: name}
	}); err != nil {
		return nil, err
	}
	if arr.Sections, err = decodeMarkers(r, "section", func(t float32, name string) Section {
		return Section{StartTime: t, Name: name}
	}); err != nil {
		return nil, err
	}

	levelCount, err := r.u8()
	if err != nil {
		return nil, err
	}
	arr.Levels = make([]Level, levelCount)
	for i := range arr.Levels {
		if arr.Levels[i], err = decodeLevel(r, arr.StringCount); err != nil {
			return nil, err
		}
	}

	if r.off != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadArrangement, len(r.data)-r.off)
	}
	return arr, nil
}

func decodeBeats(r *reader) ([]Beat, error) {
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	beats := make([]Beat, 0, count)
	prev := float32(math.Inf(-1))
	for i := uint32(0); i < count; i++ {
		var b Beat
		if b.Time, err = r.f32(); err != nil {
			return nil, err
		}
		if b.Measure, err = r.u16(); err != nil {
			return nil, err
		}
		down, err := r.u8()
		if err != nil {
			return nil, err
		}
		b.Downbeat = down != 0

		if b.Time <= prev {
			return nil, fmt.Errorf("%w: beat %d at %g after %g", ErrUnorderedBeats, i, b.Time, prev)
		}
		prev = b.Time
		beats = append(beats, b)
	}
	return beats, nil
}

// decodeMarkers reads a counted list of (start time, name) records, shared
// by phrases and sections.
func decodeMarkers[T any](r *reader, kind string, make_ func(float32, string) T) ([]T, error) {
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, count)
	prev := float32(math.Inf(-1))
	for i := uint32(0); i < count; i++ {
		t, err := r.f32()
		if err != nil {
			return nil, err
		}
		nameLen, err := r.u8()
		if err != nil {
			return nil, err
		}
		name, err := r.bytes(int(nameLen))
		if err != nil {
			return nil, err
		}

		if t < prev {
			return nil, fmt.Errorf("sng: %s %d at %g starts before %g", kind, i, t, prev)
		}
		prev = t
		out = append(out, make_(t, string(name)))
	}
	return out, nil
}

func decodeLevel(r *reader, stringCount uint8) (Level, error) {
	var level Level
	var err error
	if level.Index, err = r.u8(); err != nil {
		return level, err
	}
	count, err := r.u32()
	if err != nil {
		return level, err
	}

	level.Notes = make([]Note, 0, count)
	prev := float32(math.Inf(-1))
	for i := uint32(0); i < count; i++ {
		var n Note
		if n.StartTime, err = r.f32(); err != nil {
			return level, err
		}
		if n.Sustain, err = r.f32(); err != nil {
			return level, err
		}
		if n.String, err = r.u8(); err != nil {
			return level, err
		}
		if n.Fret, err = r.u8(); err != nil {
			return level, err
		}
		tech, err := r.u32()
		if err != nil {
			return level, err
		}
		n.Techniques = Technique(tech)
		link, err := r.u32()
		if err != nil {
			return level, err
		}
		n.LinkNext = int32(link) //nolint:gosec // -1 sentinel round-trips through u32

		if n.Sustain < 0 {
			return level, fmt.Errorf("sng: level %d note %d has negative sustain %g", level.Index, i, n.Sustain)
		}
		if n.String >= stringCount {
			return level, fmt.Errorf("sng: level %d note %d on string %d of %d", level.Index, i, n.String, stringCount)
		}
		if n.StartTime < prev {
			return level, fmt.Errorf("sng: level %d note %d at %g before %g", level.Index, i, n.StartTime, prev)
		}
		prev = n.StartTime
		level.Notes = append(level.Notes, n)
	}

	// Link targets can point ahead of the reading position, so chains are
	// checked once the whole level is decoded.
	for i := range level.Notes {
		n := &level.Notes[i]
		if n.LinkNext == NoLink {
			continue
		}
		if n.LinkNext <= int32(i) || int(n.LinkNext) >= len(level.Notes) {
			return level, fmt.Errorf("%w: level %d note %d links to %d", ErrInvalidNoteLink, level.Index, i, n.LinkNext)
		}
		next := &level.Notes[n.LinkNext]
		if next.String != n.String {
			return level, fmt.Errorf("%w: level %d note %d links across strings %d->%d", ErrInvalidNoteLink, level.Index, i, n.String, next.String)
		}
		if next.StartTime < n.EndTime() {
			return level, fmt.Errorf("%w: level %d note %d links inside its sustain", ErrInvalidNoteLink, level.Index, i)
		}
	}

	return level, nil
}

// reader is a bounds-checked little-endian cursor over the input.
type reader struct {
	data []byte
	off  int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrTruncated, n, r.off, len(r.data))
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) f32() (float32, error) {
	v, err := r.u32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}
