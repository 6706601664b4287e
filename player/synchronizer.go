package player

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/tversteeg/rockysmithereens/sng"
)

// ErrNoSuchDifficulty is returned when a requested difficulty tier exceeds
// the arrangement's level count. This is a caller contract violation and is
// never clamped.
var ErrNoSuchDifficulty = errors.New("player: no such difficulty")

// State is the transport state of a Synchronizer.
type State uint8

// Transport states.
const (
	Stopped State = iota
	Playing
	Paused
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Frame is the committed result of one Advance call: the events newly
// crossed since the previous call and the current song time. Slices in a
// Frame are freshly allocated and safe to hand to a rendering consumer.
type Frame struct {
	// Time is the song clock after the advance.
	Time float32

	// Beats crossed since the previous advance.
	Beats []sng.Beat

	// Started holds notes that became active during this advance.
	Started []sng.Note

	// Ended holds notes whose sustain elapsed during this advance, and,
	// after a rebuild, notes that are no longer active at the new time.
	Ended []sng.Note

	// Phrase is the phrase entered during this advance, if any.
	Phrase *sng.Phrase

	// Section is the section entered during this advance, if any.
	Section *sng.Section

	// Rebuilt reports that the cursor was rebuilt by scan instead of
	// advanced incrementally, because the audio clock regressed.
	Rebuilt bool
}

// Synchronizer drives a song clock from audio playback positions and
// advances a cursor through one arrangement's event timeline.
//
// The common path is forward-only linear advance, O(events crossed) per
// tick. Seeks and clock regressions rebuild every cursor by binary search
// over the ordered collections; the two paths are deliberately separate.
type Synchronizer struct {
	arr *sng.Arrangement

	state      State
	time       float32
	difficulty uint8

	nextBeat    int
	nextPhrase  int
	nextSection int
	nextNote    int

	// nextPerString tracks, per string, the index of the next note at or
	// after the clock, for legato chain and upcoming-note queries.
	nextPerString []int

	// active holds indices into the current level's notes, ordered by
	// activation.
	active []int

	logger *slog.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger used for clock regression diagnostics.
// The default discards all output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// New creates a Synchronizer over a decoded arrangement. The arrangement is
// shared and read-only; the Synchronizer never mutates it.
func New(arr *sng.Arrangement, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		arr:           arr,
		state:         Stopped,
		nextPerString: make([]int, arr.StringCount),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.logger
}

// Start resets the cursor to time zero, selects the difficulty tier, and
// transitions to Playing.
func (s *Synchronizer) Start(difficulty uint8) error {
	if int(difficulty) >= len(s.arr.Levels) {
		return fmt.Errorf("%w: %d of %d levels", ErrNoSuchDifficulty, difficulty, len(s.arr.Levels))
	}
	s.difficulty = difficulty
	s.time = 0
	s.state = Playing
	s.reset()
	return nil
}

// Stop discards playback progress and transitions to Stopped.
func (s *Synchronizer) Stop() {
	s.state = Stopped
	s.time = 0
	s.reset()
}

// Pause transitions Playing to Paused. The cursor is untouched.
func (s *Synchronizer) Pause() {
	if s.state == Playing {
		s.state = Paused
	}
}

// Resume transitions Paused to Playing. The cursor is untouched.
func (s *Synchronizer) Resume() {
	if s.state == Paused {
		s.state = Playing
	}
}

// State returns the current transport state.
func (s *Synchronizer) State() State {
	return s.state
}

// Time returns the current song clock.
func (s *Synchronizer) Time() float32 {
	return s.time
}

// Difficulty returns the active difficulty tier.
func (s *Synchronizer) Difficulty() uint8 {
	return s.difficulty
}

// Progress returns the song clock and the arrangement end time.
func (s *Synchronizer) Progress() (current, end float32) {
	return s.time, s.arr.EndTime()
}

// Advance moves the song clock to the position reported by the audio layer
// and returns the events crossed since the previous call.
//
// The clock only moves forward here; repeated calls with the same position
// return empty frames. A position earlier than the current clock without an
// explicit Seek is a clock regression: it is absorbed as an implicit seek,
// with the cursor rebuilt by scan, and the returned frame reports notes
// that are no longer active at the new position.
func (s *Synchronizer) Advance(audioTime float32) Frame {
	frame := Frame{Time: audioTime}
	if s.state != Playing {
		frame.Time = s.time
		return frame
	}

	if audioTime < s.time {
		// Some audio backends report stale positions around their own
		// seeks. Correctness over speed on this rare path.
		s.log().Debug("clock regression", "from", s.time, "to", audioTime)
		before := s.activeSnapshot()
		s.time = audioTime
		s.rebuild()
		after := s.activeSnapshot()
		frame.Rebuilt = true
		frame.Started = notesNotIn(after, before)
		frame.Ended = notesNotIn(before, after)
		return frame
	}

	s.time = audioTime

	for s.nextBeat < len(s.arr.Beats) && s.arr.Beats[s.nextBeat].Time <= audioTime {
		frame.Beats = append(frame.Beats, s.arr.Beats[s.nextBeat])
		s.nextBeat++
	}
	for s.nextPhrase < len(s.arr.Phrases) && s.arr.Phrases[s.nextPhrase].StartTime <= audioTime {
		frame.Phrase = &s.arr.Phrases[s.nextPhrase]
		s.nextPhrase++
	}
	for s.nextSection < len(s.arr.Sections) && s.arr.Sections[s.nextSection].StartTime <= audioTime {
		frame.Section = &s.arr.Sections[s.nextSection]
		s.nextSection++
	}

	notes := s.notes()

	// Expire before activating so a note ending exactly where another
	// starts hands over cleanly.
	remaining := s.active[:0]
	for _, i := range s.active {
		if notes[i].EndTime() < audioTime {
			frame.Ended = append(frame.Ended, notes[i])
		} else {
			remaining = append(remaining, i)
		}
	}
	s.active = remaining

	for s.nextNote < len(notes) && notes[s.nextNote].StartTime <= audioTime {
		n := notes[s.nextNote]
		frame.Started = append(frame.Started, n)
		// A note whose whole sustain fits inside this advance ends in the
		// same frame and never enters the active set.
		if n.EndTime() < audioTime {
			frame.Ended = append(frame.Ended, n)
		} else {
			s.active = append(s.active, s.nextNote)
		}
		s.nextNote++
	}

	for str := range s.nextPerString {
		for s.nextPerString[str] < len(notes) &&
			(notes[s.nextPerString[str]].String != uint8(str) || notes[s.nextPerString[str]].StartTime <= audioTime) {
			s.nextPerString[str]++
		}
	}

	return frame
}

// Seek moves the song clock to an arbitrary position and rebuilds every
// cursor by binary search. The Playing or Paused state is preserved.
func (s *Synchronizer) Seek(target float32) {
	s.time = target
	s.rebuild()
}

// SetDifficulty swaps the active difficulty tier, rebuilding only the note
// cursor. Beats, phrases, and sections are difficulty-independent and keep
// their positions. Allowed in any state; takes effect at the next Advance.
func (s *Synchronizer) SetDifficulty(level uint8) error {
	if int(level) >= len(s.arr.Levels) {
		return fmt.Errorf("%w: %d of %d levels", ErrNoSuchDifficulty, level, len(s.arr.Levels))
	}
	s.difficulty = level
	s.rebuildNotes()
	return nil
}

// CurrentPhrase returns the phrase the clock is inside, or false before the
// first phrase starts.
func (s *Synchronizer) CurrentPhrase() (sng.Phrase, bool) {
	if s.nextPhrase == 0 {
		return sng.Phrase{}, false
	}
	return s.arr.Phrases[s.nextPhrase-1], true
}

// CurrentSection returns the section the clock is inside, or false before
// the first section starts.
func (s *Synchronizer) CurrentSection() (sng.Section, bool) {
	if s.nextSection == 0 {
		return sng.Section{}, false
	}
	return s.arr.Sections[s.nextSection-1], true
}

// ActiveNotes returns a copy of the notes currently sounding, for a
// concurrent rendering consumer.
func (s *Synchronizer) ActiveNotes() []sng.Note {
	return s.activeSnapshot()
}

// NextNoteOnString returns the next upcoming note on the given string, for
// a renderer's lookahead display.
func (s *Synchronizer) NextNoteOnString(str uint8) (sng.Note, bool) {
	if int(str) >= len(s.nextPerString) {
		return sng.Note{}, false
	}
	notes := s.notes()
	i := s.nextPerString[str]
	if i >= len(notes) {
		return sng.Note{}, false
	}
	return notes[i], true
}

// notes returns the active difficulty tier's note list.
func (s *Synchronizer) notes() []sng.Note {
	if int(s.difficulty) >= len(s.arr.Levels) {
		return nil
	}
	return s.arr.Levels[s.difficulty].Notes
}

// reset points every cursor at the start of its collection.
func (s *Synchronizer) reset() {
	s.nextBeat = 0
	s.nextPhrase = 0
	s.nextSection = 0
	s.nextNote = 0
	s.active = s.active[:0]
	notes := s.notes()
	for str := range s.nextPerString {
		s.nextPerString[str] = firstOnString(notes, 0, uint8(str))
	}
}

// rebuild repositions every cursor for the current time. Events exactly at
// the clock are treated as not yet crossed, so a rebuilt cursor behaves
// like a fresh Start advanced to just before the clock.
func (s *Synchronizer) rebuild() {
	t := s.time
	s.nextBeat = sort.Search(len(s.arr.Beats), func(i int) bool {
		return s.arr.Beats[i].Time >= t
	})
	s.nextPhrase = sort.Search(len(s.arr.Phrases), func(i int) bool {
		return s.arr.Phrases[i].StartTime >= t
	})
	s.nextSection = sort.Search(len(s.arr.Sections), func(i int) bool {
		return s.arr.Sections[i].StartTime >= t
	})
	s.rebuildNotes()
}

// rebuildNotes repositions the note cursor and active set for the current
// time and difficulty.
func (s *Synchronizer) rebuildNotes() {
	notes := s.notes()
	t := s.time
	s.nextNote = sort.Search(len(notes), func(i int) bool {
		return notes[i].StartTime >= t
	})

	// Active notes started before the clock but still sustain across it.
	// Sustains vary per note, so this part is a bounded scan.
	s.active = s.active[:0]
	for i := 0; i < s.nextNote; i++ {
		if notes[i].EndTime() >= t {
			s.active = append(s.active, i)
		}
	}

	for str := range s.nextPerString {
		s.nextPerString[str] = firstOnString(notes, s.nextNote, uint8(str))
	}
}

// activeSnapshot copies the active set as note values.
func (s *Synchronizer) activeSnapshot() []sng.Note {
	notes := s.notes()
	out := make([]sng.Note, 0, len(s.active))
	for _, i := range s.active {
		out = append(out, notes[i])
	}
	return out
}

// firstOnString returns the index of the first note at or after from that
// is played on the given string.
func firstOnString(notes []sng.Note, from int, str uint8) int {
	for i := from; i < len(notes); i++ {
		if notes[i].String == str {
			return i
		}
	}
	return len(notes)
}

// notesNotIn returns the notes in a that are absent from b, comparing by
// start time and string.
func notesNotIn(a, b []sng.Note) []sng.Note {
	var out []sng.Note
	for _, n := range a {
		found := false
		for _, m := range b {
			if n.StartTime == m.StartTime && n.String == m.String && n.Fret == m.Fret {
				found = true
				break
			}
		}
		if !found {
			out = append(out, n)
		}
	}
	return out
}
