package sng

// Technique is a bitset of playing techniques attached to a note.
type Technique uint32

// Technique flags.
const (
	TechBend Technique = 1 << iota
	TechSlide
	TechSlideUnpitched
	TechHammerOn
	TechPullOff
	TechHarmonic
	TechPinchHarmonic
	TechMute
	TechPalmMute
	TechTap
	TechSlap
	TechPluck
	TechVibrato
	TechTremolo
	TechAccent
	TechIgnore
)

// Has reports whether all flags in mask are set.
func (t Technique) Has(mask Technique) bool {
	return t&mask == mask
}

// NoLink marks a note without a legato successor.
const NoLink int32 = -1

// Beat is one metronome tick.
type Beat struct {
	// Time in seconds from song start. Strictly increasing within an
	// arrangement.
	Time float32

	// Measure is the measure number the beat belongs to.
	Measure uint16

	// Downbeat marks the first beat of a measure.
	Downbeat bool
}

// Phrase marks the start of a musical phrase.
type Phrase struct {
	StartTime float32
	Name      string
}

// Section marks the start of a structural region such as "verse" or "solo".
type Section struct {
	StartTime float32
	Name      string
}

// Note is a single played note.
type Note struct {
	// StartTime in seconds from song start.
	StartTime float32

	// Sustain is how long the note is held, >= 0.
	Sustain float32

	// String the note is played on, 0-based.
	String uint8

	// Fret the note is played at, 0 for an open string.
	Fret uint8

	// Techniques applied to the note.
	Techniques Technique

	// LinkNext is the index of the immediately following note on the same
	// string for legato chains, or NoLink.
	LinkNext int32
}

// EndTime returns the time the note stops sounding.
func (n *Note) EndTime() float32 {
	return n.StartTime + n.Sustain
}

// Level is one complete, independently authored note list for a difficulty
// tier. Levels are not merged or interpolated; each is self-sufficient.
type Level struct {
	// Index of the tier, 0 = easiest.
	Index uint8

	// Notes ordered by non-decreasing StartTime.
	Notes []Note
}

// Arrangement is one instrument's full chart for a song.
type Arrangement struct {
	// StringCount is the instrument's declared string count.
	StringCount uint8

	Beats    []Beat
	Phrases  []Phrase
	Sections []Section
	Levels   []Level
}

// EndTime returns the time of the last event in the arrangement, used for
// progress reporting.
func (a *Arrangement) EndTime() float32 {
	var end float32
	if n := len(a.Beats); n > 0 {
		end = a.Beats[n-1].Time
	}
	for i := range a.Levels {
		notes := a.Levels[i].Notes
		if n := len(notes); n > 0 {
			if t := notes[n-1].EndTime(); t > end {
				end = t
			}
		}
	}
	return end
}
