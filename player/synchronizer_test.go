package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tversteeg/rockysmithereens/sng"
)

// testArrangement is the shared playback fixture: beats at 0.0/0.5/1.0 and
// one note per tier.
func testArrangement() *sng.Arrangement {
	return &sng.Arrangement{
		StringCount: 6,
		Beats: []sng.Beat{
			{Time: 0.0, Measure: 1, Downbeat: true},
			{Time: 0.5, Measure: 1},
			{Time: 1.0, Measure: 2, Downbeat: true},
		},
		Phrases: []sng.Phrase{
			{StartTime: 0.0, Name: "intro"},
			{StartTime: 1.0, Name: "riff"},
		},
		Sections: []sng.Section{
			{StartTime: 0.0, Name: "verse"},
		},
		Levels: []sng.Level{
			{Index: 0, Notes: []sng.Note{
				{StartTime: 0.5, Sustain: 0.25, String: 2, Fret: 3, LinkNext: sng.NoLink},
			}},
			{Index: 1, Notes: []sng.Note{
				{StartTime: 0.25, Sustain: 0, String: 1, Fret: 1, LinkNext: sng.NoLink},
				{StartTime: 0.5, Sustain: 0.25, String: 2, Fret: 3, LinkNext: sng.NoLink},
				{StartTime: 0.75, Sustain: 0, String: 2, Fret: 5, LinkNext: sng.NoLink},
			}},
		},
	}
}

func TestStartValidatesDifficulty(t *testing.T) {
	s := New(testArrangement())

	require.NoError(t, s.Start(0))
	assert.Equal(t, Playing, s.State())
	assert.Equal(t, float32(0), s.Time())

	err := s.Start(2)
	require.ErrorIs(t, err, ErrNoSuchDifficulty)
}

func TestAdvanceCrossesEvents(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(0))

	frame := s.Advance(0.6)
	require.Len(t, frame.Beats, 2, "beats at 0.0 and 0.5 crossed")
	assert.Equal(t, float32(0.5), frame.Beats[1].Time)
	require.Len(t, frame.Started, 1)
	assert.Equal(t, float32(0.5), frame.Started[0].StartTime)
	assert.Empty(t, frame.Ended)
	require.NotNil(t, frame.Phrase)
	assert.Equal(t, "intro", frame.Phrase.Name)
	require.NotNil(t, frame.Section)

	// The note sustains until 0.75 and expires after that.
	frame = s.Advance(0.8)
	assert.Empty(t, frame.Started)
	require.Len(t, frame.Ended, 1)
	assert.Empty(t, s.ActiveNotes())
}

func TestAdvanceIsIdempotent(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(0))

	first := s.Advance(0.6)
	require.Len(t, first.Beats, 2)
	require.Len(t, first.Started, 1)

	second := s.Advance(0.6)
	assert.Empty(t, second.Beats, "no event is emitted twice")
	assert.Empty(t, second.Started)
	assert.Empty(t, second.Ended)
}

func TestAdvanceEndsNotesContainedInInterval(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(1))

	// One advance crosses the 0.25 note's entire lifetime; it must start
	// and end in the same frame and never linger in the active set.
	frame := s.Advance(0.6)
	require.Len(t, frame.Started, 2)
	require.Len(t, frame.Ended, 1)
	assert.Equal(t, float32(0.25), frame.Ended[0].StartTime)

	active := s.ActiveNotes()
	require.Len(t, active, 1)
	assert.Equal(t, float32(0.5), active[0].StartTime)

	repeat := s.Advance(0.6)
	assert.Empty(t, repeat.Started)
	assert.Empty(t, repeat.Ended)
	assert.Empty(t, repeat.Beats)
}

func TestClockRegressionIsImplicitSeek(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(0))

	frame := s.Advance(0.6)
	require.Len(t, frame.Started, 1)

	// The audio backend reports a stale position; no explicit Seek.
	frame = s.Advance(0.4)
	assert.True(t, frame.Rebuilt)
	require.Len(t, frame.Ended, 1, "the note is no longer active at 0.4")
	assert.Empty(t, frame.Started)
	assert.Empty(t, s.ActiveNotes())
	assert.Equal(t, float32(0.4), s.Time())

	// Playback continues forward and re-crosses the note.
	frame = s.Advance(0.6)
	assert.False(t, frame.Rebuilt)
	require.Len(t, frame.Started, 1)
	require.Len(t, frame.Beats, 1, "only the 0.5 beat is re-crossed")
}

func TestSeekMatchesFreshStart(t *testing.T) {
	fresh := New(testArrangement())
	require.NoError(t, fresh.Start(0))
	want := fresh.Advance(0.1)

	s := New(testArrangement())
	require.NoError(t, s.Start(0))
	s.Advance(5.0)
	s.Seek(0.0)
	got := s.Advance(0.1)

	assert.Equal(t, want.Beats, got.Beats)
	assert.Equal(t, want.Started, got.Started)
	assert.Equal(t, want.Phrase, got.Phrase)
	assert.Equal(t, want.Section, got.Section)
}

func TestSeekPreservesTransportState(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(0))
	s.Pause()

	s.Seek(0.5)
	assert.Equal(t, Paused, s.State())
	assert.Equal(t, float32(0.5), s.Time())
}

func TestPauseAndResume(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(0))

	s.Advance(0.3)
	s.Pause()
	assert.Equal(t, Paused, s.State())

	// Advancing while paused moves nothing.
	frame := s.Advance(0.9)
	assert.Empty(t, frame.Beats)
	assert.Equal(t, float32(0.3), s.Time())

	s.Resume()
	assert.Equal(t, Playing, s.State())
	frame = s.Advance(0.6)
	require.Len(t, frame.Started, 1)

	// Resume is a no-op unless paused.
	s.Stop()
	s.Resume()
	assert.Equal(t, Stopped, s.State())
}

func TestSetDifficultyRebuildsNoteCursorOnly(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(0))

	frame := s.Advance(0.3)
	require.Len(t, frame.Beats, 1)
	assert.Empty(t, frame.Started, "tier 0 has no note before 0.5")

	require.NoError(t, s.SetDifficulty(1))
	assert.Equal(t, float32(0.3), s.Time(), "current time preserved")

	// The tier 1 note at 0.25 lies behind the clock and is not re-emitted;
	// the next advance picks up from the current position.
	frame = s.Advance(0.6)
	assert.Empty(t, frame.Beats[1:], "beat cursor kept its position")
	require.Len(t, frame.Started, 1)
	assert.Equal(t, float32(0.5), frame.Started[0].StartTime)

	err := s.SetDifficulty(9)
	require.ErrorIs(t, err, ErrNoSuchDifficulty)
}

func TestNextNoteOnString(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(1))

	next, ok := s.NextNoteOnString(2)
	require.True(t, ok)
	assert.Equal(t, float32(0.5), next.StartTime)

	s.Advance(0.6)
	next, ok = s.NextNoteOnString(2)
	require.True(t, ok)
	assert.Equal(t, float32(0.75), next.StartTime)

	s.Advance(1.0)
	_, ok = s.NextNoteOnString(2)
	assert.False(t, ok)

	_, ok = s.NextNoteOnString(9)
	assert.False(t, ok)
}

func TestZeroSustainNoteLifecycle(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(1))

	frame := s.Advance(0.25)
	require.Len(t, frame.Started, 1, "zero-sustain note active at its start")
	assert.Len(t, s.ActiveNotes(), 1)

	frame = s.Advance(0.3)
	require.Len(t, frame.Ended, 1, "expired once the clock passes it")
}

func TestProgressReportsArrangementEnd(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(0))
	s.Advance(0.5)

	current, end := s.Progress()
	assert.Equal(t, float32(0.5), current)
	assert.Equal(t, float32(1.0), end)
}

func TestCurrentPhraseAndSection(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(0))

	_, ok := s.CurrentPhrase()
	assert.False(t, ok, "nothing entered before the first advance")

	s.Advance(0.6)
	phrase, ok := s.CurrentPhrase()
	require.True(t, ok)
	assert.Equal(t, "intro", phrase.Name)
	section, ok := s.CurrentSection()
	require.True(t, ok)
	assert.Equal(t, "verse", section.Name)

	s.Advance(1.2)
	phrase, ok = s.CurrentPhrase()
	require.True(t, ok)
	assert.Equal(t, "riff", phrase.Name)

	// A seek back before the first phrase clears the position.
	s.Seek(0.0)
	_, ok = s.CurrentPhrase()
	assert.False(t, ok)
}

func TestStopDiscardsCursor(t *testing.T) {
	s := New(testArrangement())
	require.NoError(t, s.Start(0))
	s.Advance(0.6)
	require.NotEmpty(t, s.ActiveNotes())

	s.Stop()
	assert.Equal(t, Stopped, s.State())
	assert.Empty(t, s.ActiveNotes())
	assert.Equal(t, float32(0), s.Time())
}
