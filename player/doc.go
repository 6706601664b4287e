// Package player keeps a decoded arrangement aligned with an independently
// clocked audio stream.
//
// A Synchronizer owns the only mutable state in the pipeline: a cursor over
// the arrangement's time-ordered collections. One driving goroutine calls
// Advance, Seek, SetDifficulty, Pause, and Resume; a rendering consumer may
// concurrently read the committed snapshots returned by Advance and
// ActiveNotes, but must not reach into the cursor itself.
package player
