// Package sng decodes per-instrument arrangement files into a time-ordered
// event model: beats, phrases, sections, and fully pre-authored note lists
// for each difficulty level.
//
// The format is a sequence of typed, length-prefixed sections decoded in a
// single forward pass. All timestamps are seconds from song start, sharing
// the audio track's origin. A decoded Arrangement is immutable; the player
// holds a non-owning reference and its own cursor.
package sng
