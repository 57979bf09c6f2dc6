// Package ocr wraps text recognition behind a small engine interface and
// layers the retry ladders the code images need on top of it.
package ocr

import "context"

// SegMode selects the page segmentation assumption for a recognition pass.
type SegMode int

const (
	// ModeBlock assumes a uniform block of text.
	ModeBlock SegMode = iota
	// ModeLine assumes a single text line.
	ModeLine
	// ModeWord assumes a single word.
	ModeWord
	// ModeRawLine assumes a single raw line, bypassing layout analysis.
	ModeRawLine
	// ModeChar assumes a single character.
	ModeChar
)

// Profile is one recognition configuration.
type Profile struct {
	Mode SegMode
	// DigitsOnly restricts the character set to 0-9.
	DigitsOnly bool
}

// Engine performs one recognition pass over a PNG-encoded image. Engines may
// be called from a single goroutine at a time.
type Engine interface {
	Recognize(ctx context.Context, png []byte, profile Profile) (string, error)
}
