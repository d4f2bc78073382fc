// Package engine talks to the external speech-to-text service. Callers depend
// on the Engine interface; OpenAI is the production implementation.
package engine

import (
	"context"
	"errors"
)

// Result is what the engine reports for one audio file.
type Result struct {
	Text            string
	Language        string
	DurationSeconds float64
}

// Minutes converts the reported duration to minutes.
func (r Result) Minutes() float64 {
	if r.DurationSeconds <= 0 {
		return 0
	}
	return r.DurationSeconds / 60
}

// Engine submits audio bytes and returns the transcription.
type Engine interface {
	Transcribe(ctx context.Context, audio []byte, fileName string) (*Result, error)
}

// ErrEmptyAudio is returned when no bytes were supplied.
var ErrEmptyAudio = errors.New("engine: empty audio")

// Func adapts a plain function to Engine.
type Func func(ctx context.Context, audio []byte, fileName string) (*Result, error)

// Transcribe calls f.
func (f Func) Transcribe(ctx context.Context, audio []byte, fileName string) (*Result, error) {
	return f(ctx, audio, fileName)
}
