package stt

import (
	"context"
	"errors"
)

var (
	// ErrEmptyAudio is returned without contacting the service when there is nothing to transcribe
	ErrEmptyAudio = errors.New("audio payload is empty")

	// ErrNoTranscriptionResult is returned when the service recognised nothing
	ErrNoTranscriptionResult = errors.New("no transcription result")
)

// Request is one complete recording to transcribe. Encoding, SampleRate and
// Channels must describe Audio exactly.
type Request struct {
	Encoding     string
	SampleRate   int
	Channels     int
	LanguageCode string
	Model        string
	Audio        []byte
}

// Transcriber turns a complete recording into text
type Transcriber interface {
	// Transcribe returns the most likely transcript. It never returns an
	// empty string with a nil error.
	Transcribe(ctx context.Context, req *Request) (string, error)
}
