package tts

import "context"

// Speaker plays text through a speech synthesis engine
type Speaker interface {
	// Speak starts playback and returns without waiting for it to finish.
	// The returned channel receives exactly one value, nil on success or the
	// engine error, and is then closed. If Stop is called first the channel
	// is closed without a value.
	Speak(ctx context.Context, text string) (<-chan error, error)

	// Stop halts the current utterance immediately. Safe to call when idle.
	Stop()
}
