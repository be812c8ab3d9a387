package session

import "errors"

var (
	ErrMicrophoneAccessDenied   = errors.New("microphone access denied")
	ErrTranscriptionFailed      = errors.New("transcription failed")
	ErrResponseGenerationFailed = errors.New("response generation failed")
	ErrPlaybackFailed           = errors.New("playback failed")

	// ErrBusy rejects a trigger while a recording is being processed
	ErrBusy = errors.New("a recording is already being processed")

	// ErrClosed is returned by Trigger after Close
	ErrClosed = errors.New("session controller is closed")
)

// User-facing messages stored in Status.LastError
const (
	MessageMicrophone = "Could not access the microphone. Please check permissions and try again."
	MessageGeneric    = "Sorry, something went wrong. Please try again."
	MessagePlayback   = "Sorry, the response could not be played."
)
