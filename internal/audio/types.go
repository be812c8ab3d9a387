package audio

import "context"

// Format describes the encoded audio a Source produces
type Format struct {
	Encoding   string // Speech-to-Text encoding tag, e.g. OGG_OPUS
	SampleRate int    // Hz
	Channels   int
}

// Source is a microphone-like capture device.
//
// Start opens the device and returns a channel of encoded fragments. The
// channel is closed after Stop once the last fragment has been delivered.
// A failure to open the device is returned from Start and no channel is
// produced.
type Source interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
	Format() Format
}
