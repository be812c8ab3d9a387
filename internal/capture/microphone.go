// Package capture records the default input device as an Ogg/Opus stream.
// It links against the PortAudio and libopus C libraries.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/hraban/opus"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-widget/internal/audio"
	"github.com/lexiqai/voice-widget/internal/config"
)

// EncodingOggOpus is the Speech-to-Text encoding tag for what Microphone produces
const EncodingOggOpus = "OGG_OPUS"

// maxPacketSize is the largest Opus packet we expect for one frame
const maxPacketSize = 4000

// ErrAlreadyRecording is returned by Start while a recording is active
var ErrAlreadyRecording = errors.New("microphone is already recording")

// Microphone implements audio.Source on the default PortAudio input device.
// Every fragment it emits is one complete Ogg page, starting with the Opus
// header pages, so concatenating them yields a playable Ogg file.
type Microphone struct {
	sampleRate int
	channels   int
	frameMs    int
	threshold  float64
	logger     zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewMicrophone creates a microphone source from capture settings
func NewMicrophone(cfg *config.Config, logger zerolog.Logger) *Microphone {
	return &Microphone{
		sampleRate: cfg.CaptureSampleRate,
		channels:   cfg.CaptureChannels,
		frameMs:    cfg.CaptureFrameMs,
		threshold:  cfg.CaptureSpeechThreshold,
		logger:     logger.With().Str("component", "microphone").Logger(),
	}
}

// Format describes the encoded stream
func (m *Microphone) Format() audio.Format {
	return audio.Format{
		Encoding:   EncodingOggOpus,
		SampleRate: m.sampleRate,
		Channels:   m.channels,
	}
}

// Start opens the input device and begins encoding. Any failure to open the
// device is returned here.
func (m *Microphone) Start(ctx context.Context) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopCh != nil {
		return nil, ErrAlreadyRecording
	}

	frameSamples := m.sampleRate * m.frameMs / 1000
	pcm := make([]int16, frameSamples*m.channels)

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(m.channels, 0, float64(m.sampleRate), frameSamples, pcm)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input device: %w", err)
	}

	enc, err := opus.NewEncoder(m.sampleRate, m.channels, opus.AppVoIP)
	if err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	out := make(chan []byte, 64)
	stopCh := make(chan struct{})
	done := make(chan struct{})

	pages := &pageWriter{out: out, stop: ctx.Done()}
	ogg, err := oggwriter.NewWith(pages, uint32(m.sampleRate), uint16(m.channels))
	if err != nil {
		_ = stream.Stop()
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to create ogg writer: %w", err)
	}

	m.stopCh = stopCh
	m.done = done

	go m.record(ctx, stream, enc, ogg, pcm, frameSamples, out, stopCh, done)

	m.logger.Debug().
		Int("sample_rate", m.sampleRate).
		Int("channels", m.channels).
		Int("frame_ms", m.frameMs).
		Msg("Microphone opened")

	return out, nil
}

// Stop ends the recording and waits until the last page has been emitted
func (m *Microphone) Stop() error {
	m.mu.Lock()
	stopCh, done := m.stopCh, m.done
	m.stopCh, m.done = nil, nil
	m.mu.Unlock()

	if stopCh == nil {
		return nil
	}
	close(stopCh)
	<-done
	return nil
}

func (m *Microphone) record(
	ctx context.Context,
	stream *portaudio.Stream,
	enc *opus.Encoder,
	ogg *oggwriter.OggWriter,
	pcm []int16,
	frameSamples int,
	out chan<- []byte,
	stopCh <-chan struct{},
	done chan<- struct{},
) {
	defer close(done)
	defer close(out)
	defer func() {
		_ = stream.Stop()
		_ = stream.Close()
		_ = portaudio.Terminate()
	}()

	detector := audio.NewSpeechDetector(m.threshold)
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			PayloadType: 111,
		},
	}
	encoded := make([]byte, maxPacketSize)

	for {
		select {
		case <-stopCh:
			m.finish(ogg, detector)
			return
		case <-ctx.Done():
			m.finish(ogg, detector)
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				m.logger.Debug().Msg("Input overflowed, frame dropped")
				continue
			}
			m.logger.Error().Err(err).Msg("Failed to read from input device")
			m.finish(ogg, detector)
			return
		}

		detector.ProcessFrame(pcm)

		n, err := enc.Encode(pcm, encoded)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Failed to encode frame")
			continue
		}

		packet.SequenceNumber++
		packet.Timestamp += uint32(frameSamples)
		packet.Payload = encoded[:n]
		if err := ogg.WriteRTP(packet); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to write ogg page")
		}
	}
}

func (m *Microphone) finish(ogg *oggwriter.OggWriter, detector *audio.SpeechDetector) {
	if err := ogg.Close(); err != nil {
		m.logger.Debug().Err(err).Msg("Failed to close ogg writer")
	}
	m.logger.Info().
		Int("frames", detector.Frames()).
		Int("speech_frames", detector.SpeechFrames()).
		Float64("peak_rms", detector.PeakRMS()).
		Bool("heard_speech", detector.HeardSpeech()).
		Msg("Microphone closed")
}

// pageWriter forwards every write from the ogg writer as one fragment
type pageWriter struct {
	out  chan<- []byte
	stop <-chan struct{}
}

func (w *pageWriter) Write(p []byte) (int, error) {
	page := make([]byte, len(p))
	copy(page, p)
	select {
	case w.out <- page:
		return len(p), nil
	case <-w.stop:
		return 0, errors.New("capture cancelled")
	}
}
