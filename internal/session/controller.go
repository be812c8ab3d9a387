// Package session implements the push-to-talk state machine: one trigger
// action drives microphone capture, transcription, response generation and
// spoken playback, and the controller guarantees only one of them is ever in
// flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-widget/internal/audio"
	"github.com/lexiqai/voice-widget/internal/llm"
	"github.com/lexiqai/voice-widget/internal/observability"
	"github.com/lexiqai/voice-widget/internal/stt"
	"github.com/lexiqai/voice-widget/internal/tts"
)

// drainTimeout bounds how long stop waits for the capture source to flush
const drainTimeout = 2 * time.Second

// subscriberBuffer is the per-subscriber status queue length
const subscriberBuffer = 16

// Options wires the controller to its collaborators
type Options struct {
	Source      audio.Source
	Transcriber stt.Transcriber
	Responder   llm.Responder
	Speaker     tts.Speaker

	LanguageCode string
	Model        string // speech recognition model

	// TurnTimeout bounds transcription plus response generation. Zero means no deadline.
	TurnTimeout time.Duration

	SessionID string
	Logger    zerolog.Logger
	Metrics   *observability.Metrics

	// OnTransition is called synchronously, under the controller lock, for every phase change
	OnTransition func(from, to Phase)
}

// Controller owns the single session state. All methods are safe for
// concurrent use; triggers are serialized.
type Controller struct {
	source      audio.Source
	transcriber stt.Transcriber
	responder   llm.Responder
	speaker     tts.Speaker

	languageCode string
	model        string
	turnTimeout  time.Duration

	sessionID    string
	logger       zerolog.Logger
	metrics      *observability.Metrics
	onTransition func(from, to Phase)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	phase      Phase
	lastError  string
	turn       int
	transcript string
	reply      string
	buffer     *audio.FragmentBuffer
	drained    chan struct{}
	playGen    uint64
	subs       map[int]chan Status
	nextSub    int
}

// NewController creates an idle controller
func NewController(opts Options) (*Controller, error) {
	if opts.Source == nil || opts.Transcriber == nil || opts.Responder == nil || opts.Speaker == nil {
		return nil, errors.New("session: source, transcriber, responder and speaker are required")
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = observability.NewSessionID()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewSessionMetrics(sessionID)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		source:       opts.Source,
		transcriber:  opts.Transcriber,
		responder:    opts.Responder,
		speaker:      opts.Speaker,
		languageCode: opts.LanguageCode,
		model:        opts.Model,
		turnTimeout:  opts.TurnTimeout,
		sessionID:    sessionID,
		logger:       opts.Logger.With().Str("session_id", sessionID).Logger(),
		metrics:      metrics,
		onTransition: opts.OnTransition,
		ctx:          ctx,
		cancel:       cancel,
		phase:        PhaseIdle,
		buffer:       audio.NewFragmentBuffer(),
		subs:         make(map[int]chan Status),
	}, nil
}

// Trigger applies the single user action. Its meaning depends on the phase,
// in priority order: cancel playback, stop recording, start recording.
// While processing the trigger is rejected with ErrBusy.
//
// ctx only bounds how long a stop waits for the capture source to flush.
func (c *Controller) Trigger(ctx context.Context) (Action, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ActionRejected, ErrClosed
	}

	switch c.phase {
	case PhaseSpeaking:
		c.cancelPlaybackLocked()
		c.metrics.RecordTrigger(string(ActionCancel))
		return ActionCancel, nil

	case PhaseRecording:
		c.stopRecordingLocked(ctx)
		c.metrics.RecordTrigger(string(ActionStop))
		return ActionStop, nil

	case PhaseProcessing:
		c.logger.Debug().Msg("Trigger ignored while processing")
		c.metrics.RecordTrigger(string(ActionRejected))
		return ActionRejected, ErrBusy
	}

	c.metrics.RecordTrigger(string(ActionStart))
	if err := c.startRecordingLocked(); err != nil {
		return ActionStart, err
	}
	return ActionStart, nil
}

// Status returns the current snapshot
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe returns a channel that receives the current status and then
// every change. Updates are dropped for a subscriber that falls behind.
// The channel is closed by the returned cancel func or by Close.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Status, subscriberBuffer)
	ch <- c.statusLocked()
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Close releases the capture device and the speech engine, waits for the
// in-flight turn to unwind and closes all subscriptions.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	var err error
	switch c.phase {
	case PhaseRecording:
		err = c.stopSourceLocked(context.Background())
		c.buffer.Drain()
	case PhaseSpeaking:
		c.playGen++
		c.speaker.Stop()
	}
	c.setPhaseLocked(PhaseIdle)

	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub)
	}
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info().Msg("Session closed")
	return err
}

func (c *Controller) startRecordingLocked() error {
	fragments, err := c.source.Start(c.ctx)
	if err != nil {
		c.lastError = MessageMicrophone
		c.metrics.RecordError("microphone_access_denied", "capture")
		c.logger.Error().Err(err).Msg("Microphone access failed")
		c.publishLocked()
		return fmt.Errorf("%w: %w", ErrMicrophoneAccessDenied, err)
	}

	c.lastError = ""
	c.transcript = ""
	c.reply = ""
	c.turn++

	// A drainer left over from an unflushed recording only ever sees its own buffer
	buffer := audio.NewFragmentBuffer()
	c.buffer = buffer
	drained := make(chan struct{})
	c.drained = drained
	go func() {
		defer close(drained)
		for fragment := range fragments {
			buffer.Append(fragment)
		}
	}()

	c.metrics.RecordRecordingStart()
	c.logger.Info().Int("turn", c.turn).Msg("Recording started")
	c.setPhaseLocked(PhaseRecording)
	return nil
}

func (c *Controller) stopRecordingLocked(ctx context.Context) {
	if err := c.stopSourceLocked(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to stop capture source cleanly")
	}

	payload := c.buffer.Drain()
	c.metrics.RecordRecordingEnd(len(payload))
	c.logger.Info().
		Int("turn", c.turn).
		Int("audio_bytes", len(payload)).
		Msg("Recording stopped")

	c.setPhaseLocked(PhaseProcessing)

	c.wg.Add(1)
	go c.runTurn(c.turn, payload)
}

// stopSourceLocked stops capture and waits for the current drainer to finish.
// Both waits share one drainTimeout so a stalled device cannot hold the lock
// longer than that.
func (c *Controller) stopSourceLocked(ctx context.Context) error {
	stopped := make(chan error, 1)
	go func() { stopped <- c.source.Stop() }()
	drained := c.drained

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()

	var stopErr error
	for stopped != nil || drained != nil {
		select {
		case err := <-stopped:
			stopErr = err
			stopped = nil
		case <-drained:
			drained = nil
		case <-ctx.Done():
			c.logger.Warn().Msg("Stopped waiting for capture flush, caller gave up")
			return stopErr
		case <-timer.C:
			c.logger.Warn().
				Dur("timeout", drainTimeout).
				Bool("stop_returned", stopped == nil).
				Msg("Capture source did not flush in time")
			return stopErr
		}
	}
	return stopErr
}

// runTurn transcribes the recording, asks for a reply and starts playback
func (c *Controller) runTurn(turn int, payload []byte) {
	defer c.wg.Done()

	logger := c.logger.With().Int("turn", turn).Logger()

	ctx := c.ctx
	if c.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.turnTimeout)
		defer cancel()
	}

	format := c.source.Format()
	req := &stt.Request{
		Encoding:     format.Encoding,
		SampleRate:   format.SampleRate,
		Channels:     format.Channels,
		LanguageCode: c.languageCode,
		Model:        c.model,
		Audio:        payload,
	}

	c.metrics.RecordTranscriptionStart()
	text, err := c.transcriber.Transcribe(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = stt.ErrNoTranscriptionResult
	}
	c.metrics.RecordTranscriptionEnd(err == nil)
	if err != nil {
		c.fail(logger, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err), MessageGeneric, "transcription")
		return
	}
	logger.Info().Str("transcript", text).Msg("Transcription complete")

	c.mu.Lock()
	c.transcript = text
	c.mu.Unlock()

	c.metrics.RecordResponseStart()
	reply, err := c.responder.Respond(ctx, text)
	c.metrics.RecordResponseEnd(err == nil)
	if err != nil {
		c.fail(logger, fmt.Errorf("%w: %w", ErrResponseGenerationFailed, err), MessageGeneric, "response")
		return
	}
	logger.Info().Int("reply_chars", len(reply)).Msg("Response received")

	c.speak(logger, reply)
}

func (c *Controller) speak(logger zerolog.Logger, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	done, err := c.speaker.Speak(c.ctx, reply)
	if err != nil {
		c.failLocked(logger, fmt.Errorf("%w: %w", ErrPlaybackFailed, err), MessagePlayback, "playback")
		return
	}

	c.playGen++
	gen := c.playGen
	c.reply = reply
	c.metrics.RecordPlaybackStart()
	c.setPhaseLocked(PhaseSpeaking)

	c.wg.Add(1)
	go c.awaitPlayback(logger, gen, done)
}

// awaitPlayback ends the speaking phase when the engine finishes. A
// completion for a cancelled utterance is discarded.
func (c *Controller) awaitPlayback(logger zerolog.Logger, gen uint64, done <-chan error) {
	defer c.wg.Done()

	err, delivered := <-done

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.playGen || c.phase != PhaseSpeaking {
		return
	}

	switch {
	case !delivered:
		// Engine stopped from outside the controller
		c.metrics.RecordPlaybackEnd("cancelled")
		logger.Info().Msg("Playback stopped by speech engine")
	case err != nil:
		c.metrics.RecordPlaybackEnd("error")
		c.failLocked(logger, fmt.Errorf("%w: %w", ErrPlaybackFailed, err), MessagePlayback, "playback")
		return
	default:
		c.metrics.RecordPlaybackEnd("success")
		c.metrics.RecordTurnEnd("success")
		logger.Info().Msg("Playback finished")
	}
	c.setPhaseLocked(PhaseIdle)
}

func (c *Controller) cancelPlaybackLocked() {
	c.playGen++
	c.speaker.Stop()
	c.lastError = ""
	c.metrics.RecordPlaybackEnd("cancelled")
	c.metrics.RecordTurnEnd("cancelled")
	c.logger.Info().Int("turn", c.turn).Msg("Playback cancelled by user")
	c.setPhaseLocked(PhaseIdle)
}

func (c *Controller) fail(logger zerolog.Logger, err error, message, component string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(logger, err, message, component)
}

func (c *Controller) failLocked(logger zerolog.Logger, err error, message, component string) {
	if c.closed {
		return
	}
	c.lastError = message
	c.metrics.RecordError(errorType(err), component)
	c.metrics.RecordTurnEnd("error")
	logger.Error().Err(err).Str("component", component).Msg("Turn failed")
	c.setPhaseLocked(PhaseIdle)
}

func (c *Controller) setPhaseLocked(phase Phase) {
	from := c.phase
	c.phase = phase
	if from != phase && c.onTransition != nil {
		c.onTransition(from, phase)
	}
	c.metrics.RecordPhase(int(phase))
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	status := c.statusLocked()
	for _, sub := range c.subs {
		select {
		case sub <- status:
		default:
		}
	}
}

func (c *Controller) statusLocked() Status {
	return Status{
		Phase:      c.phase,
		LastError:  c.lastError,
		SessionID:  c.sessionID,
		Turn:       c.turn,
		Transcript: c.transcript,
		Reply:      c.reply,
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, stt.ErrNoTranscriptionResult):
		return "no_result"
	case errors.Is(err, stt.ErrEmptyAudio):
		return "empty_audio"
	case errors.Is(err, ErrPlaybackFailed):
		return "playback"
	}
	return "remote"
}
