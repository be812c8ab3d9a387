package tts

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNoEngine is returned when no speech command is configured for the platform
var ErrNoEngine = errors.New("no speech synthesis command available")

// DefaultCommand returns the platform's stock speech command
func DefaultCommand() string {
	switch runtime.GOOS {
	case "darwin":
		return "say"
	case "linux", "freebsd", "openbsd", "netbsd":
		return "espeak"
	}
	return ""
}

// utterance is one running engine process
type utterance struct {
	cancel  context.CancelFunc
	stopped bool
}

// CommandSpeaker implements Speaker by running a speech command such as
// espeak or say with the text as its last argument.
type CommandSpeaker struct {
	command string
	args    []string
	logger  zerolog.Logger

	mu      sync.Mutex
	current *utterance
}

// NewCommandSpeaker creates a speaker. An empty command selects DefaultCommand.
func NewCommandSpeaker(command string, args []string, logger zerolog.Logger) *CommandSpeaker {
	if command == "" {
		command = DefaultCommand()
	}
	return &CommandSpeaker{
		command: command,
		args:    args,
		logger:  logger.With().Str("component", "tts").Str("command", command).Logger(),
	}
}

// Command returns the engine command in use
func (s *CommandSpeaker) Command() string {
	return s.command
}

// Available checks that the engine binary can be found
func (s *CommandSpeaker) Available() error {
	if s.command == "" {
		return ErrNoEngine
	}
	if _, err := exec.LookPath(s.command); err != nil {
		return fmt.Errorf("speech command %q not found: %w", s.command, err)
	}
	return nil
}

// Speak starts the engine. Any utterance still playing is stopped first.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) (<-chan error, error) {
	if err := s.Available(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	playCtx, cancel := context.WithCancel(ctx)
	args := make([]string, 0, len(s.args)+1)
	args = append(args, s.args...)
	args = append(args, text)

	cmd := exec.CommandContext(playCtx, s.command, args...)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start speech command: %w", err)
	}

	u := &utterance{cancel: cancel}
	s.current = u
	done := make(chan error, 1)

	s.logger.Debug().Int("pid", cmd.Process.Pid).Int("chars", len(text)).Msg("Speech playback started")

	go func() {
		err := cmd.Wait()
		cancel()

		s.mu.Lock()
		stopped := u.stopped
		if s.current == u {
			s.current = nil
		}
		s.mu.Unlock()

		if !stopped {
			if err != nil {
				err = fmt.Errorf("speech command failed: %w", err)
			}
			done <- err
		}
		close(done)
	}()

	return done, nil
}

// Stop kills the running engine process, if any
func (s *CommandSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *CommandSpeaker) stopLocked() {
	if s.current == nil {
		return
	}
	s.current.stopped = true
	s.current.cancel()
	s.current = nil
	s.logger.Debug().Msg("Speech playback stopped")
}

// IsActive returns whether an utterance is playing
func (s *CommandSpeaker) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}
