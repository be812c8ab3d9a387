package tts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	s := NewCommandSpeaker("sh", nil, zerolog.Nop())
	if err := s.Available(); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandSpeaker_Success(t *testing.T) {
	requireShell(t)
	s := NewCommandSpeaker("sh", []string{"-c", "exit 0"}, zerolog.Nop())

	done, err := s.Speak(context.Background(), "Hi there")
	require.NoError(t, err)

	select {
	case err, ok := <-done:
		assert.True(t, ok, "expected a completion value")
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not complete")
	}

	_, ok := <-done
	assert.False(t, ok, "expected channel to be closed after the completion value")
	assert.False(t, s.IsActive())
}

func TestCommandSpeaker_EngineError(t *testing.T) {
	requireShell(t)
	s := NewCommandSpeaker("sh", []string{"-c", "exit 3"}, zerolog.Nop())

	done, err := s.Speak(context.Background(), "Hi there")
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not complete")
	}
}

func TestCommandSpeaker_StopSuppressesCompletion(t *testing.T) {
	requireShell(t)
	s := NewCommandSpeaker("sh", []string{"-c", "sleep 10"}, zerolog.Nop())

	done, err := s.Speak(context.Background(), "a long answer")
	require.NoError(t, err)
	assert.True(t, s.IsActive())

	s.Stop()

	select {
	case err, ok := <-done:
		assert.False(t, ok, "expected no completion value after Stop, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not end playback")
	}
	assert.False(t, s.IsActive())

	// Stop when idle is a no-op
	s.Stop()
}

func TestCommandSpeaker_TextIsLastArgument(t *testing.T) {
	requireShell(t)
	// $0 is the first argument after the script
	s := NewCommandSpeaker("sh", []string{"-c", `[ "$0" = "Hi there" ]`}, zerolog.Nop())

	done, err := s.Speak(context.Background(), "Hi there")
	require.NoError(t, err)
	assert.NoError(t, <-done)
}

func TestCommandSpeaker_MissingEngine(t *testing.T) {
	s := NewCommandSpeaker("definitely-not-a-speech-engine", nil, zerolog.Nop())

	assert.Error(t, s.Available())

	done, err := s.Speak(context.Background(), "hello")
	assert.Error(t, err)
	assert.Nil(t, done)
}
