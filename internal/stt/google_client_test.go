package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-widget/internal/config"
	"github.com/lexiqai/voice-widget/internal/googleapi"
	"github.com/lexiqai/voice-widget/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, policy *resilience.Policy) (*GoogleClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		GoogleAPIKey: "test-key",
		SpeechAPIURL: srv.URL + "/v1/speech:recognize",
	}
	return NewGoogleClient(cfg, srv.Client(), policy, zerolog.Nop()), srv
}

func testRequest(audio []byte) *Request {
	return &Request{
		Encoding:     "OGG_OPUS",
		SampleRate:   48000,
		Channels:     1,
		LanguageCode: "en-US",
		Model:        "latest_short",
		Audio:        audio,
	}
}

func TestTranscribe_Success(t *testing.T) {
	audio := []byte("OggS-fake-opus-pages")

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech:recognize", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var body RecognizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "OGG_OPUS", body.Config.Encoding)
		assert.Equal(t, 48000, body.Config.SampleRateHertz)
		assert.Equal(t, 1, body.Config.AudioChannelCount)
		assert.Equal(t, "en-US", body.Config.LanguageCode)
		assert.Equal(t, "latest_short", body.Config.Model)

		decoded, err := base64.StdEncoding.DecodeString(body.Audio.Content)
		require.NoError(t, err)
		assert.Equal(t, audio, decoded)

		_, _ = w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"hello","confidence":0.93},{"transcript":"yellow"}]},{"alternatives":[{"transcript":"ignored"}]}]}`))
	}, nil)

	text, err := client.Transcribe(context.Background(), testRequest(audio))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestTranscribe_EmptyResults(t *testing.T) {
	cases := map[string]string{
		"no_results":       `{}`,
		"empty_results":    `{"results":[]}`,
		"no_alternatives":  `{"results":[{"alternatives":[]}]}`,
		"blank_transcript": `{"results":[{"alternatives":[{"transcript":"  "}]}]}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(payload))
			}, nil)

			text, err := client.Transcribe(context.Background(), testRequest([]byte{1, 2, 3}))
			assert.ErrorIs(t, err, ErrNoTranscriptionResult)
			assert.Empty(t, text)
		})
	}
}

func TestTranscribe_EmptyAudioSkipsNetwork(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, nil)

	_, err := client.Transcribe(context.Background(), testRequest(nil))
	assert.ErrorIs(t, err, ErrEmptyAudio)

	_, err = client.Transcribe(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyAudio)

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestTranscribe_ServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend unavailable","status":"INTERNAL"}}`))
	}, nil)

	_, err := client.Transcribe(context.Background(), testRequest([]byte{1}))
	require.Error(t, err)

	var apiErr *googleapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "backend unavailable", apiErr.Message)
}

func TestTranscribe_NoRetryByDefault(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, &resilience.Policy{Retry: resilience.DefaultRetryConfig()})

	_, err := client.Transcribe(context.Background(), testRequest([]byte{1}))
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTranscribe_RetriesWhenConfigured(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"second time"}]}]}`))
	}, &resilience.Policy{Retry: &resilience.RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1,
	}})

	text, err := client.Transcribe(context.Background(), testRequest([]byte{1}))
	require.NoError(t, err)
	assert.Equal(t, "second time", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTranscribe_ContextDeadline(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Transcribe(ctx, testRequest([]byte{1}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
