package stt

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-widget/internal/config"
	"github.com/lexiqai/voice-widget/internal/googleapi"
	"github.com/lexiqai/voice-widget/internal/resilience"
)

// RecognitionConfig mirrors the v1 RecognitionConfig JSON object
type RecognitionConfig struct {
	Encoding          string `json:"encoding"`
	SampleRateHertz   int    `json:"sampleRateHertz"`
	AudioChannelCount int    `json:"audioChannelCount"`
	LanguageCode      string `json:"languageCode"`
	Model             string `json:"model,omitempty"`
}

// RecognitionAudio carries base64 audio content
type RecognitionAudio struct {
	Content string `json:"content"`
}

// RecognizeRequest is the speech:recognize request body
type RecognizeRequest struct {
	Config RecognitionConfig `json:"config"`
	Audio  RecognitionAudio  `json:"audio"`
}

// RecognizeResponse is the speech:recognize response body
type RecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// GoogleClient implements Transcriber using Speech-to-Text v1 REST
type GoogleClient struct {
	api    *googleapi.Client
	apiURL string
	policy *resilience.Policy
	logger zerolog.Logger
}

// NewGoogleClient creates a Speech-to-Text client. policy may be nil.
func NewGoogleClient(cfg *config.Config, httpClient *http.Client, policy *resilience.Policy, logger zerolog.Logger) *GoogleClient {
	return &GoogleClient{
		api:    googleapi.NewClient("speech", cfg.GoogleAPIKey, httpClient),
		apiURL: cfg.SpeechAPIURL,
		policy: policy,
		logger: logger.With().Str("component", "stt").Logger(),
	}
}

// Transcribe sends the whole recording in one recognize call and returns
// the first alternative of the first result.
func (g *GoogleClient) Transcribe(ctx context.Context, req *Request) (string, error) {
	if req == nil || len(req.Audio) == 0 {
		return "", ErrEmptyAudio
	}

	body := RecognizeRequest{
		Config: RecognitionConfig{
			Encoding:          req.Encoding,
			SampleRateHertz:   req.SampleRate,
			AudioChannelCount: req.Channels,
			LanguageCode:      req.LanguageCode,
			Model:             req.Model,
		},
		Audio: RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(req.Audio),
		},
	}

	var resp RecognizeResponse
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		return g.api.PostJSON(ctx, g.apiURL, body, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Alternatives) == 0 {
		return "", ErrNoTranscriptionResult
	}

	alt := resp.Results[0].Alternatives[0]
	transcript := strings.TrimSpace(alt.Transcript)
	if transcript == "" {
		return "", ErrNoTranscriptionResult
	}

	g.logger.Debug().
		Int("audio_bytes", len(req.Audio)).
		Float64("confidence", alt.Confidence).
		Str("transcript", transcript).
		Msg("Transcription received")

	return transcript, nil
}
