package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lexiqai/voice-widget/internal/config"
	"github.com/lexiqai/voice-widget/internal/resilience"
)

// GRPCClient implements Transcriber with the Cloud Speech client library.
// It sends the same single synchronous Recognize call as GoogleClient, over gRPC.
type GRPCClient struct {
	client *speech.Client
	policy *resilience.Policy
	logger zerolog.Logger
}

// NewGRPCClient dials the Speech-to-Text service with the API key. When opts
// are given they replace the default key and endpoint options.
func NewGRPCClient(ctx context.Context, cfg *config.Config, policy *resilience.Policy, logger zerolog.Logger, opts ...option.ClientOption) (*GRPCClient, error) {
	if len(opts) == 0 {
		opts = append(opts, option.WithAPIKey(cfg.GoogleAPIKey))
		if cfg.SpeechGRPCEndpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.SpeechGRPCEndpoint))
		}
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	return &GRPCClient{
		client: client,
		policy: policy,
		logger: logger.With().Str("component", "stt").Str("transport", "grpc").Logger(),
	}, nil
}

// Transcribe returns the first alternative of the first result
func (g *GRPCClient) Transcribe(ctx context.Context, req *Request) (string, error) {
	if req == nil || len(req.Audio) == 0 {
		return "", ErrEmptyAudio
	}

	encoding, ok := speechpb.RecognitionConfig_AudioEncoding_value[req.Encoding]
	if !ok {
		return "", fmt.Errorf("unsupported audio encoding %q", req.Encoding)
	}

	pbReq := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_AudioEncoding(encoding),
			SampleRateHertz:   int32(req.SampleRate),
			AudioChannelCount: int32(req.Channels),
			LanguageCode:      req.LanguageCode,
			Model:             req.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio},
		},
	}

	var resp *speechpb.RecognizeResponse
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		// The library's own retryer is disabled; retries belong to the policy
		r, err := g.client.Recognize(ctx, pbReq, gax.WithRetry(func() gax.Retryer { return nil }))
		if err != nil {
			return classifyStatus(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	results := resp.GetResults()
	if len(results) == 0 || len(results[0].GetAlternatives()) == 0 {
		return "", ErrNoTranscriptionResult
	}

	alt := results[0].GetAlternatives()[0]
	transcript := strings.TrimSpace(alt.GetTranscript())
	if transcript == "" {
		return "", ErrNoTranscriptionResult
	}

	g.logger.Debug().
		Int("audio_bytes", len(req.Audio)).
		Float32("confidence", alt.GetConfidence()).
		Str("transcript", transcript).
		Msg("Transcription received")

	return transcript, nil
}

// Close releases the underlying connection
func (g *GRPCClient) Close() error {
	return g.client.Close()
}

// classifyStatus marks transient gRPC failures as retryable
func classifyStatus(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Aborted:
		return resilience.NewRetryableError(err)
	}
	return err
}
