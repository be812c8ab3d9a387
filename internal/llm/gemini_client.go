package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-widget/internal/config"
	"github.com/lexiqai/voice-widget/internal/googleapi"
	"github.com/lexiqai/voice-widget/internal/resilience"
)

// Part is one piece of content
type Part struct {
	Text string `json:"text"`
}

// Content is a list of parts
type Content struct {
	Parts []Part `json:"parts"`
}

// GenerateContentRequest is the generateContent request body
type GenerateContentRequest struct {
	Contents []Content `json:"contents"`
}

// Candidate is one model answer
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// GenerateContentResponse is the generateContent response body
type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// FirstText returns the first candidate's first text part, or "" when absent
func (r *GenerateContentResponse) FirstText() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	content := r.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return ""
	}
	return strings.TrimSpace(content.Parts[0].Text)
}

// GeminiClient implements Responder using the Gemini REST API
type GeminiClient struct {
	api      *googleapi.Client
	endpoint string
	policy   *resilience.Policy
	logger   zerolog.Logger
}

// NewGeminiClient creates a Gemini client. policy may be nil.
func NewGeminiClient(cfg *config.Config, httpClient *http.Client, policy *resilience.Policy, logger zerolog.Logger) *GeminiClient {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(cfg.GeminiAPIURL, "/"), cfg.GeminiModel)
	return &GeminiClient{
		api:      googleapi.NewClient("gemini", cfg.GoogleAPIKey, httpClient),
		endpoint: endpoint,
		policy:   policy,
		logger:   logger.With().Str("component", "llm").Str("model", cfg.GeminiModel).Logger(),
	}
}

// Respond sends the prompt-wrapped transcript and returns the reply text
func (g *GeminiClient) Respond(ctx context.Context, text string) (string, error) {
	body := GenerateContentRequest{
		Contents: []Content{{Parts: []Part{{Text: BuildPrompt(text)}}}},
	}

	var resp GenerateContentResponse
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		return g.api.PostJSON(ctx, g.endpoint, body, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("gemini generateContent: %w", err)
	}

	reply := resp.FirstText()
	if reply == "" {
		reason := ""
		if len(resp.Candidates) > 0 {
			reason = resp.Candidates[0].FinishReason
		}
		g.logger.Warn().
			Int("candidates", len(resp.Candidates)).
			Str("finish_reason", reason).
			Msg("Gemini returned no text, using fallback reply")
		return FallbackReply, nil
	}

	return reply, nil
}
