package llm

import "context"

// FallbackReply is spoken when the model returns no usable text
const FallbackReply = "I'm sorry, I couldn't come up with a response to that."

// PromptPrefix asks the model for an answer that reads well aloud
const PromptPrefix = "Answer the following in a natural, conversational way, as it will be read aloud. " +
	"Keep it brief and avoid numbered or bulleted lists: "

// Responder produces a spoken-style reply to a transcript
type Responder interface {
	// Respond returns the reply text. A successful call never returns an
	// empty string; missing model output is replaced by FallbackReply.
	Respond(ctx context.Context, text string) (string, error)
}

// BuildPrompt wraps transcribed text with the fixed instruction prefix
func BuildPrompt(text string) string {
	return PromptPrefix + text
}
