// Package llm wraps the text-generation capability behind a minimal client
// interface. The system treats generation as a black box: given a prompt and
// a budget, produce text. Cost accounting uses the chars/4 proxy in the
// context window builder, not provider token counts.
package llm

import "context"

// Client is the minimal interface the rest of the system uses to call a
// language model.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
