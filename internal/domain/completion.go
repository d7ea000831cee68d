package domain

import "context"

// CompletionRequest is a single structured-text generation request.
// SchemaHint describes the JSON shape expected back; providers that support
// a JSON response mode should enable it when SchemaHint is non-empty.
type CompletionRequest struct {
	System     string
	Prompt     string
	SchemaHint string
	MaxTokens  int
}

// CompletionResult carries the generated text and token usage.
type CompletionResult struct {
	Text         string
	PromptTokens int
	TotalTokens  int
}

// Completer is the text-completion contract. Used for relevance scoring,
// state detection, catch-all sibling checks, question humanization and final
// reasoning text. Every caller must tolerate malformed output by falling
// back to a deterministic default.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
