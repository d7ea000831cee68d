package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidates signals that every retrieval strategy came back empty.
	// Surfaced to callers as a zero-confidence result, never as a failure.
	ErrNoCandidates = errors.New("no candidates found")
	// ErrRetrievalUnavailable signals that a single retrieval strategy failed.
	ErrRetrievalUnavailable = errors.New("retrieval strategy unavailable")
	// ErrCompletionFailure signals a timeout or malformed output from the
	// completion service. Always recovered with a deterministic fallback.
	ErrCompletionFailure = errors.New("completion service failure")
	// ErrConversationNotFound signals an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrInvalidConversationState signals an answer submitted against a
	// completed or abandoned conversation.
	ErrInvalidConversationState = errors.New("invalid conversation state")
	// ErrRuleSetMissing signals that no rule set exists for a detected
	// category. Treated as an empty rule contribution.
	ErrRuleSetMissing = errors.New("rule set missing")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a transient provider rate limit.
	ErrRateLimited = errors.New("rate limited")
)

// ConversationStateError wraps ErrInvalidConversationState with the status
// the conversation was actually in.
type ConversationStateError struct {
	ID     string
	Status ConversationStatus
}

func (e *ConversationStateError) Error() string {
	return fmt.Sprintf("%s: conversation %s is %s", ErrInvalidConversationState.Error(), e.ID, e.Status)
}

func (e *ConversationStateError) Unwrap() error { return ErrInvalidConversationState }

// NewConversationStateError creates a state rejection for a conversation.
func NewConversationStateError(id string, status ConversationStatus) error {
	return &ConversationStateError{ID: id, Status: status}
}
