package domain

import "time"

// ConversationStatus is the lifecycle state of a clarification conversation.
type ConversationStatus string

const (
	// ConversationActive accepts answer submissions.
	ConversationActive ConversationStatus = "active"
	// ConversationCompleted reached a confident classification or a best guess.
	ConversationCompleted ConversationStatus = "completed"
	// ConversationAbandoned was cancelled or hit the turn ceiling.
	ConversationAbandoned ConversationStatus = "abandoned"
)

// CanTransition reports whether a status change is allowed. The only legal
// moves are active→completed and active→abandoned.
func (s ConversationStatus) CanTransition(to ConversationStatus) bool {
	return s == ConversationActive &&
		(to == ConversationCompleted || to == ConversationAbandoned)
}

// QuestionOption is one closed answer choice, traceable back to the codes
// it implies.
type QuestionOption struct {
	Value        string   `json:"value"`
	Label        string   `json:"label"`
	ImpliedCodes []string `json:"implied_codes,omitempty"`
}

// ClarifyingQuestion is a user-facing question emitted when confidence is
// below threshold. Emitted questions always carry a free-text "other"
// escape alongside the closed options.
type ClarifyingQuestion struct {
	ID      string           `json:"id"`
	Text    string           `json:"text"`
	Options []QuestionOption `json:"options"`
}

// ConversationTurn records one round of questions asked and answers given.
type ConversationTurn struct {
	Questions []ClarifyingQuestion `json:"questions"`
	Answers   map[string]string    `json:"answers,omitempty"`
	AskedAt   time.Time            `json:"asked_at"`
}

// Conversation is the multi-turn clarification state for one product
// description. Owned by the session that opened it; the repository
// serializes mutations per id.
type Conversation struct {
	ID                 string                `json:"id"`
	SessionID          string                `json:"session_id"`
	Status             ConversationStatus    `json:"status"`
	ProductDescription string                `json:"product_description"`
	Country            string                `json:"country,omitempty"`
	Turns              []ConversationTurn    `json:"turns"`
	AccumulatedAnswers map[string]string     `json:"accumulated_answers"`
	BestResult         *ClassificationResult `json:"best_result,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// TurnCount returns the number of question rounds already asked.
func (c *Conversation) TurnCount() int { return len(c.Turns) }

// MergeAnswers folds a new answer map into the accumulated set.
// Last write wins on duplicate question ids.
func (c *Conversation) MergeAnswers(answers map[string]string) {
	if c.AccumulatedAnswers == nil {
		c.AccumulatedAnswers = make(map[string]string, len(answers))
	}
	for k, v := range answers {
		c.AccumulatedAnswers[k] = v
	}
}
