package sdk

import "fmt"

// ClassifyRequest is the input of Classify.
type ClassifyRequest struct {
	Description string            `json:"description"`
	Country     string            `json:"country,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
}

// Alternative is a runner-up code on a classification result.
type Alternative struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ClassificationResult is one suggested code with its confidence.
type ClassificationResult struct {
	Code         string        `json:"code"`
	Description  string        `json:"description"`
	Confidence   int           `json:"confidence"`
	Reasoning    string        `json:"reasoning"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

type classifyResponse struct {
	Results []ClassificationResult `json:"results"`
}

// StartConversationRequest is the input of StartConversation.
type StartConversationRequest struct {
	Description string `json:"description"`
	SessionID   string `json:"session_id,omitempty"`
	Country     string `json:"country,omitempty"`
}

type answerRequest struct {
	Answers map[string]string `json:"answers,omitempty"`
	Skip    bool              `json:"skip,omitempty"`
}

// QuestionOption is one selectable answer to a clarifying question.
type QuestionOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ClarifyingQuestion is a question the server needs answered to narrow the
// classification.
type ClarifyingQuestion struct {
	ID      string           `json:"id"`
	Text    string           `json:"text"`
	Options []QuestionOption `json:"options"`
}

// ConversationResponse is the outcome of a conversational step: either more
// questions or a final classification.
type ConversationResponse struct {
	Type           string                 `json:"response_type"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Status         string                 `json:"status,omitempty"`
	Questions      []ClarifyingQuestion   `json:"questions,omitempty"`
	Results        []ClassificationResult `json:"results,omitempty"`
}

// Response types on ConversationResponse.Type.
const (
	ResponseQuestions      = "questions"
	ResponseClassification = "classification"
)

// HealthReport is the body of /healthz.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Status     string `json:"status,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hscodex: %s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// IsNotFound reports whether the error is an unknown-conversation reply.
func (e *APIError) IsNotFound() bool { return e.Code == "conversation_not_found" }

// IsConversationClosed reports whether the conversation is already
// completed or abandoned.
func (e *APIError) IsConversationClosed() bool { return e.Code == "conversation_closed" }
