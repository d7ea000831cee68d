// Package conversation drives the multi-turn clarification loop: when a
// classification comes back below the confidence threshold it turns the
// highest-value attribute gaps into questions, folds answers back into the
// pipeline and terminates on confidence, skip, cancel or the turn ceiling.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
	"github.com/clearfreight/hscodex/internal/usecase/analyze"
)

// classifier is the consumer interface over the classification pipeline.
type classifier interface {
	Classify(ctx context.Context, description, country string, answers map[string]string) ([]domain.ClassificationResult, error)
}

// repo is the consumer interface over the conversation repository.
type repo interface {
	Create(ctx context.Context, conv domain.Conversation) error
	Get(ctx context.Context, id string) (domain.Conversation, error)
	Update(ctx context.Context, id string, fn func(*domain.Conversation) error) (domain.Conversation, error)
}

// questionSource exposes the rule-set questions used to build differentials.
type questionSource interface {
	DetectCategory(tokens []string) (string, bool)
	Questions(category string) []domain.ClarifyingQuestion
}

// Config carries the clarification-loop knobs.
type Config struct {
	ConfidenceThreshold int
	MaxQuestions        int
	MaxTurns            int
}

// ResponseType distinguishes the two shapes a conversational reply can take.
type ResponseType string

const (
	// ResponseQuestions asks the caller to answer clarifying questions.
	ResponseQuestions ResponseType = "questions"
	// ResponseClassification carries final (or best-guess) results.
	ResponseClassification ResponseType = "classification"
)

// Response is the outcome of one conversational step.
type Response struct {
	Type           ResponseType                  `json:"response_type"`
	ConversationID string                        `json:"conversation_id,omitempty"`
	Status         domain.ConversationStatus     `json:"status,omitempty"`
	Questions      []domain.ClarifyingQuestion   `json:"questions,omitempty"`
	Results        []domain.ClassificationResult `json:"results,omitempty"`
}

// Manager owns the conversation state machine.
type Manager struct {
	classifier classifier
	repo       repo
	questions  questionSource
	completer  domain.Completer
	cfg        Config
	logger     *zap.Logger
}

// New creates a manager. completer may be nil; question text then stays in
// its deterministic rule-set form.
func New(
	c classifier,
	r repo,
	qs questionSource,
	completer domain.Completer,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		classifier: c,
		repo:       r,
		questions:  qs,
		completer:  completer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start classifies a description and, when confidence is below threshold and
// differentials exist, opens a conversation and returns its first questions.
func (m *Manager) Start(ctx context.Context, description, sessionID, country string) (Response, error) {
	results, err := m.classifier.Classify(ctx, description, country, nil)
	if err != nil {
		return Response{}, fmt.Errorf("initial classification: %w", err)
	}

	if results[0].Confidence >= m.cfg.ConfidenceThreshold {
		return Response{Type: ResponseClassification, Results: results}, nil
	}

	questions := m.buildQuestions(ctx, description, results, nil)
	if len(questions) == 0 {
		// nothing left to ask, the best guess is the answer
		return Response{Type: ResponseClassification, Results: results}, nil
	}

	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:                 uuid.NewString(),
		SessionID:          sessionID,
		Status:             domain.ConversationActive,
		ProductDescription: description,
		Country:            country,
		Turns: []domain.ConversationTurn{
			{Questions: questions, AskedAt: now},
		},
		AccumulatedAnswers: map[string]string{},
		BestResult:         &results[0],
		CreatedAt:          now,
	}
	if err := m.repo.Create(ctx, conv); err != nil {
		return Response{}, fmt.Errorf("create conversation: %w", err)
	}

	m.logger.Info("Conversation opened",
		zap.String("conversation_id", conv.ID),
		zap.Int("confidence", results[0].Confidence),
		zap.Int("questions", len(questions)))

	return Response{
		Type:           ResponseQuestions,
		ConversationID: conv.ID,
		Status:         domain.ConversationActive,
		Questions:      questions,
	}, nil
}

// Answer folds a turn of answers into the conversation and re-runs the
// pipeline. An empty answer set or skip=true terminates with the best guess.
func (m *Manager) Answer(
	ctx context.Context, conversationID string, answers map[string]string, skip bool,
) (Response, error) {
	conv, err := m.repo.Get(ctx, conversationID)
	if err != nil {
		return Response{}, err
	}
	if conv.Status != domain.ConversationActive {
		return Response{}, domain.NewConversationStateError(conversationID, conv.Status)
	}

	if skip || len(answers) == 0 {
		return m.finish(ctx, conversationID, domain.ConversationCompleted, nil)
	}

	updated, err := m.repo.Update(ctx, conversationID, func(c *domain.Conversation) error {
		c.MergeAnswers(answers)
		if n := len(c.Turns); n > 0 {
			c.Turns[n-1].Answers = answers
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}

	results, err := m.classifier.Classify(
		ctx, updated.ProductDescription, updated.Country, updated.AccumulatedAnswers)
	if err != nil {
		return Response{}, fmt.Errorf("reclassification: %w", err)
	}

	if results[0].Confidence >= m.cfg.ConfidenceThreshold {
		return m.finish(ctx, conversationID, domain.ConversationCompleted, results)
	}
	if updated.TurnCount() >= m.cfg.MaxTurns {
		// ceiling reached: best current guess, never a failure
		return m.finish(ctx, conversationID, domain.ConversationAbandoned, results)
	}

	questions := m.buildQuestions(ctx, updated.ProductDescription, results, updated.AccumulatedAnswers)
	if len(questions) == 0 {
		return m.finish(ctx, conversationID, domain.ConversationCompleted, results)
	}

	if _, err := m.repo.Update(ctx, conversationID, func(c *domain.Conversation) error {
		c.Turns = append(c.Turns, domain.ConversationTurn{
			Questions: questions, AskedAt: time.Now().UTC(),
		})
		c.BestResult = &results[0]
		return nil
	}); err != nil {
		return Response{}, err
	}

	return Response{
		Type:           ResponseQuestions,
		ConversationID: conversationID,
		Status:         domain.ConversationActive,
		Questions:      questions,
	}, nil
}

// Cancel abandons a conversation, returning the best guess so far if any.
func (m *Manager) Cancel(ctx context.Context, conversationID string) (Response, error) {
	conv, err := m.repo.Get(ctx, conversationID)
	if err != nil {
		return Response{}, err
	}
	if conv.Status != domain.ConversationActive {
		return Response{}, domain.NewConversationStateError(conversationID, conv.Status)
	}
	return m.finish(ctx, conversationID, domain.ConversationAbandoned, nil)
}

// finish transitions the conversation and returns the closing classification.
// With no fresh results the stored best guess (or a reclassification) is used.
func (m *Manager) finish(
	ctx context.Context, conversationID string,
	status domain.ConversationStatus, results []domain.ClassificationResult,
) (Response, error) {
	updated, err := m.repo.Update(ctx, conversationID, func(c *domain.Conversation) error {
		c.Status = status
		if len(results) > 0 {
			c.BestResult = &results[0]
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}

	if len(results) == 0 {
		if updated.BestResult != nil {
			results = []domain.ClassificationResult{*updated.BestResult}
		} else {
			results, err = m.classifier.Classify(
				ctx, updated.ProductDescription, updated.Country, updated.AccumulatedAnswers)
			if err != nil {
				return Response{}, fmt.Errorf("best-guess classification: %w", err)
			}
		}
	}

	m.logger.Info("Conversation closed",
		zap.String("conversation_id", conversationID),
		zap.String("status", string(status)),
		zap.Int("turns", updated.TurnCount()))

	return Response{
		Type:           ResponseClassification,
		ConversationID: conversationID,
		Status:         status,
		Results:        results,
	}, nil
}

// buildQuestions computes ranked, deduplicated differentials and humanizes
// their wording when a completion service is available.
func (m *Manager) buildQuestions(
	ctx context.Context, description string,
	results []domain.ClassificationResult, answered map[string]string,
) []domain.ClarifyingQuestion {
	tokens := analyze.Tokenize(description)
	category, ok := m.questions.DetectCategory(tokens)
	if !ok {
		return nil
	}

	pool := m.questions.Questions(category)
	questions := rankDifferentials(pool, results, answered, m.cfg.MaxQuestions)
	for i := range questions {
		questions[i] = withOtherEscape(m.humanize(ctx, description, questions[i]))
	}
	return questions
}
