package conversation

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
)

type mockClassifier struct {
	// resultsFn lets a test vary confidence with the accumulated answers.
	resultsFn func(answers map[string]string) []domain.ClassificationResult
	calls     int
}

func (m *mockClassifier) Classify(
	_ context.Context, _, _ string, answers map[string]string,
) ([]domain.ClassificationResult, error) {
	m.calls++
	return m.resultsFn(answers), nil
}

// memRepo is an in-memory conversation repository for tests.
type memRepo struct {
	convs map[string]domain.Conversation
}

func newMemRepo() *memRepo {
	return &memRepo{convs: make(map[string]domain.Conversation)}
}

func (m *memRepo) Create(_ context.Context, conv domain.Conversation) error {
	m.convs[conv.ID] = conv
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (domain.Conversation, error) {
	conv, ok := m.convs[id]
	if !ok {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}
	return conv, nil
}

func (m *memRepo) Update(
	_ context.Context, id string, fn func(*domain.Conversation) error,
) (domain.Conversation, error) {
	conv, ok := m.convs[id]
	if !ok {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}
	if err := fn(&conv); err != nil {
		return domain.Conversation{}, err
	}
	m.convs[id] = conv
	return conv, nil
}

type mockQuestions struct {
	category  string
	questions []domain.ClarifyingQuestion
}

func (m *mockQuestions) DetectCategory(_ []string) (string, bool) {
	return m.category, m.category != ""
}

func (m *mockQuestions) Questions(_ string) []domain.ClarifyingQuestion {
	return m.questions
}

func testQuestions() []domain.ClarifyingQuestion {
	return []domain.ClarifyingQuestion{
		{
			ID:   "vehicle_type",
			Text: "What type of vehicle is the part for?",
			Options: []domain.QuestionOption{
				{Value: "motorcycle", Label: "Motorcycle", ImpliedCodes: []string{"8714.10"}},
				{Value: "car", Label: "Passenger car", ImpliedCodes: []string{"8708.30"}},
			},
		},
		{
			ID:   "material",
			Text: "What is the main material?",
			Options: []domain.QuestionOption{
				{Value: "ceramic", Label: "Ceramic", ImpliedCodes: []string{"6813.20"}},
				{Value: "metal", Label: "Metal", ImpliedCodes: []string{"8708.30"}},
			},
		},
	}
}

func lowConfidenceResults() []domain.ClassificationResult {
	return []domain.ClassificationResult{
		{
			Code: "8708.30", Description: "brakes", Confidence: 60,
			Alternatives: []domain.Alternative{
				{Code: "8714.10", Description: "motorcycle parts"},
				{Code: "6813.20", Description: "friction material"},
			},
		},
	}
}

func highConfidenceResults() []domain.ClassificationResult {
	return []domain.ClassificationResult{
		{Code: "8714.10", Description: "motorcycle parts", Confidence: 92},
	}
}

func testManagerConfig() Config {
	return Config{ConfidenceThreshold: 85, MaxQuestions: 3, MaxTurns: 3}
}

func newTestManager(t *testing.T, mc *mockClassifier, r *memRepo) *Manager {
	t.Helper()
	if r == nil {
		r = newMemRepo()
	}
	qs := &mockQuestions{category: "vehicle-parts", questions: testQuestions()}
	return New(mc, r, qs, nil, testManagerConfig(), zap.NewNop())
}
