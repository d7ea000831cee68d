package chi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
	conversationuc "github.com/clearfreight/hscodex/internal/usecase/conversation"
	healthuc "github.com/clearfreight/hscodex/internal/usecase/health"
)

type mockClassifier struct {
	classifyFn func(ctx context.Context, description, country string, answers map[string]string) ([]domain.ClassificationResult, error)
}

func (m *mockClassifier) Classify(
	ctx context.Context, description, country string, answers map[string]string,
) ([]domain.ClassificationResult, error) {
	return m.classifyFn(ctx, description, country, answers)
}

type mockConversations struct {
	startFn  func(ctx context.Context, description, sessionID, country string) (conversationuc.Response, error)
	answerFn func(ctx context.Context, id string, answers map[string]string, skip bool) (conversationuc.Response, error)
	cancelFn func(ctx context.Context, id string) (conversationuc.Response, error)
}

func (m *mockConversations) Start(
	ctx context.Context, description, sessionID, country string,
) (conversationuc.Response, error) {
	return m.startFn(ctx, description, sessionID, country)
}

func (m *mockConversations) Answer(
	ctx context.Context, id string, answers map[string]string, skip bool,
) (conversationuc.Response, error) {
	return m.answerFn(ctx, id, answers, skip)
}

func (m *mockConversations) Cancel(ctx context.Context, id string) (conversationuc.Response, error) {
	return m.cancelFn(ctx, id)
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

func okResults() []domain.ClassificationResult {
	return []domain.ClassificationResult{
		{Code: "0804.50", Description: "Mangoes, fresh or dried", Confidence: 92, Reasoning: "Matched by vector search."},
	}
}

func testRouter(cls classifier, conv conversations, health healthChecker, apiKeys []string) http.Handler {
	if cls == nil {
		cls = &mockClassifier{
			classifyFn: func(context.Context, string, string, map[string]string) ([]domain.ClassificationResult, error) {
				return okResults(), nil
			},
		}
	}
	if conv == nil {
		conv = &mockConversations{
			startFn: func(context.Context, string, string, string) (conversationuc.Response, error) {
				return conversationuc.Response{Type: conversationuc.ResponseClassification, Results: okResults()}, nil
			},
			answerFn: func(context.Context, string, map[string]string, bool) (conversationuc.Response, error) {
				return conversationuc.Response{Type: conversationuc.ResponseClassification, Results: okResults()}, nil
			},
			cancelFn: func(context.Context, string) (conversationuc.Response, error) {
				return conversationuc.Response{Type: conversationuc.ResponseClassification, Results: okResults()}, nil
			},
		}
	}
	if health == nil {
		health = &mockHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
		}}
	}
	return NewServer(cls, conv, health, zap.NewNop()).Router(apiKeys)
}
