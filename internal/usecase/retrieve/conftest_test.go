package retrieve

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
	"github.com/clearfreight/hscodex/internal/repository/taxonomy"
)

type mockStore struct {
	findByKeywordsFn      func(ctx context.Context, tokens []string, topK int) ([]taxonomy.Match, error)
	nearestByEmbeddingFn  func(ctx context.Context, vector []float32, k int, minSimilarity float64) ([]taxonomy.Match, error)
	findChildrenFn        func(ctx context.Context, code string) ([]domain.TaxonomyEntry, error)
	findDescendantsFn     func(ctx context.Context, code string) ([]domain.TaxonomyEntry, error)
	findChildrenCallCount int
}

func (m *mockStore) FindByKeywords(ctx context.Context, tokens []string, topK int) ([]taxonomy.Match, error) {
	if m.findByKeywordsFn != nil {
		return m.findByKeywordsFn(ctx, tokens, topK)
	}
	return nil, nil
}

func (m *mockStore) NearestByEmbedding(ctx context.Context, vector []float32, k int, minSimilarity float64) ([]taxonomy.Match, error) {
	if m.nearestByEmbeddingFn != nil {
		return m.nearestByEmbeddingFn(ctx, vector, k, minSimilarity)
	}
	return nil, nil
}

func (m *mockStore) FindChildren(ctx context.Context, code string) ([]domain.TaxonomyEntry, error) {
	m.findChildrenCallCount++
	if m.findChildrenFn != nil {
		return m.findChildrenFn(ctx, code)
	}
	return nil, nil
}

func (m *mockStore) FindDescendants(ctx context.Context, code string) ([]domain.TaxonomyEntry, error) {
	if m.findDescendantsFn != nil {
		return m.findDescendantsFn(ctx, code)
	}
	return nil, nil
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func testConfig() Config {
	return Config{
		SimilarityFloor:   0.3,
		VectorTopK:        20,
		ChildDecay:        0.85,
		DescendantDecay:   0.7,
		ExpandDescendants: true,
		SubjectBoost:      1.25,
		ContextPenalty:    0.6,
	}
}

func newTestRetriever(t *testing.T, store *mockStore, emb *mockEmbedder) *Retriever {
	t.Helper()
	if emb == nil {
		emb = &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}}
	}
	return New(store, emb, testConfig(), zap.NewNop())
}

func entry(code, description string, keywords ...string) domain.TaxonomyEntry {
	return domain.TaxonomyEntry{Code: code, Description: description, Keywords: keywords}
}
