package classify

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
)

type mockRetriever struct {
	set *domain.CandidateSet
	err error
}

func (m *mockRetriever) Retrieve(_ context.Context, _ domain.QueryAnalysis) (*domain.CandidateSet, error) {
	return m.set, m.err
}

type mockRules struct {
	cands []domain.Candidate
	err   error
}

func (m *mockRules) Evaluate(_ domain.QueryAnalysis, _ map[string]string) ([]domain.Candidate, error) {
	return m.cands, m.err
}

type mockCompleter struct {
	completeFn func(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
	calls      int
}

func (m *mockCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.calls++
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return domain.CompletionResult{Text: "{}"}, nil
}

type mockStore struct {
	entries  map[string]domain.TaxonomyEntry
	siblings map[string][]domain.TaxonomyEntry
}

func (m *mockStore) Get(_ context.Context, code string) (domain.TaxonomyEntry, bool, error) {
	e, ok := m.entries[code]
	return e, ok, nil
}

func (m *mockStore) Siblings(_ context.Context, code string) ([]domain.TaxonomyEntry, error) {
	return m.siblings[code], nil
}

func testConfig() Config {
	return Config{
		SimilarityFloor:     0.3,
		RelevanceFloor:      50,
		RelevanceEnabled:    false,
		RelevanceParallel:   4,
		CatchAllCeiling:     85,
		CatchAllSwapPenalty: 5,
		MaxAlternatives:     3,
	}
}

func newTestClassifier(
	t *testing.T, r *mockRetriever, rules *mockRules, cp domain.Completer, store *mockStore, cfg Config,
) *Classifier {
	t.Helper()
	if r == nil {
		r = &mockRetriever{set: domain.NewCandidateSet()}
	}
	if rules == nil {
		rules = &mockRules{err: domain.ErrRuleSetMissing}
	}
	if store == nil {
		store = &mockStore{}
	}
	return New(r, rules, cp, store, cfg, zap.NewNop())
}

func entry(code, description string, keywords ...string) domain.TaxonomyEntry {
	return domain.TaxonomyEntry{Code: code, Description: description, Keywords: keywords}
}

func vectorCandidate(e domain.TaxonomyEntry, similarity float64) domain.Candidate {
	c := domain.NewCandidate(e, similarity, domain.SourceVector)
	c.Similarity = similarity
	return c
}
