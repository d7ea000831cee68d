// Package retrieve gathers classification candidates from three independent
// strategies: keyword overlap, embedding similarity and hierarchy expansion.
// A failed strategy degrades the result, it never aborts the others.
package retrieve

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
	"github.com/clearfreight/hscodex/internal/metrics"
	"github.com/clearfreight/hscodex/internal/repository/taxonomy"
	"github.com/clearfreight/hscodex/internal/usecase/analyze"
	"github.com/clearfreight/hscodex/internal/usecase/scoring"
)

// codeStore is the consumer interface over the taxonomy repository (ISP).
type codeStore interface {
	FindByKeywords(ctx context.Context, tokens []string, topK int) ([]taxonomy.Match, error)
	NearestByEmbedding(ctx context.Context, vector []float32, k int, minSimilarity float64) ([]taxonomy.Match, error)
	FindChildren(ctx context.Context, code string) ([]domain.TaxonomyEntry, error)
	FindDescendants(ctx context.Context, code string) ([]domain.TaxonomyEntry, error)
}

// Config carries the retrieval calibration knobs.
type Config struct {
	SimilarityFloor   float64
	VectorTopK        int
	ChildDecay        float64
	DescendantDecay   float64
	ExpandDescendants bool
	SubjectBoost      float64
	ContextPenalty    float64
}

// Retriever merges keyword, vector and hierarchy candidates into one
// deduplicated set.
type Retriever struct {
	store    codeStore
	embedder domain.Embedder
	cfg      Config
	logger   *zap.Logger
}

// New creates a retriever.
func New(store codeStore, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Retriever {
	return &Retriever{store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve runs the keyword and vector strategies concurrently, merges their
// output with the subject boost and context penalty, then expands the code
// hierarchy. Returns ErrRetrievalUnavailable only when every strategy failed;
// the (possibly empty) set is always usable.
func (r *Retriever) Retrieve(ctx context.Context, analysis domain.QueryAnalysis) (*domain.CandidateSet, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)
	merged := domain.NewCandidateSet()

	collect := func(strategy string, run func() (*domain.CandidateSet, error)) {
		defer wg.Done()
		set, err := run()
		if err != nil {
			metrics.RetrievalFailuresTotal.WithLabelValues(strategy).Inc()
			r.logger.Warn("Retrieval strategy failed",
				zap.String("strategy", strategy), zap.Error(err))
			mu.Lock()
			failures++
			mu.Unlock()
			return
		}
		mu.Lock()
		merged.AddAll(set)
		mu.Unlock()
	}

	wg.Add(2)
	go collect("keyword", func() (*domain.CandidateSet, error) {
		return r.byKeywords(ctx, analysis)
	})
	go collect("vector", func() (*domain.CandidateSet, error) {
		return r.byVector(ctx, analysis)
	})
	wg.Wait()

	if failures == 2 {
		return merged, fmt.Errorf("all retrieval strategies failed: %w", domain.ErrRetrievalUnavailable)
	}

	r.applySubjectWeighting(merged, analysis)

	if err := r.ExpandHierarchy(ctx, merged); err != nil {
		metrics.RetrievalFailuresTotal.WithLabelValues("hierarchy").Inc()
		r.logger.Warn("Hierarchy expansion failed", zap.Error(err))
	}

	return merged, nil
}

func (r *Retriever) byKeywords(ctx context.Context, analysis domain.QueryAnalysis) (*domain.CandidateSet, error) {
	tokens := analyze.Tokenize(analysis.Raw)
	if len(tokens) == 0 {
		return domain.NewCandidateSet(), nil
	}

	matches, err := r.store.FindByKeywords(ctx, tokens, r.cfg.VectorTopK)
	if err != nil {
		return nil, fmt.Errorf("keyword retrieval: %w", err)
	}

	set := domain.NewCandidateSet()
	for _, m := range matches {
		set.Add(domain.NewCandidate(m.Entry, m.Score, domain.SourceKeyword))
	}
	return set, nil
}

func (r *Retriever) byVector(ctx context.Context, analysis domain.QueryAnalysis) (*domain.CandidateSet, error) {
	emb, err := r.embedder.Embed(ctx, analysis.Raw)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	matches, err := r.store.NearestByEmbedding(ctx, emb.Embedding, r.cfg.VectorTopK, r.cfg.SimilarityFloor)
	if err != nil {
		return nil, fmt.Errorf("vector retrieval: %w", err)
	}

	set := domain.NewCandidateSet()
	for _, m := range matches {
		c := domain.NewCandidate(m.Entry, m.Score, domain.SourceVector)
		c.Similarity = m.Score
		set.Add(c)
	}
	return set, nil
}

// ExpandHierarchy adds children (and optionally deeper descendants) of every
// non-hierarchy candidate with a decayed score. Expansion never starts from a
// hierarchy-sourced candidate, so running it again changes nothing.
func (r *Retriever) ExpandHierarchy(ctx context.Context, set *domain.CandidateSet) error {
	var firstErr error

	for _, parent := range set.All() {
		if hierarchyOnly(parent) {
			continue
		}

		children, err := r.store.FindChildren(ctx, parent.Entry.Code)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, child := range children {
			set.Add(domain.NewCandidate(child,
				scoring.DecayScore(parent.Score, r.cfg.ChildDecay),
				domain.SourceHierarchyChild))
		}

		if !r.cfg.ExpandDescendants {
			continue
		}
		descendants, err := r.store.FindDescendants(ctx, parent.Entry.Code)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, d := range descendants {
			if domain.IsChildOf(d.Code, parent.Entry.Code) {
				continue // already added with the child decay
			}
			set.Add(domain.NewCandidate(d,
				scoring.DecayScore(parent.Score, r.cfg.DescendantDecay),
				domain.SourceHierarchyDescendant))
		}
	}

	return firstErr
}

// applySubjectWeighting boosts candidates matching the primary subject and
// penalizes, without eliminating, candidates matching only the usage context.
// Keeps "engine for trucks" from ranking whole-vehicle codes above engines.
func (r *Retriever) applySubjectWeighting(set *domain.CandidateSet, analysis domain.QueryAnalysis) {
	if !analysis.HasContext() {
		return
	}
	subjectTokens := analyze.Tokenize(analysis.PrimarySubject)
	if len(subjectTokens) == 0 {
		return
	}

	for _, c := range set.All() {
		text := entryText(c.Entry)
		switch {
		case containsAny(text, subjectTokens):
			c.Score *= r.cfg.SubjectBoost
		case containsAny(text, analysis.Context):
			c.Score *= r.cfg.ContextPenalty
		}
		set.Replace(c)
	}
}

func entryText(e domain.TaxonomyEntry) string {
	parts := append([]string{strings.ToLower(e.Description)}, e.Keywords...)
	parts = append(parts, e.Synonyms...)
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAny(text string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(text, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func hierarchyOnly(c domain.Candidate) bool {
	for src := range c.Sources {
		if src != domain.SourceHierarchyChild && src != domain.SourceHierarchyDescendant {
			return false
		}
	}
	return true
}
