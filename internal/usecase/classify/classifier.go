// Package classify orchestrates one classification attempt: retrieval and
// rule candidates are merged, relevance-filtered, consensus-boosted, ranked
// and passed through catch-all resolution. Nothing here is fatal; the worst
// case output is a zero-confidence placeholder result.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
	"github.com/clearfreight/hscodex/internal/metrics"
	"github.com/clearfreight/hscodex/internal/usecase/analyze"
	"github.com/clearfreight/hscodex/internal/usecase/scoring"
)

// retriever is the consumer interface over the candidate retriever.
type retriever interface {
	Retrieve(ctx context.Context, analysis domain.QueryAnalysis) (*domain.CandidateSet, error)
}

// ruleEngine is the consumer interface over the rule engine.
type ruleEngine interface {
	Evaluate(analysis domain.QueryAnalysis, answers map[string]string) ([]domain.Candidate, error)
}

// codeStore is the slice of the taxonomy repository the classifier needs.
type codeStore interface {
	Get(ctx context.Context, code string) (domain.TaxonomyEntry, bool, error)
	Siblings(ctx context.Context, code string) ([]domain.TaxonomyEntry, error)
}

// Config carries the aggregation and catch-all calibration knobs.
type Config struct {
	SimilarityFloor     float64
	RelevanceFloor      int
	RelevanceEnabled    bool
	RelevanceParallel   int
	CatchAllCeiling     int
	CatchAllSwapPenalty int
	MaxAlternatives     int
}

// Classifier runs the full pipeline for one attempt.
type Classifier struct {
	retriever retriever
	rules     ruleEngine
	completer domain.Completer
	store     codeStore
	cfg       Config
	logger    *zap.Logger
}

// New creates a classifier. completer may be nil; every completion-backed
// step then uses its deterministic fallback.
func New(
	r retriever,
	rules ruleEngine,
	completer domain.Completer,
	store codeStore,
	cfg Config,
	logger *zap.Logger,
) *Classifier {
	return &Classifier{
		retriever: r,
		rules:     rules,
		completer: completer,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}
}

// Classify assigns codes to a free-text description. Accumulated answers act
// both as rule-engine conditions and as query modifiers. The returned list
// is never empty and the method never fails past its boundary: an empty
// candidate set yields a placeholder result.
func (c *Classifier) Classify(
	ctx context.Context, description, country string, answers map[string]string,
) ([]domain.ClassificationResult, error) {
	start := time.Now()

	analysis := analyze.Analyze(augmentQuery(description, answers))

	set := c.gather(ctx, analysis, answers)
	if set.Len() == 0 {
		metrics.ClassificationsTotal.WithLabelValues("no_candidates").Inc()
		return []domain.ClassificationResult{placeholderResult(description)}, nil
	}

	ranked := c.aggregate(ctx, analysis, set)
	if len(ranked) == 0 {
		metrics.ClassificationsTotal.WithLabelValues("no_candidates").Inc()
		return []domain.ClassificationResult{placeholderResult(description)}, nil
	}

	ranked[0] = c.resolveCatchAll(ctx, analysis, ranked[0])

	results := c.assemble(ranked)
	results[0].Reasoning = c.finalReasoning(ctx, analysis, results[0])

	metrics.ClassificationsTotal.WithLabelValues("classified").Inc()
	metrics.ClassificationConfidence.Observe(float64(results[0].Confidence))
	metrics.StageDuration.WithLabelValues("classify").Observe(time.Since(start).Seconds())

	c.logger.Info("Classification complete",
		zap.String("code", results[0].Code),
		zap.Int("confidence", results[0].Confidence),
		zap.String("country", country),
		zap.Duration("took", time.Since(start)))

	return results, nil
}

// gather joins retrieval and rule candidates into one set. Both sources are
// allowed to fail; the set just stays smaller.
func (c *Classifier) gather(
	ctx context.Context, analysis domain.QueryAnalysis, answers map[string]string,
) *domain.CandidateSet {
	set, err := c.retriever.Retrieve(ctx, analysis)
	if err != nil {
		c.logger.Warn("Retrieval degraded", zap.Error(err))
	}
	if set == nil {
		set = domain.NewCandidateSet()
	}

	ruleCands, err := c.rules.Evaluate(analysis, answers)
	if err != nil && !errors.Is(err, domain.ErrRuleSetMissing) {
		c.logger.Warn("Rule evaluation failed", zap.Error(err))
	}
	for _, rc := range ruleCands {
		set.Add(c.hydrate(ctx, rc))
	}

	return set
}

// hydrate fills in the taxonomy entry for a code-only rule candidate.
func (c *Classifier) hydrate(ctx context.Context, cand domain.Candidate) domain.Candidate {
	if cand.Entry.Description != "" {
		return cand
	}
	entry, ok, err := c.store.Get(ctx, cand.Entry.Code)
	if err != nil || !ok {
		return cand
	}
	cand.Entry = entry
	return cand
}

// scored pairs a candidate with its aggregated confidence. advisory is
// extra reasoning text added by catch-all resolution.
type scored struct {
	cand       domain.Candidate
	confidence float64
	advisory   string
}

// aggregate normalizes method-local scores into confidences, applies the
// relevance filter and state penalty, boosts consensus and ranks the result.
func (c *Classifier) aggregate(
	ctx context.Context, analysis domain.QueryAnalysis, set *domain.CandidateSet,
) []scored {
	queryState := c.detectState(ctx, analysis)

	var out []scored
	for _, cand := range set.All() {
		base := c.baseConfidence(cand)
		conf := scoring.ConsensusBoost(base, cand.SourceCount())
		conf *= scoring.StatePenalty(queryState, entryState(cand.Entry))
		out = append(out, scored{cand: cand, confidence: conf})
	}

	out = c.filterByRelevance(ctx, analysis, out)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].confidence != out[j].confidence {
			return out[i].confidence > out[j].confidence
		}
		return len(out[i].cand.Entry.Code) > len(out[j].cand.Entry.Code)
	})
	return out
}

// baseConfidence converts a candidate's best method-local evidence into a
// 0-100 confidence.
func (c *Classifier) baseConfidence(cand domain.Candidate) float64 {
	best := 0.0
	if cand.HasSource(domain.SourceVector) {
		best = scoring.SimilarityConfidence(cand.Similarity, c.cfg.SimilarityFloor)
	}
	if cand.HasSource(domain.SourceRule) {
		// rule scores are already confidences
		best = max(best, min(cand.Score, 100))
	}
	if cand.HasSource(domain.SourceKeyword) ||
		cand.HasSource(domain.SourceHierarchyChild) ||
		cand.HasSource(domain.SourceHierarchyDescendant) {
		best = max(best, scoring.KeywordConfidence(cand.Score))
	}
	return best
}

// assemble turns the ranked list into user-facing results. The top result
// carries the runners-up as alternatives.
func (c *Classifier) assemble(ranked []scored) []domain.ClassificationResult {
	limit := c.cfg.MaxAlternatives + 1
	if limit > len(ranked) {
		limit = len(ranked)
	}

	results := make([]domain.ClassificationResult, 0, limit)
	for _, s := range ranked[:limit] {
		reasoning := reasoningFor(s.cand)
		if s.advisory != "" {
			reasoning += " " + s.advisory
		}
		results = append(results, domain.ClassificationResult{
			Code:        s.cand.Entry.Code,
			Description: s.cand.Entry.Description,
			Confidence:  scoring.Round(s.confidence),
			Reasoning:   reasoning,
		})
	}

	for _, s := range ranked[1:limit] {
		results[0].Alternatives = append(results[0].Alternatives, domain.Alternative{
			Code:        s.cand.Entry.Code,
			Description: s.cand.Entry.Description,
		})
	}
	return results
}

// finalReasoning asks the completion service to explain the top result in
// plain language. Any failure keeps the deterministic method line.
func (c *Classifier) finalReasoning(
	ctx context.Context, analysis domain.QueryAnalysis, top domain.ClassificationResult,
) string {
	if c.completer == nil {
		return top.Reasoning
	}

	res, err := c.completer.Complete(ctx, domain.CompletionRequest{
		System: "You explain customs tariff classifications in one or two short sentences.",
		Prompt: fmt.Sprintf(
			"Product: %q. Assigned code %s (%s) with confidence %d/100. Explain in plain language why this code fits.",
			analysis.Raw, top.Code, top.Description, top.Confidence),
		SchemaHint: `{"reasoning": ""}`,
		MaxTokens:  128,
	})
	if err != nil {
		metrics.CompletionFallbacksTotal.WithLabelValues("reasoning").Inc()
		c.logger.Debug("Final reasoning fell back", zap.Error(err))
		return top.Reasoning
	}

	var parsed struct {
		Reasoning string `json:"reasoning"`
	}
	if json.Unmarshal([]byte(res.Text), &parsed) != nil || strings.TrimSpace(parsed.Reasoning) == "" {
		metrics.CompletionFallbacksTotal.WithLabelValues("reasoning").Inc()
		return top.Reasoning
	}
	return strings.TrimSpace(parsed.Reasoning)
}

// reasoningFor builds the deterministic reasoning line for a candidate.
func reasoningFor(cand domain.Candidate) string {
	var methods []string
	for _, src := range []domain.Source{
		domain.SourceKeyword, domain.SourceVector, domain.SourceRule,
		domain.SourceHierarchyChild, domain.SourceHierarchyDescendant,
	} {
		if cand.HasSource(src) {
			methods = append(methods, string(src))
		}
	}
	reason := fmt.Sprintf("Matched via %s retrieval.", strings.Join(methods, ", "))
	if cand.SourceCount() > 1 {
		reason += fmt.Sprintf(" %d independent methods agree on this code.", cand.SourceCount())
	}
	return reason
}

func placeholderResult(description string) domain.ClassificationResult {
	return domain.ClassificationResult{
		Confidence: 0,
		Reasoning: fmt.Sprintf(
			"No classification possible for %q: no taxonomy entries matched by keyword, similarity or rules. Refine the product description or consult a specialist.",
			description),
	}
}

// augmentQuery folds accumulated answers into the query text so retrieval
// sees them as additional signal.
func augmentQuery(description string, answers map[string]string) string {
	if len(answers) == 0 {
		return description
	}
	vals := make([]string, 0, len(answers))
	for _, v := range answers {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return description + " " + strings.Join(vals, " ")
}

// entryState infers a candidate's product state from its description.
func entryState(e domain.TaxonomyEntry) domain.ProductState {
	a := analyze.Analyze(e.Description)
	return analyze.StateFromModifiers(a.StateMods)
}
