package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearfreight/hscodex/internal/domain"
	"github.com/clearfreight/hscodex/internal/metrics"
	"github.com/clearfreight/hscodex/internal/usecase/analyze"
)

// detectState asks the completion service how processed the queried product
// is. Falls back to the state-modifier vocabulary on any failure.
func (c *Classifier) detectState(ctx context.Context, analysis domain.QueryAnalysis) domain.ProductState {
	fallback := analyze.StateFromModifiers(analysis.StateMods)
	if c.completer == nil {
		return fallback
	}

	res, err := c.completer.Complete(ctx, domain.CompletionRequest{
		System:     "You classify how processed a traded product is for customs purposes.",
		Prompt:     fmt.Sprintf("Product: %q. Pick one state: fresh, raw, processed, packaged, intermediate, finished.", analysis.Raw),
		SchemaHint: `{"state": "fresh|raw|processed|packaged|intermediate|finished"}`,
		MaxTokens:  32,
	})
	if err != nil {
		metrics.CompletionFallbacksTotal.WithLabelValues("state").Inc()
		c.logger.Debug("State detection fell back", zap.Error(err))
		return fallback
	}

	var parsed struct {
		State string `json:"state"`
	}
	if json.Unmarshal([]byte(res.Text), &parsed) != nil {
		metrics.CompletionFallbacksTotal.WithLabelValues("state").Inc()
		return fallback
	}
	if state := domain.ParseProductState(parsed.State); state != domain.StateUnknown {
		return state
	}
	return fallback
}

// filterByRelevance asks the completion service for a 0-100 relevance
// judgment per candidate with bounded parallelism and drops candidates below
// the floor as false positives. Any failure keeps the candidate: the filter
// only ever removes with positive evidence.
func (c *Classifier) filterByRelevance(
	ctx context.Context, analysis domain.QueryAnalysis, in []scored,
) []scored {
	if !c.cfg.RelevanceEnabled || c.completer == nil || len(in) == 0 {
		return in
	}

	parallel := c.cfg.RelevanceParallel
	if parallel <= 0 {
		parallel = 1
	}

	keep := make([]bool, len(in))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := range in {
		i := i
		g.Go(func() error {
			relevant := c.judgeRelevance(gctx, analysis, in[i].cand.Entry)
			mu.Lock()
			keep[i] = relevant
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, they fall back

	out := make([]scored, 0, len(in))
	for i, s := range in {
		if keep[i] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		// the judge rejected everything; distrust it over the retrievers
		return in
	}
	return out
}

// judgeRelevance returns false only on a confident below-floor judgment.
func (c *Classifier) judgeRelevance(
	ctx context.Context, analysis domain.QueryAnalysis, entry domain.TaxonomyEntry,
) bool {
	res, err := c.completer.Complete(ctx, domain.CompletionRequest{
		System: "You judge whether a customs tariff entry matches a product description.",
		Prompt: fmt.Sprintf("Product: %q. Tariff entry %s: %q. Score the match 0-100.",
			analysis.Raw, entry.Code, entry.Description),
		SchemaHint: `{"relevance": 0}`,
		MaxTokens:  32,
	})
	if err != nil {
		metrics.CompletionFallbacksTotal.WithLabelValues("relevance").Inc()
		c.logger.Debug("Relevance judgment fell back",
			zap.String("code", entry.Code), zap.Error(err))
		return true
	}

	var parsed struct {
		Relevance *int `json:"relevance"`
	}
	if json.Unmarshal([]byte(res.Text), &parsed) != nil || parsed.Relevance == nil {
		metrics.CompletionFallbacksTotal.WithLabelValues("relevance").Inc()
		return true
	}
	return *parsed.Relevance >= c.cfg.RelevanceFloor
}
