package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
	"github.com/clearfreight/hscodex/internal/metrics"
)

const advisoryNote = "Specialist review recommended: this is a generic catch-all classification."

var otherWord = regexp.MustCompile(`\bother\b`)

// isCatchAll reports whether an entry is a generic "other" bucket: a ".99"
// or ".90" terminal segment, or an "other"/"not elsewhere specified"
// description.
func isCatchAll(e domain.TaxonomyEntry) bool {
	segs := strings.Split(e.Code, ".")
	last := segs[len(segs)-1]
	if len(segs) > 1 && (last == "99" || last == "90") {
		return true
	}

	desc := strings.ToLower(e.Description)
	return otherWord.MatchString(desc) || strings.Contains(desc, "not elsewhere specified")
}

// resolveCatchAll inspects the top-ranked candidate. A catch-all winner is
// either swapped for a more specific sibling (with a fixed confidence
// penalty for the residual uncertainty) or kept with its confidence capped
// and an advisory note appended. Resolution never raises confidence.
func (c *Classifier) resolveCatchAll(
	ctx context.Context, analysis domain.QueryAnalysis, top scored,
) scored {
	if !isCatchAll(top.cand.Entry) {
		return top
	}

	siblings := c.specificSiblings(ctx, top.cand.Entry.Code)
	if len(siblings) > 0 {
		if sib, ok := c.pickSibling(ctx, analysis, siblings); ok {
			swapped := top
			swapped.cand = domain.NewCandidate(sib, top.cand.Score, domain.SourceHierarchyChild)
			swapped.cand.Sources = top.cand.Sources
			swapped.confidence = top.confidence - float64(c.cfg.CatchAllSwapPenalty)
			if swapped.confidence < 0 {
				swapped.confidence = 0
			}
			swapped.advisory = fmt.Sprintf(
				"Substituted for the generic %s bucket as the more specific match.",
				top.cand.Entry.Code)
			c.logger.Info("Catch-all swapped for specific sibling",
				zap.String("from", top.cand.Entry.Code),
				zap.String("to", sib.Code))
			return swapped
		}
	}

	if top.confidence > float64(c.cfg.CatchAllCeiling) {
		top.confidence = float64(c.cfg.CatchAllCeiling)
	}
	top.advisory = advisoryNote
	return top
}

// specificSiblings fetches the non-catch-all codes sharing the top code's
// parent prefix.
func (c *Classifier) specificSiblings(ctx context.Context, code string) []domain.TaxonomyEntry {
	all, err := c.store.Siblings(ctx, code)
	if err != nil {
		c.logger.Warn("Sibling lookup failed", zap.String("code", code), zap.Error(err))
		return nil
	}

	var out []domain.TaxonomyEntry
	for _, s := range all {
		if !isCatchAll(s) {
			out = append(out, s)
		}
	}
	return out
}

// pickSibling asks the completion service whether one of the specific
// siblings fits the query better than the catch-all. Any failure answers
// "no" so the deterministic cap applies.
func (c *Classifier) pickSibling(
	ctx context.Context, analysis domain.QueryAnalysis, siblings []domain.TaxonomyEntry,
) (domain.TaxonomyEntry, bool) {
	if c.completer == nil {
		return domain.TaxonomyEntry{}, false
	}

	var list strings.Builder
	for _, s := range siblings {
		fmt.Fprintf(&list, "%s: %s\n", s.Code, s.Description)
	}

	res, err := c.completer.Complete(ctx, domain.CompletionRequest{
		System: "You pick the most specific fitting customs tariff code, or none.",
		Prompt: fmt.Sprintf(
			"Product: %q. The best match so far is a generic catch-all. Does one of these specific codes fit better?\n%sAnswer with the code, or \"none\".",
			analysis.Raw, list.String()),
		SchemaHint: `{"code": "none"}`,
		MaxTokens:  32,
	})
	if err != nil {
		metrics.CompletionFallbacksTotal.WithLabelValues("catchall").Inc()
		c.logger.Debug("Catch-all sibling check fell back", zap.Error(err))
		return domain.TaxonomyEntry{}, false
	}

	var parsed struct {
		Code string `json:"code"`
	}
	if json.Unmarshal([]byte(res.Text), &parsed) != nil {
		metrics.CompletionFallbacksTotal.WithLabelValues("catchall").Inc()
		return domain.TaxonomyEntry{}, false
	}

	for _, s := range siblings {
		if s.Code == parsed.Code {
			return s, true
		}
	}
	return domain.TaxonomyEntry{}, false
}
