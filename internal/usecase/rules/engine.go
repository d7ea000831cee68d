// Package rules evaluates category-specific decision trees against extracted
// query attributes and accumulated user answers, independent of retrieval.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
	"github.com/clearfreight/hscodex/internal/usecase/analyze"
	"github.com/clearfreight/hscodex/internal/usecase/scoring"
)

// Engine holds the loaded rule sets and evaluates them per query.
type Engine struct {
	sets   map[string]RuleSet
	logger *zap.Logger
}

// New creates an engine over preloaded rule sets.
func New(sets map[string]RuleSet, logger *zap.Logger) *Engine {
	return &Engine{sets: sets, logger: logger}
}

// NewFromDir loads every rule set under dir.
func NewFromDir(dir string, logger *zap.Logger) (*Engine, error) {
	sets, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return New(sets, logger), nil
}

// DetectCategory picks the rule set whose detection keywords overlap the
// query tokens the most. Keyword membership only, nothing semantic.
func (e *Engine) DetectCategory(tokens []string) (string, bool) {
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[strings.ToLower(t)] = true
	}

	best := ""
	bestHits := 0
	for _, rs := range e.sets {
		hits := 0
		for _, kw := range rs.Keywords {
			if tokenSet[strings.ToLower(kw)] {
				hits++
			}
		}
		if hits > bestHits || (hits == bestHits && hits > 0 && rs.Category < best) {
			best = rs.Category
			bestHits = hits
		}
	}
	return best, bestHits > 0
}

// Questions returns the clarifying questions defined for a category.
func (e *Engine) Questions(category string) []domain.ClarifyingQuestion {
	rs, ok := e.sets[category]
	if !ok {
		return nil
	}
	return rs.Questions
}

// Evaluate runs the detected category's rules against the query and answers
// and returns rule-sourced candidates. A missing rule set yields an empty
// contribution wrapped in ErrRuleSetMissing; callers treat it as non-fatal.
func (e *Engine) Evaluate(analysis domain.QueryAnalysis, answers map[string]string) ([]domain.Candidate, error) {
	category, ok := e.DetectCategory(analyze.Tokenize(analysis.Raw))
	if !ok {
		return nil, fmt.Errorf("no category for query: %w", domain.ErrRuleSetMissing)
	}
	rs := e.sets[category]

	in := matchInput{
		query:   strings.ToLower(analysis.Raw),
		answers: answers,
	}

	var matched []Rule
	for _, r := range rs.Rules {
		if ruleMatches(r, in) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ConfidenceBoost > matched[j].ConfidenceBoost
	})

	seen := make(map[string]bool)
	var out []domain.Candidate
	for _, r := range matched {
		conf := scoring.RuleConfidence(len(r.Conditions), r.ConfidenceBoost)
		for _, code := range r.SuggestedCodes {
			if seen[code] {
				continue
			}
			seen[code] = true
			out = append(out, domain.NewCandidate(
				domain.TaxonomyEntry{Code: code}, conf, domain.SourceRule))
		}
	}

	e.logger.Debug("Rule evaluation",
		zap.String("category", category),
		zap.Int("matched_rules", len(matched)),
		zap.Int("suggested_codes", len(out)))

	return out, nil
}

func ruleMatches(r Rule, in matchInput) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	for _, c := range r.Conditions {
		if !c.matches(in) {
			return false
		}
	}
	return true
}
