package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
	"github.com/clearfreight/hscodex/internal/metrics"
)

// differential is a candidate question scored by how much ambiguity it can
// eliminate.
type differential struct {
	question domain.ClarifyingQuestion
	affected map[string]bool // candidate codes its options discriminate
	value    int
}

// rankDifferentials selects up to limit unanswered questions, ordered by how
// many of the ambiguous candidate codes their options discriminate, then
// deduplicated by affected-code overlap and near-identical option lists.
func rankDifferentials(
	pool []domain.ClarifyingQuestion,
	results []domain.ClassificationResult,
	answered map[string]string,
	limit int,
) []domain.ClarifyingQuestion {
	if limit <= 0 {
		return nil
	}

	ambiguous := ambiguousCodes(results)

	var diffs []differential
	for _, q := range pool {
		if _, done := answered[q.ID]; done {
			continue
		}
		d := differential{question: q, affected: map[string]bool{}}
		for _, opt := range q.Options {
			for _, code := range opt.ImpliedCodes {
				if ambiguous[code] || codePrefixMatch(ambiguous, code) {
					d.affected[code] = true
				}
			}
		}
		d.value = len(d.affected)
		if d.value == 0 && len(ambiguous) > 0 {
			continue // discriminates nothing we are unsure about
		}
		diffs = append(diffs, d)
	}

	sort.SliceStable(diffs, func(i, j int) bool {
		if diffs[i].value != diffs[j].value {
			return diffs[i].value > diffs[j].value
		}
		// more options means a finer-grained split
		return len(diffs[i].question.Options) > len(diffs[j].question.Options)
	})

	var out []domain.ClarifyingQuestion
	for _, d := range diffs {
		if overlapsAny(d, diffs, out) {
			continue
		}
		out = append(out, d.question)
		if len(out) == limit {
			break
		}
	}
	return out
}

// ambiguousCodes collects the codes still competing for the top spot.
func ambiguousCodes(results []domain.ClassificationResult) map[string]bool {
	codes := make(map[string]bool)
	for _, r := range results {
		if r.Code != "" {
			codes[r.Code] = true
		}
		for _, alt := range r.Alternatives {
			codes[alt.Code] = true
		}
	}
	return codes
}

// codePrefixMatch treats an implied code as affecting an ambiguous code when
// either is a prefix of the other (a question about a heading still splits
// its subheadings).
func codePrefixMatch(ambiguous map[string]bool, code string) bool {
	for a := range ambiguous {
		if strings.HasPrefix(a, code) || strings.HasPrefix(code, a) {
			return true
		}
	}
	return false
}

// overlapsAny reports whether a differential duplicates one already chosen:
// same affected-code set or near-identical option values.
func overlapsAny(d differential, all []differential, chosen []domain.ClarifyingQuestion) bool {
	for _, c := range chosen {
		var cd *differential
		for i := range all {
			if all[i].question.ID == c.ID {
				cd = &all[i]
				break
			}
		}
		if cd == nil {
			continue
		}
		if sameCodeSet(d.affected, cd.affected) && len(d.affected) > 0 {
			return true
		}
		if sameOptionValues(d.question.Options, cd.question.Options) {
			return true
		}
	}
	return false
}

func sameCodeSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sameOptionValues(a, b []domain.QuestionOption) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	values := make(map[string]bool, len(a))
	for _, o := range a {
		values[strings.ToLower(o.Value)] = true
	}
	for _, o := range b {
		if !values[strings.ToLower(o.Value)] {
			return false
		}
	}
	return true
}

// withOtherEscape appends the free-text escape option unless the rule set
// already carries one. The option slice is copied so the shared question
// pool stays untouched.
func withOtherEscape(q domain.ClarifyingQuestion) domain.ClarifyingQuestion {
	for _, opt := range q.Options {
		if strings.EqualFold(opt.Value, "other") {
			return q
		}
	}
	opts := make([]domain.QuestionOption, len(q.Options), len(q.Options)+1)
	copy(opts, q.Options)
	q.Options = append(opts, domain.QuestionOption{
		Value: "other",
		Label: "Other (describe in your own words)",
	})
	return q
}

// humanize rewords a rule-set question for the user via the completion
// service, keeping the original on any failure. Options never change.
func (m *Manager) humanize(
	ctx context.Context, description string, q domain.ClarifyingQuestion,
) domain.ClarifyingQuestion {
	if m.completer == nil {
		return q
	}

	res, err := m.completer.Complete(ctx, domain.CompletionRequest{
		System: "You reword customs clarification questions to be short and friendly.",
		Prompt: fmt.Sprintf("Product: %q. Reword this question without changing its meaning: %q",
			description, q.Text),
		SchemaHint: `{"text": ""}`,
		MaxTokens:  64,
	})
	if err != nil {
		metrics.CompletionFallbacksTotal.WithLabelValues("questions").Inc()
		m.logger.Debug("Question humanization fell back", zap.Error(err))
		return q
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if json.Unmarshal([]byte(res.Text), &parsed) != nil || strings.TrimSpace(parsed.Text) == "" {
		metrics.CompletionFallbacksTotal.WithLabelValues("questions").Inc()
		return q
	}

	q.Text = parsed.Text
	return q
}
