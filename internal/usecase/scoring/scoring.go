// Package scoring holds the pure confidence arithmetic of the pipeline.
// Every function here is deterministic and I/O-free so the curves can be
// unit-tested in isolation from retrieval and the completion service.
package scoring

import (
	"math"

	"github.com/clearfreight/hscodex/internal/domain"
)

const (
	// floorConfidence is the confidence assigned at the similarity floor.
	floorConfidence = 35.0
	// topConfidence is the confidence assigned at perfect similarity.
	topConfidence = 95.0
	// consensusStep is the fraction of the remaining headroom to 100 that
	// each additional agreeing method closes.
	consensusStep = 0.25
)

// SimilarityConfidence maps a normalized cosine similarity in [floor, 1] onto
// a 0-100 confidence using a cube-root curve. Similarity compresses near the
// top, the sub-linear curve spreads it back out: floor maps to ~35, 1.0 to
// ~95. Values below the floor degrade linearly toward zero.
func SimilarityConfidence(similarity, floor float64) float64 {
	if floor <= 0 || floor >= 1 {
		floor = 0.3
	}
	if similarity <= 0 {
		return 0
	}
	if similarity < floor {
		return floorConfidence * similarity / floor
	}
	if similarity > 1 {
		similarity = 1
	}
	t := (similarity - floor) / (1 - floor)
	return floorConfidence + (topConfidence-floorConfidence)*math.Cbrt(t)
}

// ConsensusBoost raises a base confidence when several independent retrieval
// methods agree on the same code. Each extra method closes a fixed fraction
// of the remaining headroom to 100, so the result is monotonic in the method
// count, never below base and never above 100.
func ConsensusBoost(base float64, methods int) float64 {
	if methods <= 1 {
		return clamp(base)
	}
	headroom := 100 - base
	if headroom <= 0 {
		return 100
	}
	closed := 1 - math.Pow(1-consensusStep, float64(methods-1))
	return clamp(base + headroom*closed)
}

// KeywordConfidence maps a method-local text-engine score onto a 0-100
// confidence. Scores are unbounded, so the curve saturates: monotonic in the
// score, asymptotic to 75 so keyword evidence alone never beats strong
// vector or rule evidence.
func KeywordConfidence(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return 75 * score / (score + 1)
}

// RuleConfidence implements the rule-engine formula: a base of 60 plus 5 per
// matched condition, capped at 80, then a tenth of the rule's boost on top,
// capped at 100.
func RuleConfidence(conditionCount int, boost float64) float64 {
	base := 60 + 5*float64(conditionCount)
	if base > 80 {
		base = 80
	}
	return clamp(base + boost/10)
}

// DecayScore derives a hierarchy-expansion score from a parent score.
func DecayScore(parent, decay float64) float64 {
	if decay <= 0 || decay > 1 {
		return parent
	}
	return parent * decay
}

// StatePenalty returns a multiplier in [0,1] reflecting compatibility between
// the state detected in the query and the state suggested by a candidate's
// description. Unknown on either side is never penalized.
func StatePenalty(query, candidate domain.ProductState) float64 {
	if query == domain.StateUnknown || candidate == domain.StateUnknown {
		return 1.0
	}
	if query == candidate {
		return 1.0
	}
	if opposed(query, candidate) {
		return 0.6
	}
	return 0.85
}

// opposed reports a hard state conflict (unprocessed vs processed goods).
func opposed(a, b domain.ProductState) bool {
	raw := func(s domain.ProductState) bool {
		return s == domain.StateFresh || s == domain.StateRaw
	}
	done := func(s domain.ProductState) bool {
		return s == domain.StateProcessed || s == domain.StatePackaged || s == domain.StateFinished
	}
	return (raw(a) && done(b)) || (done(a) && raw(b))
}

// Round converts a float confidence to the bounded integer form results carry.
func Round(confidence float64) int {
	return int(clamp(math.Round(confidence)))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
