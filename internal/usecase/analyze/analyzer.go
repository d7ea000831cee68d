// Package analyze decomposes a raw product description into a primary
// subject, usage context and material/state modifiers. It is deterministic
// and has no failure modes: absence of a pattern is a valid outcome.
package analyze

import (
	"regexp"
	"strings"

	"github.com/clearfreight/hscodex/internal/domain"
)

const maxTokens = 15

// stopwords mirrors the list used by the taxonomy seed pipeline so query
// tokens and stored keywords agree on what carries signal.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "with": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "as": true, "by": true, "from": true,
	"has": true, "have": true, "had": true, "will": true, "would": true,
	"can": true, "could": true, "should": true,
	"used": true, "use": true, "etc": true, "e.g": true, "i.e": true,
}

// contextSeparators split "X <sep> Y" into subject X and usage context Y.
// Longer separators are listed first so "used in" wins over a bare "in".
var contextSeparators = []string{" used in ", " for ", " of ", " from "}

var materialVocab = map[string]bool{
	"steel": true, "iron": true, "aluminium": true, "aluminum": true,
	"copper": true, "brass": true, "bronze": true, "zinc": true,
	"titanium": true, "nickel": true, "metal": true, "metallic": true,
	"cotton": true, "wool": true, "silk": true, "polyester": true,
	"nylon": true, "linen": true, "leather": true, "textile": true,
	"plastic": true, "rubber": true, "silicone": true, "pvc": true,
	"polymer": true, "ceramic": true, "glass": true, "wood": true,
	"wooden": true, "bamboo": true, "paper": true, "carbon": true,
	"stone": true, "marble": true,
}

var stateVocab = map[string]bool{
	"fresh": true, "frozen": true, "dried": true, "roasted": true,
	"instant": true, "raw": true, "canned": true, "smoked": true,
	"salted": true, "ground": true, "powdered": true, "chilled": true,
	"cooked": true, "pickled": true, "concentrated": true,
	"packaged": true, "bottled": true, "refined": true, "organic": true,
}

var nonWord = regexp.MustCompile(`[^a-z0-9\s]`)

// Tokenize normalizes text the way the seed pipeline extracts keywords:
// lowercase, punctuation stripped, stopwords and words under 3 characters
// removed, duplicates dropped in order, at most 15 tokens.
func Tokenize(text string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")

	seen := make(map[string]bool)
	var tokens []string
	for _, w := range strings.Fields(cleaned) {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
		if len(tokens) == maxTokens {
			break
		}
	}
	return tokens
}

// Analyze splits a raw description into subject vs. context on the first
// context-indicating pattern and scans tokens against the closed material
// and state vocabularies.
func Analyze(raw string) domain.QueryAnalysis {
	analysis := domain.QueryAnalysis{
		Raw:            raw,
		PrimarySubject: strings.TrimSpace(raw),
	}

	lower := strings.ToLower(raw)
	if subject, context, ok := splitContext(lower); ok {
		analysis.PrimarySubject = subject
		analysis.Context = Tokenize(context)
	}

	for _, tok := range Tokenize(lower) {
		switch {
		case materialVocab[tok]:
			analysis.MaterialMods = append(analysis.MaterialMods, tok)
		case stateVocab[tok]:
			analysis.StateMods = append(analysis.StateMods, tok)
		}
	}

	return analysis
}

// splitContext finds the earliest context separator. On an index tie the
// longer separator wins.
func splitContext(lower string) (subject, context string, ok bool) {
	best := -1
	var bestSep string
	for _, sep := range contextSeparators {
		idx := strings.Index(lower, sep)
		if idx < 0 {
			continue
		}
		if best == -1 || idx < best || (idx == best && len(sep) > len(bestSep)) {
			best = idx
			bestSep = sep
		}
	}
	if best <= 0 {
		return "", "", false
	}

	subject = strings.TrimSpace(lower[:best])
	context = strings.TrimSpace(lower[best+len(bestSep):])
	if subject == "" || context == "" {
		return "", "", false
	}
	return subject, context, true
}

// StateFromModifiers is the deterministic fallback for product-state
// detection when the completion service is unavailable.
func StateFromModifiers(mods []string) domain.ProductState {
	for _, m := range mods {
		switch m {
		case "fresh", "chilled":
			return domain.StateFresh
		case "raw":
			return domain.StateRaw
		case "packaged", "canned", "bottled":
			return domain.StatePackaged
		case "frozen", "dried", "roasted", "instant", "smoked", "salted",
			"ground", "powdered", "cooked", "pickled", "concentrated", "refined":
			return domain.StateProcessed
		}
	}
	return domain.StateUnknown
}
