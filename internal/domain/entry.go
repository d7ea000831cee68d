package domain

import "regexp"

// TaxonomyEntry is a single HS nomenclature entry. Immutable reference data
// loaded from the code store; Embedding may be empty for entries that have
// not been vectorized yet.
type TaxonomyEntry struct {
	Code        string
	Description string
	Keywords    []string
	Synonyms    []string
	Embedding   []float32
}

// HasEmbedding reports whether the entry carries a precomputed vector.
func (e TaxonomyEntry) HasEmbedding() bool { return len(e.Embedding) > 0 }

// codePattern accepts 4, 6, 8 or 10 digit codes with dot separators,
// e.g. "8708", "8708.30", "8708.30.10", "8708.30.10.00".
var codePattern = regexp.MustCompile(`^\d{4}(\.\d{2}){0,3}$`)

// ValidCode reports whether s is a well-formed HS code.
func ValidCode(s string) bool { return codePattern.MatchString(s) }

// CodeLevel is the depth of a code in the HS tree.
type CodeLevel int

const (
	// LevelChapter is the 2-digit chapter prefix.
	LevelChapter CodeLevel = iota
	// LevelHeading is the 4-digit heading.
	LevelHeading
	// LevelSubheading is the 6-digit subheading.
	LevelSubheading
	// LevelFull is an 8 or 10 digit national line.
	LevelFull
)

// Level returns the hierarchy depth of a code based on digit count.
func Level(code string) CodeLevel {
	switch n := countDigits(code); {
	case n <= 2:
		return LevelChapter
	case n <= 4:
		return LevelHeading
	case n <= 6:
		return LevelSubheading
	default:
		return LevelFull
	}
}

// Chapter returns the 2-digit chapter prefix of a code.
func Chapter(code string) string {
	if len(code) < 2 {
		return code
	}
	return code[:2]
}

// ParentCode returns the next shallower code in the tree, or "" for a
// heading (headings are roots as far as classification is concerned).
func ParentCode(code string) string {
	digits := countDigits(code)
	switch {
	case digits > 8:
		return trimToDigits(code, 8)
	case digits > 6:
		return trimToDigits(code, 6)
	case digits > 4:
		return trimToDigits(code, 4)
	default:
		return ""
	}
}

// IsChildOf reports whether child is a direct child of parent in the code
// tree (exactly one level deeper and sharing the parent prefix).
func IsChildOf(child, parent string) bool {
	return ParentCode(child) == parent
}

// IsDescendantOf reports whether child sits anywhere under parent.
func IsDescendantOf(child, parent string) bool {
	if len(child) <= len(parent) {
		return false
	}
	return child[:len(parent)] == parent
}

func countDigits(code string) int {
	n := 0
	for _, r := range code {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func trimToDigits(code string, digits int) string {
	n := 0
	for i, r := range code {
		if r >= '0' && r <= '9' {
			n++
		}
		if n == digits {
			return code[:i+1]
		}
	}
	return code
}
