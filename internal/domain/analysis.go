package domain

// QueryAnalysis is the decomposition of a raw product description, derived
// once per classification attempt and consumed read-only downstream.
type QueryAnalysis struct {
	Raw            string
	PrimarySubject string
	Context        []string
	MaterialMods   []string
	StateMods      []string
}

// HasContext reports whether the query carried a usage-context clause
// ("engine for trucks" → subject "engine", context "trucks").
func (a QueryAnalysis) HasContext() bool { return len(a.Context) > 0 }
