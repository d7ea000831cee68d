package domain

// Alternative is a runner-up code included with a classification result.
type Alternative struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ClassificationResult is the output of one classification attempt.
// Confidence is a bounded integer percentage; Reasoning is advisory text
// for the user and never feeds back into pipeline logic.
type ClassificationResult struct {
	Code         string        `json:"code"`
	Description  string        `json:"description"`
	Confidence   int           `json:"confidence"`
	Reasoning    string        `json:"reasoning"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// ProductState is the completion-service judgment of how processed the
// queried product is, used for state-compatibility penalties.
type ProductState string

const (
	// StateFresh is an unprocessed perishable product.
	StateFresh ProductState = "fresh"
	// StateRaw is an unprocessed non-perishable material.
	StateRaw ProductState = "raw"
	// StateProcessed is a transformed product (roasted, ground, woven).
	StateProcessed ProductState = "processed"
	// StatePackaged is a retail-packaged product.
	StatePackaged ProductState = "packaged"
	// StateIntermediate is a semi-finished input to further manufacture.
	StateIntermediate ProductState = "intermediate"
	// StateFinished is a complete end product.
	StateFinished ProductState = "finished"
	// StateUnknown means no state could be detected.
	StateUnknown ProductState = "unknown"
)

// ParseProductState maps free text from the completion service onto a known
// state, defaulting to StateUnknown for anything non-conforming.
func ParseProductState(s string) ProductState {
	switch ProductState(s) {
	case StateFresh, StateRaw, StateProcessed, StatePackaged, StateIntermediate, StateFinished:
		return ProductState(s)
	default:
		return StateUnknown
	}
}
