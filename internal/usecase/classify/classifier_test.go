package classify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/clearfreight/hscodex/internal/domain"
)

func TestClassify_PlaceholderOnNoCandidates(t *testing.T) {
	c := newTestClassifier(t, nil, nil, nil, nil, testConfig())

	results, err := c.Classify(context.Background(), "unclassifiable widget", "", nil)
	if err != nil {
		t.Fatalf("Classify must not fail past its boundary: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one placeholder result, got %d", len(results))
	}
	if results[0].Confidence != 0 {
		t.Errorf("placeholder confidence = %d, want 0", results[0].Confidence)
	}
	if results[0].Reasoning == "" {
		t.Error("placeholder must carry explanatory reasoning")
	}
}

func TestClassify_ConfidenceBounds(t *testing.T) {
	set := domain.NewCandidateSet()
	set.Add(vectorCandidate(entry("8708.30", "brakes"), 0.95))
	set.Add(domain.NewCandidate(entry("6813.20", "friction material"), 50.0, domain.SourceKeyword))

	c := newTestClassifier(t, &mockRetriever{set: set}, nil, nil, nil, testConfig())

	results, err := c.Classify(context.Background(), "brake pads", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for _, r := range results {
		if r.Confidence < 0 || r.Confidence > 100 {
			t.Errorf("confidence %d for %s out of [0,100]", r.Confidence, r.Code)
		}
	}
}

func TestClassify_ConsensusBeatsSingleMethod(t *testing.T) {
	agreed := vectorCandidate(entry("8708.30", "brakes and parts", "brake"), 0.7)
	agreed.Sources[domain.SourceKeyword] = true
	agreed.Score = 0.7

	alone := vectorCandidate(entry("6813.20", "friction material", "friction"), 0.7)

	set := domain.NewCandidateSet()
	set.Add(agreed)
	set.Add(alone)

	c := newTestClassifier(t, &mockRetriever{set: set}, nil, nil, nil, testConfig())

	results, err := c.Classify(context.Background(), "brake pads", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if results[0].Code != "8708.30" {
		t.Fatalf("consensus candidate must rank first, got %s", results[0].Code)
	}

	var aloneConf int
	for _, r := range results {
		if r.Code == "6813.20" {
			aloneConf = r.Confidence
		}
	}
	if results[0].Confidence < aloneConf {
		t.Errorf("consensus confidence %d < single-method %d at equal similarity",
			results[0].Confidence, aloneConf)
	}
}

func TestClassify_FunctionOverMaterial(t *testing.T) {
	// "ceramic brake pads for motorcycles": the functional vehicle-parts code
	// is found by keyword and vector, the material code by vector only.
	functional := vectorCandidate(entry("8708.30", "brakes and servo-brakes for motor vehicles", "brake"), 0.72)
	functional.Sources[domain.SourceKeyword] = true

	material := vectorCandidate(entry("6813.20", "friction material of ceramic", "ceramic"), 0.74)

	set := domain.NewCandidateSet()
	set.Add(functional)
	set.Add(material)

	c := newTestClassifier(t, &mockRetriever{set: set}, nil, nil, nil, testConfig())

	results, err := c.Classify(context.Background(), "ceramic brake pads for motorcycles", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if results[0].Code != "8708.30" {
		t.Errorf("functional code must outrank material code, got %s first", results[0].Code)
	}
}

func TestClassify_MisspelledQuerySurvivesOnSimilarity(t *testing.T) {
	// "mangoe" matches no keyword and no rule set; the embedding-backed
	// vector candidate still carries the fruit heading through.
	set := domain.NewCandidateSet()
	set.Add(vectorCandidate(entry("0804.50", "guavas, mangoes and mangosteens, fresh or dried"), 0.82))

	c := newTestClassifier(t, &mockRetriever{set: set}, nil, nil, nil, testConfig())

	results, err := c.Classify(context.Background(), "mangoe fresh tropical", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if results[0].Code != "0804.50" {
		t.Fatalf("expected the fruit heading, got %q", results[0].Code)
	}
	if results[0].Confidence <= 0 {
		t.Error("similarity-only match must still carry confidence")
	}
}

func TestClassify_RuleCandidatesHydrated(t *testing.T) {
	store := &mockStore{entries: map[string]domain.TaxonomyEntry{
		"8714.10": entry("8714.10", "parts of motorcycles"),
	}}
	rules := &mockRules{cands: []domain.Candidate{
		domain.NewCandidate(domain.TaxonomyEntry{Code: "8714.10"}, 75, domain.SourceRule),
	}}

	c := newTestClassifier(t, nil, rules, nil, store, testConfig())

	results, err := c.Classify(context.Background(), "motorcycle brake pads", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if results[0].Code != "8714.10" {
		t.Fatalf("expected rule candidate, got %s", results[0].Code)
	}
	if results[0].Description != "parts of motorcycles" {
		t.Errorf("rule candidate not hydrated: %q", results[0].Description)
	}
}

func TestClassify_AlternativesListed(t *testing.T) {
	set := domain.NewCandidateSet()
	set.Add(vectorCandidate(entry("8708.30", "brakes"), 0.9))
	set.Add(vectorCandidate(entry("8708.40", "gear boxes"), 0.6))
	set.Add(vectorCandidate(entry("8708.50", "drive-axles"), 0.5))

	c := newTestClassifier(t, &mockRetriever{set: set}, nil, nil, nil, testConfig())

	results, err := c.Classify(context.Background(), "vehicle parts", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(results[0].Alternatives) != 2 {
		t.Fatalf("expected 2 alternatives on top result, got %d", len(results[0].Alternatives))
	}
}

func TestClassify_ReasoningFromCompletion(t *testing.T) {
	set := domain.NewCandidateSet()
	set.Add(vectorCandidate(entry("8708.30", "brakes"), 0.9))
	set.Add(vectorCandidate(entry("8708.40", "gear boxes"), 0.6))

	const explanation = "Brake pads are braking-system parts for motor vehicles, which heading 8708.30 covers."
	cp := &mockCompleter{completeFn: func(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
		if strings.Contains(req.Prompt, "Pick one state") {
			return domain.CompletionResult{Text: `{"state": "finished"}`}, nil
		}
		if !strings.Contains(req.Prompt, "8708.30") {
			t.Errorf("reasoning prompt must name the top code, got %q", req.Prompt)
		}
		b, _ := json.Marshal(map[string]string{"reasoning": explanation})
		return domain.CompletionResult{Text: string(b)}, nil
	}}

	c := newTestClassifier(t, &mockRetriever{set: set}, nil, cp, nil, testConfig())

	results, err := c.Classify(context.Background(), "brake pads", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if results[0].Reasoning != explanation {
		t.Errorf("top reasoning = %q, want the completion text", results[0].Reasoning)
	}
	// Runners-up keep the deterministic method line.
	if !strings.Contains(results[1].Reasoning, "Matched via") {
		t.Errorf("alternative reasoning = %q, want the method line", results[1].Reasoning)
	}
}

func TestClassify_ReasoningFallsBackOnFailure(t *testing.T) {
	set := domain.NewCandidateSet()
	set.Add(vectorCandidate(entry("8708.30", "brakes"), 0.9))

	cp := &mockCompleter{completeFn: func(_ context.Context, _ domain.CompletionRequest) (domain.CompletionResult, error) {
		return domain.CompletionResult{}, domain.ErrCompletionFailure
	}}

	c := newTestClassifier(t, &mockRetriever{set: set}, nil, cp, nil, testConfig())

	results, err := c.Classify(context.Background(), "brake pads", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !strings.Contains(results[0].Reasoning, "Matched via") {
		t.Errorf("reasoning = %q, want the deterministic method line", results[0].Reasoning)
	}
}

func TestRelevanceFilter_DropsBelowFloor(t *testing.T) {
	set := domain.NewCandidateSet()
	set.Add(vectorCandidate(entry("8708.30", "brakes"), 0.9))
	set.Add(vectorCandidate(entry("0804.50", "mangoes"), 0.6))

	cp := &mockCompleter{completeFn: func(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
		if strings.Contains(req.Prompt, "Pick one state") {
			return domain.CompletionResult{Text: `{"state": "finished"}`}, nil
		}
		score := 90
		if strings.Contains(req.Prompt, "mangoes") {
			score = 10
		}
		b, _ := json.Marshal(map[string]int{"relevance": score})
		return domain.CompletionResult{Text: string(b)}, nil
	}}

	cfg := testConfig()
	cfg.RelevanceEnabled = true
	c := newTestClassifier(t, &mockRetriever{set: set}, nil, cp, nil, cfg)

	results, err := c.Classify(context.Background(), "brake pads", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for _, r := range results {
		if r.Code == "0804.50" {
			t.Error("irrelevant candidate must be dropped as a false positive")
		}
	}
}

func TestRelevanceFilter_MalformedResponseKeepsCandidate(t *testing.T) {
	set := domain.NewCandidateSet()
	set.Add(vectorCandidate(entry("8708.30", "brakes"), 0.9))

	cp := &mockCompleter{completeFn: func(_ context.Context, _ domain.CompletionRequest) (domain.CompletionResult, error) {
		return domain.CompletionResult{Text: "sorry, I cannot help with that"}, nil
	}}

	cfg := testConfig()
	cfg.RelevanceEnabled = true
	c := newTestClassifier(t, &mockRetriever{set: set}, nil, cp, nil, cfg)

	results, err := c.Classify(context.Background(), "brake pads", "", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if results[0].Code != "8708.30" {
		t.Error("malformed relevance judgment must fall back to keeping the candidate")
	}
}
