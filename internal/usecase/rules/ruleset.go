package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/clearfreight/hscodex/internal/domain"
)

// Condition is a tagged variant evaluated by exhaustive type switching.
// Exactly one of KeywordsAll, AnswerEquals or AnswerIn per condition.
type Condition interface {
	matches(in matchInput) bool
}

// KeywordsAll matches when every listed keyword appears in the query
// (case-insensitive substring).
type KeywordsAll struct {
	Keywords []string
}

func (c KeywordsAll) matches(in matchInput) bool {
	for _, kw := range c.Keywords {
		if !strings.Contains(in.query, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// AnswerEquals matches when the user answered the question with the value.
// An unanswered question fails the condition.
type AnswerEquals struct {
	QuestionID string
	Value      string
}

func (c AnswerEquals) matches(in matchInput) bool {
	got, ok := in.answers[c.QuestionID]
	return ok && strings.EqualFold(got, c.Value)
}

// AnswerIn matches when the user's answer is one of the listed values.
type AnswerIn struct {
	QuestionID string
	Values     []string
}

func (c AnswerIn) matches(in matchInput) bool {
	got, ok := in.answers[c.QuestionID]
	if !ok {
		return false
	}
	for _, v := range c.Values {
		if strings.EqualFold(got, v) {
			return true
		}
	}
	return false
}

type matchInput struct {
	query   string // lowercased raw query
	answers map[string]string
}

// Rule suggests codes when all of its conditions match.
type Rule struct {
	Conditions      []Condition
	SuggestedCodes  []string
	ConfidenceBoost float64
}

// RuleSet is the decision tree for one product category.
type RuleSet struct {
	Category  string
	Keywords  []string // category-detection keywords
	Questions []domain.ClarifyingQuestion
	Rules     []Rule
}

// YAML wire format for rule-set files.

type ruleSetFile struct {
	Category  string         `yaml:"category"`
	Keywords  []string       `yaml:"keywords"`
	Questions []questionFile `yaml:"questions"`
	Rules     []ruleFile     `yaml:"rules"`
}

type questionFile struct {
	ID      string       `yaml:"id"`
	Text    string       `yaml:"text"`
	Options []optionFile `yaml:"options"`
}

type optionFile struct {
	Value        string   `yaml:"value"`
	Label        string   `yaml:"label"`
	ImpliedCodes []string `yaml:"implied_codes"`
}

type ruleFile struct {
	Conditions      []conditionFile `yaml:"conditions"`
	SuggestedCodes  []string        `yaml:"suggested_codes"`
	ConfidenceBoost float64         `yaml:"confidence_boost"`
}

type conditionFile struct {
	Keywords []string `yaml:"keywords"`
	Question string   `yaml:"question"`
	Equals   string   `yaml:"equals"`
	In       []string `yaml:"in"`
}

// LoadDir reads every *.yaml rule set under dir, keyed by category.
func LoadDir(dir string) (map[string]RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rule-set dir %s: %w", dir, err)
	}

	sets := make(map[string]RuleSet)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		rs, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		sets[rs.Category] = rs
	}
	return sets, nil
}

func loadFile(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rule-set %s: %w", path, err)
	}

	var f ruleSetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return RuleSet{}, fmt.Errorf("parse rule-set %s: %w", path, err)
	}
	if f.Category == "" {
		return RuleSet{}, fmt.Errorf("rule-set %s: missing category", path)
	}

	rs := RuleSet{Category: f.Category, Keywords: f.Keywords}

	for _, q := range f.Questions {
		cq := domain.ClarifyingQuestion{ID: q.ID, Text: q.Text}
		for _, o := range q.Options {
			cq.Options = append(cq.Options, domain.QuestionOption{
				Value:        o.Value,
				Label:        o.Label,
				ImpliedCodes: o.ImpliedCodes,
			})
		}
		rs.Questions = append(rs.Questions, cq)
	}

	for i, rf := range f.Rules {
		rule := Rule{
			SuggestedCodes:  rf.SuggestedCodes,
			ConfidenceBoost: rf.ConfidenceBoost,
		}
		for j, cf := range rf.Conditions {
			cond, err := parseCondition(cf)
			if err != nil {
				return RuleSet{}, fmt.Errorf("rule-set %s: rule %d condition %d: %w", path, i, j, err)
			}
			rule.Conditions = append(rule.Conditions, cond)
		}
		rs.Rules = append(rs.Rules, rule)
	}

	return rs, nil
}

func parseCondition(cf conditionFile) (Condition, error) {
	switch {
	case len(cf.Keywords) > 0:
		if cf.Question != "" {
			return nil, fmt.Errorf("keywords and question are mutually exclusive")
		}
		return KeywordsAll{Keywords: cf.Keywords}, nil
	case cf.Question != "" && len(cf.In) > 0:
		return AnswerIn{QuestionID: cf.Question, Values: cf.In}, nil
	case cf.Question != "" && cf.Equals != "":
		return AnswerEquals{QuestionID: cf.Question, Value: cf.Equals}, nil
	default:
		return nil, fmt.Errorf("empty condition")
	}
}
