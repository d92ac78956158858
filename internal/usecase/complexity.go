package usecase

import (
	"strings"

	"conductor/internal/domain"
)

// technicalTerms is the fixed vocabulary used for complexity scoring.
var technicalTerms = []string{
	"algorithm", "api", "architecture", "async", "authentication", "cache",
	"compiler", "concurrency", "database", "dataset", "deployment",
	"distributed", "encryption", "framework", "graph", "index", "kernel",
	"latency", "machine learning", "microservice", "model", "network",
	"optimization", "pipeline", "protocol", "query", "regression",
	"scalability", "schema", "statistics", "throughput", "transaction",
}

// requestTypeBonuses maps a request category to its verb cues and score bonus.
// Order matters: only the first matching category contributes.
var requestTypeBonuses = []struct {
	factor string
	verbs  []string
	bonus  float64
}{
	{"problem_solving", []string{"solve", "fix", "debug", "troubleshoot", "resolve"}, 3},
	{"creation", []string{"create", "write", "generate", "build", "design"}, 2},
	{"analysis", []string{"analyze", "analyse", "compare", "evaluate", "assess"}, 2},
	{"explanation", []string{"explain", "describe", "what is", "how does", "why"}, 1},
}

// ComplexityAnalyzer scores an objective's difficulty from surface features.
// Scoring is a pure function: the same input always yields the same score.
type ComplexityAnalyzer struct{}

// NewComplexityAnalyzer creates an analyzer.
func NewComplexityAnalyzer() *ComplexityAnalyzer {
	return &ComplexityAnalyzer{}
}

// Score computes a ComplexityScore for the objective text. It never fails:
// malformed or empty input yields level low with no contributing factors.
func (a *ComplexityAnalyzer) Score(text string, history []domain.Turn) domain.ComplexityScore {
	if strings.TrimSpace(text) == "" {
		return domain.ComplexityScore{Value: 0, Level: domain.ComplexityLow}
	}

	var value float64
	var factors []string
	lower := strings.ToLower(text)

	switch {
	case len(text) > 200:
		value += 2
		factors = append(factors, "long_text")
	case len(text) > 100:
		value += 1
		factors = append(factors, "medium_text")
	}

	if n := strings.Count(text, "?"); n > 0 {
		value += min(float64(n)*0.5, 2)
		factors = append(factors, "questions")
	}

	if hits := countTermHits(lower); hits > 0 {
		value += min(float64(hits)*0.3, 2)
		factors = append(factors, "technical_terms")
	}

	for _, rt := range requestTypeBonuses {
		if containsAny(lower, rt.verbs) {
			value += rt.bonus
			factors = append(factors, rt.factor)
			break
		}
	}

	return domain.ComplexityScore{
		Value:   value,
		Level:   bucketLevel(value),
		Factors: factors,
	}
}

func countTermHits(lower string) int {
	hits := 0
	for _, term := range technicalTerms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return hits
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func bucketLevel(value float64) domain.ComplexityLevel {
	switch {
	case value <= 2:
		return domain.ComplexityLow
	case value <= 4:
		return domain.ComplexityMedium
	case value <= 7:
		return domain.ComplexityHigh
	default:
		return domain.ComplexityVeryHigh
	}
}
