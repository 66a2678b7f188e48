package analysis

import (
	"testing"

	"github.com/nexassist/a11yscan/pkg/models"
)

func defaultScorer() *Scorer {
	return NewScorer(models.ScoringConfig{})
}

func issuesOf(severities ...models.Severity) []models.Issue {
	issues := make([]models.Issue, 0, len(severities))
	for _, s := range severities {
		issues = append(issues, models.Issue{
			Criterion:   "1.1.1",
			Severity:    s,
			Description: "x",
			Fix:         "y",
		})
	}
	return issues
}

func TestScoreEmptyIsPerfect(t *testing.T) {
	if got := defaultScorer().Score(nil); got != 100 {
		t.Errorf("empty issue set score = %d, want 100", got)
	}
}

func TestScoreDefaultWeights(t *testing.T) {
	tests := []struct {
		name string
		in   []models.Issue
		want int
	}{
		{"one high", issuesOf(models.SeverityHigh), 90},
		{"one critical", issuesOf(models.SeverityCritical), 85},
		{"one medium", issuesOf(models.SeverityMedium), 95},
		{"one low", issuesOf(models.SeverityLow), 98},
		{"mixed", issuesOf(models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow), 68},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := defaultScorer().Score(tt.in); got != tt.want {
				t.Errorf("score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreFloorsAtZero(t *testing.T) {
	var severities []models.Severity
	for i := 0; i < 20; i++ {
		severities = append(severities, models.SeverityCritical)
	}
	if got := defaultScorer().Score(issuesOf(severities...)); got != 0 {
		t.Errorf("score = %d, want floor 0", got)
	}
}

func TestScoreMonotonic(t *testing.T) {
	s := defaultScorer()
	base := issuesOf(models.SeverityMedium, models.SeverityLow)
	baseScore := s.Score(base)

	withLow := s.Score(append(issuesOf(models.SeverityMedium, models.SeverityLow), issuesOf(models.SeverityLow)...))
	withCritical := s.Score(append(issuesOf(models.SeverityMedium, models.SeverityLow), issuesOf(models.SeverityCritical)...))

	if withLow > baseScore {
		t.Errorf("adding an issue increased the score: %d -> %d", baseScore, withLow)
	}
	if baseScore-withCritical < baseScore-withLow {
		t.Errorf("critical issue (%d) deducted less than low issue (%d)", baseScore-withCritical, baseScore-withLow)
	}
}

func TestScoreUnknownSeverityCountsAsMedium(t *testing.T) {
	s := defaultScorer()
	odd := []models.Issue{{Criterion: "1.1.1", Severity: models.Severity("bogus"), Description: "x", Fix: "y"}}
	if got := s.Score(odd); got != 95 {
		t.Errorf("score = %d, want 95 (medium weight)", got)
	}
}

func TestScoreWeightOverrides(t *testing.T) {
	s := NewScorer(models.ScoringConfig{CriticalWeight: 40, HighWeight: 20, MediumWeight: 10, LowWeight: 5})
	if got := s.Score(issuesOf(models.SeverityCritical, models.SeverityLow)); got != 55 {
		t.Errorf("score = %d, want 55", got)
	}
}
