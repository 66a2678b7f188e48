package analysis

import "github.com/nexassist/a11yscan/pkg/models"

// Scorer computes the 0-100 compliance score. Deterministic in the severity
// counts: start at 100, subtract a per-issue weight by severity, floor at 0.
type Scorer struct {
	weights map[models.Severity]int
}

func NewScorer(config models.ScoringConfig) *Scorer {
	weights := map[models.Severity]int{
		models.SeverityCritical: config.CriticalWeight,
		models.SeverityHigh:     config.HighWeight,
		models.SeverityMedium:   config.MediumWeight,
		models.SeverityLow:      config.LowWeight,
	}
	defaults := map[models.Severity]int{
		models.SeverityCritical: 15,
		models.SeverityHigh:     10,
		models.SeverityMedium:   5,
		models.SeverityLow:      2,
	}
	for severity, weight := range weights {
		if weight <= 0 {
			weights[severity] = defaults[severity]
		}
	}
	return &Scorer{weights: weights}
}

func (s *Scorer) Score(issues []models.Issue) int {
	score := 100
	for _, issue := range issues {
		weight, ok := s.weights[issue.Severity]
		if !ok {
			weight = s.weights[models.SeverityMedium]
		}
		score -= weight
	}
	if score < 0 {
		return 0
	}
	return score
}
