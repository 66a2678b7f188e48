package models

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity coerces free-form severity strings from provider output.
// Unrecognized or empty values default to medium so an issue is never
// dropped for a bad severity field.
func ParseSeverity(s string) Severity {
	switch v := strings.ToLower(strings.TrimSpace(s)); {
	case strings.HasPrefix(v, "crit"):
		return SeverityCritical
	case strings.HasPrefix(v, "high"):
		return SeverityHigh
	case strings.HasPrefix(v, "med"):
		return SeverityMedium
	case strings.HasPrefix(v, "low"):
		return SeverityLow
	default:
		return SeverityMedium
	}
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities for dedup merging; higher wins.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

type Principle string

const (
	PrinciplePerceivable    Principle = "Perceivable"
	PrincipleOperable       Principle = "Operable"
	PrincipleUnderstandable Principle = "Understandable"
	PrincipleRobust         Principle = "Robust"
	PrincipleUnknown        Principle = "Unknown"
)

// PrincipleForCriterion derives the WCAG principle from the leading digit of
// a criterion identifier ("1.4.3" -> Perceivable). Anything that does not
// start with 1-4 maps to Unknown.
func PrincipleForCriterion(criterion string) Principle {
	c := strings.TrimSpace(criterion)
	if c == "" {
		return PrincipleUnknown
	}
	switch c[0] {
	case '1':
		return PrinciplePerceivable
	case '2':
		return PrincipleOperable
	case '3':
		return PrincipleUnderstandable
	case '4':
		return PrincipleRobust
	default:
		return PrincipleUnknown
	}
}

const (
	// PlaceholderDescription marks entries the provider returned without a
	// description; the exporter renders it as-is so reports stay auditable.
	PlaceholderDescription = "No description provided by analysis"
	PlaceholderFix         = "No fix suggestion provided by analysis"
)

type Issue struct {
	Criterion   string    `json:"criterion" yaml:"criterion"`
	Principle   Principle `json:"principle" yaml:"principle"`
	Severity    Severity  `json:"severity" yaml:"severity"`
	Description string    `json:"description" yaml:"description"`
	Fix         string    `json:"fix" yaml:"fix"`
	CodeFix     string    `json:"code_fix,omitempty" yaml:"code_fix,omitempty"`
	Confidence  int       `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Incomplete  bool      `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`
}

func (i *Issue) Validate() error {
	if i.Criterion == "" && i.Principle != PrincipleUnknown {
		return fmt.Errorf("issue without criterion must carry principle Unknown, got %s", i.Principle)
	}
	if !i.Severity.Valid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if i.Description == "" {
		return fmt.Errorf("issue description is required (use the incomplete placeholder)")
	}
	return nil
}

// DedupKey identifies duplicate provider entries: identical criterion and
// description after case-insensitive trimming.
func (i *Issue) DedupKey() string {
	return strings.ToLower(strings.TrimSpace(i.Criterion)) + "\x00" +
		strings.ToLower(strings.TrimSpace(i.Description))
}
