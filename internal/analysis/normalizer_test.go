package analysis

import (
	"testing"

	"github.com/nexassist/a11yscan/pkg/models"
)

func normalizeBody(t *testing.T, body string) ([]models.Issue, string, *models.NormalizationError) {
	t.Helper()
	n := NewNormalizer(nil)
	return n.Normalize(&models.RawProviderOutput{Provider: "test", Body: body})
}

func TestNormalizeWellFormedObject(t *testing.T) {
	body := `{"issues":[{"criterion":"1.4.3","severity":"High","description":"low contrast text","fix":"increase contrast ratio"}],"summary":"one contrast problem"}`

	issues, summary, err := normalizeBody(t, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}

	issue := issues[0]
	if issue.Criterion != "1.4.3" {
		t.Errorf("criterion = %q, want 1.4.3", issue.Criterion)
	}
	if issue.Principle != models.PrinciplePerceivable {
		t.Errorf("principle = %q, want Perceivable", issue.Principle)
	}
	if issue.Severity != models.SeverityHigh {
		t.Errorf("severity = %q, want high", issue.Severity)
	}
	if issue.Incomplete {
		t.Error("complete issue marked incomplete")
	}
	if summary != "one contrast problem" {
		t.Errorf("summary = %q", summary)
	}
}

func TestNormalizeBareArray(t *testing.T) {
	body := `[{"criterion":"2.1.1","severity":"Critical","description":"keyboard trap","fix":"remove the trap"}]`

	issues, _, err := normalizeBody(t, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 1 || issues[0].Principle != models.PrincipleOperable {
		t.Fatalf("got %+v", issues)
	}
}

func TestNormalizeToleratesFencesAndProse(t *testing.T) {
	body := "Here is my analysis of the page:\n```json\n{\"issues\":[{\"criterion\":\"3.1.1\",\"severity\":\"Low\",\"description\":\"missing lang attribute\",\"fix\":\"set lang on html\"}]}\n```\nLet me know if you need more detail."

	issues, _, err := normalizeBody(t, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 1 || issues[0].Principle != models.PrincipleUnderstandable {
		t.Fatalf("got %+v", issues)
	}
}

func TestNormalizeConcatenatedDocuments(t *testing.T) {
	// One document per excerpt chunk, joined by the provider adapter.
	body := `{"issues":[{"criterion":"1.1.1","severity":"High","description":"missing alt","fix":"add alt"}]}
{"issues":[{"criterion":"4.1.2","severity":"Medium","description":"unnamed button","fix":"add aria-label"}]}`

	issues, _, err := normalizeBody(t, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues across documents, got %d", len(issues))
	}
	if issues[0].Criterion != "1.1.1" || issues[1].Criterion != "4.1.2" {
		t.Errorf("provider order not preserved: %+v", issues)
	}
}

func TestNormalizeFieldDefaults(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantPrinciple models.Principle
		wantSeverity  models.Severity
		wantDesc      string
		wantFix       string
		wantIncomplet bool
	}{
		{
			name:          "unknown criterion retained",
			body:          `{"issues":[{"criterion":"9.9.9","severity":"High","description":"odd","fix":"fix it"}]}`,
			wantPrinciple: models.PrincipleUnknown,
			wantSeverity:  models.SeverityHigh,
			wantDesc:      "odd",
			wantFix:       "fix it",
		},
		{
			name:          "missing criterion retained",
			body:          `{"issues":[{"severity":"Low","description":"something","fix":"do it"}]}`,
			wantPrinciple: models.PrincipleUnknown,
			wantSeverity:  models.SeverityLow,
			wantDesc:      "something",
			wantFix:       "do it",
		},
		{
			name:          "missing severity defaults to medium",
			body:          `{"issues":[{"criterion":"1.3.1","description":"bad structure","fix":"use headings"}]}`,
			wantPrinciple: models.PrinciplePerceivable,
			wantSeverity:  models.SeverityMedium,
			wantDesc:      "bad structure",
			wantFix:       "use headings",
		},
		{
			name:          "missing description gets placeholder",
			body:          `{"issues":[{"criterion":"2.4.4","severity":"Med","fix":"name the link"}]}`,
			wantPrinciple: models.PrincipleOperable,
			wantSeverity:  models.SeverityMedium,
			wantDesc:      models.PlaceholderDescription,
			wantFix:       "name the link",
			wantIncomplet: true,
		},
		{
			name:          "missing fix gets placeholder",
			body:          `{"issues":[{"criterion":"2.4.4","severity":"Med","description":"vague link text"}]}`,
			wantPrinciple: models.PrincipleOperable,
			wantSeverity:  models.SeverityMedium,
			wantDesc:      "vague link text",
			wantFix:       models.PlaceholderFix,
			wantIncomplet: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues, _, err := normalizeBody(t, tt.body)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(issues) != 1 {
				t.Fatalf("expected 1 issue, got %d", len(issues))
			}
			issue := issues[0]
			if issue.Principle != tt.wantPrinciple {
				t.Errorf("principle = %q, want %q", issue.Principle, tt.wantPrinciple)
			}
			if issue.Severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", issue.Severity, tt.wantSeverity)
			}
			if issue.Description != tt.wantDesc {
				t.Errorf("description = %q, want %q", issue.Description, tt.wantDesc)
			}
			if issue.Fix != tt.wantFix {
				t.Errorf("fix = %q, want %q", issue.Fix, tt.wantFix)
			}
			if issue.Incomplete != tt.wantIncomplet {
				t.Errorf("incomplete = %v, want %v", issue.Incomplete, tt.wantIncomplet)
			}
		})
	}
}

func TestNormalizeDedupKeepsHigherSeverity(t *testing.T) {
	body := `{"issues":[
		{"criterion":"1.4.3","severity":"Low","description":"Low Contrast Text","fix":"a"},
		{"criterion":"1.4.3","severity":"Critical","description":"  low contrast text ","fix":"b"},
		{"criterion":"1.4.3","severity":"Medium","description":"low contrast text","fix":"c"}
	]}`

	issues, _, err := normalizeBody(t, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected duplicates merged into 1 issue, got %d", len(issues))
	}
	if issues[0].Severity != models.SeverityCritical {
		t.Errorf("merged severity = %q, want critical", issues[0].Severity)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	body := `{"issues":[
		{"criterion":"1.1.1","severity":"High","description":"missing alt","fix":"add alt"},
		{"criterion":"1.1.1","severity":"High","description":"missing alt","fix":"add alt"},
		{"criterion":"2.1.1","severity":"Medium","description":"keyboard","fix":"fix"}
	]}`

	first, _, err := normalizeBody(t, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _, err := normalizeBody(t, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("normalization not idempotent: %d vs %d issues", len(first), len(second))
	}
	if len(first) != 2 {
		t.Errorf("expected 2 unique issues, got %d", len(first))
	}
}

func TestNormalizeUnparseable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"plain prose", "I could not analyze this page, sorry."},
		{"empty body", "   "},
		{"broken json", `{"issues":[{"criterion":`},
		{"non-issue json", `"just a string"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := normalizeBody(t, tt.body)
			if err == nil {
				t.Fatal("expected NormalizationError")
			}
		})
	}
}

func TestNormalizeEmptyIssueListIsNotAnError(t *testing.T) {
	issues, _, err := normalizeBody(t, `{"issues":[],"summary":"clean page"}`)
	if err != nil {
		t.Fatalf("valid empty issue list should not error: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("expected no issues, got %d", len(issues))
	}
}

func TestNormalizeConfidenceCoercion(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"integer", `{"issues":[{"criterion":"1.1.1","description":"d","fix":"f","confidence":85}]}`, 85},
		{"float", `{"issues":[{"criterion":"1.1.1","description":"d","fix":"f","confidence":85.7}]}`, 85},
		{"quoted", `{"issues":[{"criterion":"1.1.1","description":"d","fix":"f","confidence":"90"}]}`, 90},
		{"over range", `{"issues":[{"criterion":"1.1.1","description":"d","fix":"f","confidence":250}]}`, 100},
		{"garbage ignored", `{"issues":[{"criterion":"1.1.1","description":"d","fix":"f","confidence":"very sure"}]}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues, _, err := normalizeBody(t, tt.body)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(issues) != 1 {
				t.Fatalf("expected 1 issue, got %d", len(issues))
			}
			if issues[0].Confidence != tt.want {
				t.Errorf("confidence = %d, want %d", issues[0].Confidence, tt.want)
			}
		})
	}
}
