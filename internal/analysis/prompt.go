package analysis

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/nexassist/a11yscan/internal/fetch"
	"github.com/nexassist/a11yscan/pkg/models"
)

// ErrEmptySnapshot is returned when the rendered document carries no content
// worth analyzing.
var ErrEmptySnapshot = errors.New("snapshot has no rendered HTML")

// schemaDescription steers the provider toward the issue shape. It is a hint
// only; the normalizer never assumes the provider honored it.
const schemaDescription = `{
  "issues": [
    {
      "criterion": "string (WCAG ID, e.g. 1.4.3)",
      "description": "string",
      "severity": "Low/Medium/High/Critical",
      "fix": "string",
      "code_fix": "string (HTML/CSS/JS snippet, optional)",
      "category": "Perceivable/Operable/Understandable/Robust",
      "confidence": "integer 0-100"
    }
  ],
  "summary": "string (200 chars max)"
}`

// PromptBuilder turns a DOM snapshot into a provider payload. Pure: no I/O,
// no shared state, safe for concurrent use.
type PromptBuilder struct {
	chunkSize     int
	maxFullChunks int
}

func NewPromptBuilder(config models.AnalysisConfig) *PromptBuilder {
	chunkSize := config.ExcerptChunkSize
	if chunkSize <= 0 {
		chunkSize = 5000
	}
	maxFullChunks := config.MaxFullChunks
	if maxFullChunks <= 0 {
		maxFullChunks = 8
	}
	return &PromptBuilder{chunkSize: chunkSize, maxFullChunks: maxFullChunks}
}

// BuildPayload chunks the snapshot into prompt-sized excerpts. Abbreviated
// scans (request.Full == false) send only the first chunk so Free-tier
// previews stay cheap; full scans send up to the configured chunk cap.
func (b *PromptBuilder) BuildPayload(snapshot *models.DomSnapshot, request *models.ScanRequest) (*models.AnalysisPayload, error) {
	if snapshot == nil || strings.TrimSpace(snapshot.RenderedHTML) == "" {
		return nil, ErrEmptySnapshot
	}

	maxChunks := 1
	depth := "at least 1 issue per category for this abbreviated scan"
	if request != nil && request.Full {
		maxChunks = b.maxFullChunks
		depth = "at least 3 issues per category for this comprehensive scan"
	}

	chunks := fetch.SplitHTML(snapshot.RenderedHTML, b.chunkSize, maxChunks)
	excerpts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		excerpts = append(excerpts, sanitizeExcerpt(chunk))
	}

	instructions := fmt.Sprintf(`Analyze the following HTML for WCAG 2.2 accessibility issues. For each issue:
- Specify the WCAG criterion (e.g., 1.1.1).
- Describe the issue clearly.
- Provide a fix suggestion.
- Include a specific code fix (HTML/CSS/JS snippet) if applicable.
- Assign a category: Perceivable, Operable, Understandable, Robust.
- Include a confidence score (0-100) based on likelihood of correctness.

Report %s. Return the results as structured JSON matching this schema:
%s`, depth, schemaDescription)

	return &models.AnalysisPayload{
		SnapshotExcerpts:  excerpts,
		Instructions:      instructions,
		SchemaDescription: schemaDescription,
	}, nil
}

// sanitizeExcerpt escapes the HTML so it reads as data rather than markup and
// strips brace characters that would collide with the JSON schema in the
// prompt body.
func sanitizeExcerpt(chunk string) string {
	escaped := html.EscapeString(chunk)
	escaped = strings.ReplaceAll(escaped, "{", "")
	return strings.ReplaceAll(escaped, "}", "")
}
