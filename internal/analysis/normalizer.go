package analysis

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nexassist/a11yscan/pkg/models"
)

// providerIssue mirrors the schema hint. Every field is optional; the
// normalizer coerces whatever the provider actually sent.
type providerIssue struct {
	Criterion   string     `json:"criterion"`
	Description string     `json:"description"`
	Severity    string     `json:"severity"`
	Fix         string     `json:"fix"`
	CodeFix     string     `json:"code_fix"`
	Category    string     `json:"category"`
	Confidence  confidence `json:"confidence"`
}

// confidence tolerates number, quoted-number, and null encodings. A bad
// confidence value never invalidates the entry carrying it.
type confidence int

func (c *confidence) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*c = confidence(clampConfidence(int(f)))
	}
	return nil
}

type providerDocument struct {
	Issues  []json.RawMessage `json:"issues"`
	Summary string            `json:"summary"`
}

// Normalizer converts untrusted provider text into the issue catalog. It is
// the safety boundary of the pipeline: everything upstream of it is treated
// as hostile input.
type Normalizer struct {
	logger *logrus.Logger
}

func NewNormalizer(logger *logrus.Logger) *Normalizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Normalizer{logger: logger}
}

// Normalize parses raw provider output defensively. The body may carry
// markdown fences, surrounding prose, or several concatenated JSON documents
// (one per excerpt); every recognizable document contributes issues. When no
// structured data can be recovered at all, the scan degrades via
// NormalizationError rather than failing.
//
// Field policy: missing criterion keeps the entry with principle Unknown;
// missing severity defaults to medium; missing description or fix gets a
// placeholder and marks the entry incomplete. Duplicates (same criterion and
// description after case-insensitive trimming) merge keeping the higher
// severity. Provider order is preserved.
func (n *Normalizer) Normalize(raw *models.RawProviderOutput) ([]models.Issue, string, *models.NormalizationError) {
	if raw == nil || strings.TrimSpace(raw.Body) == "" {
		return nil, "", &models.NormalizationError{Err: errors.New("empty provider output")}
	}

	documents := extractDocuments(raw.Body)
	if len(documents) == 0 {
		return nil, "", &models.NormalizationError{Err: errors.New("no JSON document found in provider output")}
	}

	var (
		candidates    []providerIssue
		summaryParts  []string
		sawStructured bool
	)
	for _, doc := range documents {
		issues, summary, ok := interpretDocument(doc)
		if !ok {
			continue
		}
		sawStructured = true
		candidates = append(candidates, issues...)
		if summary != "" {
			summaryParts = append(summaryParts, summary)
		}
	}
	if !sawStructured {
		return nil, "", &models.NormalizationError{Err: errors.New("provider output contained no issue structure")}
	}

	normalized := make([]models.Issue, 0, len(candidates))
	index := make(map[string]int, len(candidates))
	dropped := 0
	for _, candidate := range candidates {
		issue, ok := coerceIssue(candidate)
		if !ok {
			dropped++
			continue
		}
		key := issue.DedupKey()
		if at, seen := index[key]; seen {
			if issue.Severity.Rank() > normalized[at].Severity.Rank() {
				normalized[at].Severity = issue.Severity
			}
			continue
		}
		index[key] = len(normalized)
		normalized = append(normalized, issue)
	}
	if dropped > 0 {
		n.logger.WithField("dropped", dropped).Debug("Discarded empty issue entries from provider output")
	}

	return normalized, strings.Join(summaryParts, " "), nil
}

// extractDocuments scans the body for decodable JSON values, skipping prose
// and code fences between them.
func extractDocuments(body string) []json.RawMessage {
	var docs []json.RawMessage
	rest := body
	for {
		idx := strings.IndexAny(rest, "[{")
		if idx < 0 {
			return docs
		}
		rest = rest[idx:]

		dec := json.NewDecoder(strings.NewReader(rest))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			rest = rest[1:]
			continue
		}
		docs = append(docs, raw)
		rest = rest[dec.InputOffset():]
	}
}

// interpretDocument accepts either {"issues":[...]} (with optional summary),
// a bare issue array, or a lone issue object.
func interpretDocument(doc json.RawMessage) ([]providerIssue, string, bool) {
	trimmed := strings.TrimSpace(string(doc))
	if trimmed == "" {
		return nil, "", false
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(doc, &raws); err != nil {
			return nil, "", false
		}
		return decodeIssueList(raws), "", true
	}

	var envelope providerDocument
	if err := json.Unmarshal(doc, &envelope); err == nil && (envelope.Issues != nil || envelope.Summary != "") {
		return decodeIssueList(envelope.Issues), strings.TrimSpace(envelope.Summary), true
	}

	var single providerIssue
	if err := json.Unmarshal(doc, &single); err == nil && !isEmptyCandidate(single) {
		return []providerIssue{single}, "", true
	}
	return nil, "", false
}

func decodeIssueList(raws []json.RawMessage) []providerIssue {
	issues := make([]providerIssue, 0, len(raws))
	for _, raw := range raws {
		var issue providerIssue
		if err := json.Unmarshal(raw, &issue); err != nil {
			continue
		}
		issues = append(issues, issue)
	}
	return issues
}

func isEmptyCandidate(c providerIssue) bool {
	return strings.TrimSpace(c.Criterion) == "" &&
		strings.TrimSpace(c.Description) == "" &&
		strings.TrimSpace(c.Fix) == ""
}

// coerceIssue maps one candidate onto the issue schema, filling every absent
// field with an explicit default. Entries with no content at all are the only
// thing dropped.
func coerceIssue(c providerIssue) (models.Issue, bool) {
	if isEmptyCandidate(c) {
		return models.Issue{}, false
	}

	issue := models.Issue{
		Criterion:   strings.TrimSpace(c.Criterion),
		Severity:    models.ParseSeverity(c.Severity),
		Description: strings.TrimSpace(c.Description),
		Fix:         strings.TrimSpace(c.Fix),
		CodeFix:     strings.TrimSpace(c.CodeFix),
		Confidence:  int(c.Confidence),
	}
	issue.Principle = models.PrincipleForCriterion(issue.Criterion)

	if issue.Description == "" {
		issue.Description = models.PlaceholderDescription
		issue.Incomplete = true
	}
	if issue.Fix == "" {
		issue.Fix = models.PlaceholderFix
		issue.Incomplete = true
	}
	return issue, true
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
