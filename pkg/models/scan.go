package models

import "time"

// ScanRequest identifies one logical scan: who asked, and for which page.
// Immutable once created.
type ScanRequest struct {
	Identity    string    `json:"identity"`
	URL         string    `json:"url"`
	Tier        Tier      `json:"tier"`
	Full        bool      `json:"full"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// DomSnapshot is the rendered capture handed from the fetcher to the prompt
// builder. It is consumed during prompt building and never persisted.
type DomSnapshot struct {
	URL           string        `json:"url"`
	RenderedHTML  string        `json:"-"`
	Title         string        `json:"title"`
	FetchDuration time.Duration `json:"fetch_duration"`
	Truncated     bool          `json:"truncated"`
	ContentHash   string        `json:"content_hash"`
}

// AnalysisPayload is the provider request built fresh for every snapshot.
// Narrative payloads ask for free-form prose (persona simulation) instead of
// structured JSON.
type AnalysisPayload struct {
	SnapshotExcerpts  []string
	Instructions      string
	SchemaDescription string
	Narrative         bool
}

// RawProviderOutput is untrusted provider text; nothing downstream may assume
// it is valid JSON until the normalizer has vetted it.
type RawProviderOutput struct {
	Provider string
	Body     string
}

type ScanStats struct {
	TotalIssues    int `json:"total_issues"`
	CriticalIssues int `json:"critical_issues"`
	HighIssues     int `json:"high_issues"`
	MediumIssues   int `json:"medium_issues"`
	LowIssues      int `json:"low_issues"`
}

// ScanResult is the finished report handed verbatim to the UI and exporter.
// Immutable once produced.
type ScanResult struct {
	ScanID       string    `json:"scan_id"`
	Identity     string    `json:"identity"`
	URL          string    `json:"url"`
	PageTitle    string    `json:"page_title"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Score        int       `json:"score"`
	Issues       []Issue   `json:"issues"`
	Stats        ScanStats `json:"stats"`
	Summary      string    `json:"summary"`
	Disclaimer   string    `json:"disclaimer"`
	Truncated    bool      `json:"truncated"`
	Inconclusive bool      `json:"inconclusive"`
	Provider     string    `json:"provider,omitempty"`
}

// Disclaimer is attached to every result; scans are AI-heuristic and
// explicitly non-authoritative.
const Disclaimer = "AI-powered scan aligned with WCAG 2.2; not a full manual audit. Consult accessibility experts before making compliance claims."

func ComputeStats(issues []Issue) ScanStats {
	stats := ScanStats{TotalIssues: len(issues)}
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityCritical:
			stats.CriticalIssues++
		case SeverityHigh:
			stats.HighIssues++
		case SeverityMedium:
			stats.MediumIssues++
		case SeverityLow:
			stats.LowIssues++
		}
	}
	return stats
}
