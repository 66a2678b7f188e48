package reporting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexassist/a11yscan/pkg/models"
)

// JSONFormatter emits the scan result verbatim as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(result *models.ScanResult) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}

func (f *JSONFormatter) FileExtension() string { return "json" }

// CSVFormatter emits one row per issue with a header block carrying the scan
// summary. Missing fields render as "N/A".
type CSVFormatter struct{}

func (f *CSVFormatter) Format(result *models.ScanResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := [][]string{
		{"# URL", result.URL},
		{"# Scan ID", result.ScanID},
		{"# Scanned At", result.StartTime.Format("2006-01-02 15:04:05 MST")},
		{"# Score", strconv.Itoa(result.Score)},
		{"# Inconclusive", strconv.FormatBool(result.Inconclusive)},
		{"# Disclaimer", result.Disclaimer},
	}
	for _, row := range header {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}

	columns := []string{"criterion", "principle", "severity", "description", "fix", "code_fix", "confidence"}
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv columns: %w", err)
	}

	for _, issue := range result.Issues {
		row := []string{
			orNA(issue.Criterion),
			orNA(string(issue.Principle)),
			orNA(string(issue.Severity)),
			orNA(issue.Description),
			orNA(issue.Fix),
			orNA(issue.CodeFix),
			confidenceCell(issue.Confidence),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *CSVFormatter) FileExtension() string { return "csv" }

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func confidenceCell(confidence int) string {
	if confidence <= 0 {
		return "N/A"
	}
	return strconv.Itoa(confidence)
}
