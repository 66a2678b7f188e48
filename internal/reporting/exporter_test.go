package reporting

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nexassist/a11yscan/pkg/models"
)

func sampleResult() *models.ScanResult {
	return &models.ScanResult{
		ScanID:    "scan_20260825_abcdef12",
		URL:       "https://example.com/pricing",
		StartTime: time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
		Score:     85,
		Issues: []models.Issue{
			{
				Criterion:   "1.4.3",
				Principle:   models.PrinciplePerceivable,
				Severity:    models.SeverityHigh,
				Description: "Body text fails the 4.5:1 contrast ratio.",
				Fix:         "Darken the foreground color.",
				CodeFix:     `color: #1a1a1a;`,
				Confidence:  88,
			},
			{
				Criterion:   "2.4.4",
				Principle:   models.PrincipleOperable,
				Severity:    models.SeverityLow,
				Description: "Link text reads as click here.",
				Fix:         "", // rendered as N/A
				Incomplete:  true,
			},
		},
		Summary:    "Found 2 accessibility issues; compliance score 85/100.",
		Disclaimer: models.Disclaimer,
	}
}

func TestJSONFormatterRoundTrip(t *testing.T) {
	data, err := (&JSONFormatter{}).Format(sampleResult())
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	var decoded models.ScanResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.Score != 85 || len(decoded.Issues) != 2 {
		t.Errorf("decoded = score %d, %d issues", decoded.Score, len(decoded.Issues))
	}
	if decoded.Disclaimer == "" {
		t.Error("disclaimer dropped from JSON export")
	}
}

func TestCSVFormatterLayout(t *testing.T) {
	data, err := (&CSVFormatter{}).Format(sampleResult())
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("report is not valid CSV: %v", err)
	}

	// 6 header rows + column row + 2 issue rows.
	if len(rows) != 9 {
		t.Fatalf("got %d rows, want 9", len(rows))
	}
	if rows[0][0] != "# URL" || rows[0][1] != "https://example.com/pricing" {
		t.Errorf("header row = %v", rows[0])
	}
	if rows[3][1] != "85" {
		t.Errorf("score row = %v", rows[3])
	}

	columns := rows[6]
	if columns[0] != "criterion" || columns[len(columns)-1] != "confidence" {
		t.Errorf("column row = %v", columns)
	}

	second := rows[8]
	if second[4] != "N/A" {
		t.Errorf("empty fix rendered as %q, want N/A", second[4])
	}
	if second[6] != "N/A" {
		t.Errorf("zero confidence rendered as %q, want N/A", second[6])
	}
}

func TestExporterWritesFiles(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(models.ReportingConfig{OutputDir: dir}, nil)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}

	paths, err := exporter.ExportAll(sampleResult(), []string{"json", "csv"})
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}

	for format, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s report: %v", format, err)
		}
		if len(data) == 0 {
			t.Errorf("%s report is empty", format)
		}
		name := strings.TrimSuffix(path, "."+format)
		if !strings.Contains(name, "example.com") {
			t.Errorf("%s filename %q does not carry the site", format, path)
		}
		if strings.HasSuffix(path, ".tmp") {
			t.Errorf("temp file leaked: %q", path)
		}
	}

	stats, err := exporter.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats["total_reports"] != 2 {
		t.Errorf("total_reports = %v, want 2", stats["total_reports"])
	}
}

func TestExporterRejectsUnknownFormat(t *testing.T) {
	exporter, err := NewExporter(models.ReportingConfig{OutputDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	if _, err := exporter.Export(sampleResult(), "pdf"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestExporterRegisterFormatter(t *testing.T) {
	exporter, err := NewExporter(models.ReportingConfig{OutputDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}

	exporter.RegisterFormatter("TXT", &JSONFormatter{})
	formats := exporter.SupportedFormats()
	want := []string{"csv", "json", "txt"}
	if len(formats) != len(want) {
		t.Fatalf("formats = %v", formats)
	}
	for i := range want {
		if formats[i] != want[i] {
			t.Errorf("formats[%d] = %q, want %q", i, formats[i], want[i])
		}
	}
}
