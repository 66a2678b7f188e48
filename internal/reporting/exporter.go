package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nexassist/a11yscan/pkg/models"
	"github.com/nexassist/a11yscan/pkg/utils"
)

// Formatter renders a finished scan result into one output format. The result
// is consumed verbatim: formatters never re-validate issue fields, only
// render placeholders for what is missing.
type Formatter interface {
	Format(result *models.ScanResult) ([]byte, error)
	FileExtension() string
}

// Exporter writes scan reports to disk in every configured format.
type Exporter struct {
	formatters map[string]Formatter
	outputDir  string
	logger     *logrus.Logger
	mu         sync.RWMutex
}

func NewExporter(config models.ReportingConfig, logger *logrus.Logger) (*Exporter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := utils.EnsureDir(config.OutputDir); err != nil {
		return nil, fmt.Errorf("creating report dir: %w", err)
	}

	e := &Exporter{
		formatters: make(map[string]Formatter),
		outputDir:  config.OutputDir,
		logger:     logger,
	}
	e.RegisterFormatter("json", &JSONFormatter{})
	e.RegisterFormatter("csv", &CSVFormatter{})
	return e, nil
}

func (e *Exporter) RegisterFormatter(name string, formatter Formatter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.formatters[strings.ToLower(name)] = formatter
}

func (e *Exporter) SupportedFormats() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	formats := make([]string, 0, len(e.formatters))
	for name := range e.formatters {
		formats = append(formats, name)
	}
	sort.Strings(formats)
	return formats
}

// Export writes the result in one format and returns the file path. The write
// is atomic so readers never observe a partial report.
func (e *Exporter) Export(result *models.ScanResult, format string) (string, error) {
	e.mu.RLock()
	formatter, ok := e.formatters[strings.ToLower(format)]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unsupported report format: %s", format)
	}

	data, err := formatter.Format(result)
	if err != nil {
		return "", fmt.Errorf("formatting %s report: %w", format, err)
	}

	path := filepath.Join(e.outputDir, e.filename(result, formatter.FileExtension()))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write temp report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("atomically write report: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"scan_id": result.ScanID,
		"format":  format,
		"path":    path,
	}).Info("Report exported")
	return path, nil
}

// ExportAll writes the result in every requested format concurrently and
// returns the produced paths keyed by format.
func (e *Exporter) ExportAll(result *models.ScanResult, formats []string) (map[string]string, error) {
	var (
		g     errgroup.Group
		pmu   sync.Mutex
		paths = make(map[string]string, len(formats))
	)
	for _, format := range formats {
		format := format
		g.Go(func() error {
			path, err := e.Export(result, format)
			if err != nil {
				return err
			}
			pmu.Lock()
			paths[format] = path
			pmu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return paths, err
	}
	return paths, nil
}

func (e *Exporter) filename(result *models.ScanResult, ext string) string {
	base := utils.SanitizeFilename(result.URL)
	if base == "" {
		base = result.ScanID
	}
	return fmt.Sprintf("a11y_%s_%s.%s", base, result.StartTime.Format("20060102_150405"), ext)
}

func (e *Exporter) GetStats() (map[string]interface{}, error) {
	entries, err := os.ReadDir(e.outputDir)
	if err != nil {
		return nil, fmt.Errorf("reading report dir: %w", err)
	}

	var totalSize int64
	byFormat := make(map[string]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		totalSize += info.Size()
		ext := strings.TrimPrefix(filepath.Ext(entry.Name()), ".")
		byFormat[ext]++
	}

	return map[string]interface{}{
		"output_dir":       e.outputDir,
		"total_reports":    len(entries),
		"total_size_bytes": totalSize,
		"by_format":        byFormat,
		"collected_at":     time.Now(),
	}, nil
}
