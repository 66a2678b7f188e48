package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexassist/a11yscan/internal/analysis"
	"github.com/nexassist/a11yscan/internal/billing"
	"github.com/nexassist/a11yscan/internal/quota"
	"github.com/nexassist/a11yscan/pkg/models"
	"github.com/nexassist/a11yscan/pkg/utils"
)

// PageFetcher renders one URL into a DOM snapshot.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*models.DomSnapshot, error)
}

// Analyzer sends a payload down the provider chain.
type Analyzer interface {
	Analyze(ctx context.Context, payload *models.AnalysisPayload) (*models.RawProviderOutput, *models.AnalysisError)
}

// Orchestrator drives one scan end to end: validate, reserve quota, fetch,
// analyze, normalize, score, commit. It is the sole entry point the
// presentation layer calls.
type Orchestrator struct {
	fetcher    PageFetcher
	prompts    *analysis.PromptBuilder
	client     Analyzer
	normalizer *analysis.Normalizer
	domChecker *analysis.DOMChecker
	scorer     *analysis.Scorer
	quota      *quota.Manager
	billing    billing.TierResolver
	metrics    *utils.ScanMetrics
	logger     *logrus.Logger
	domChecks  bool

	mu          sync.RWMutex
	activeScans map[string]*ScanContext
}

// ScanContext tracks one in-flight scan for observability.
type ScanContext struct {
	ScanID    string
	Identity  string
	URL       string
	StartTime time.Time
	Status    string
}

func NewOrchestrator(
	fetcher PageFetcher,
	client Analyzer,
	quotaManager *quota.Manager,
	tierResolver billing.TierResolver,
	config *models.Config,
	metrics *utils.ScanMetrics,
	logger *logrus.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		fetcher:     fetcher,
		prompts:     analysis.NewPromptBuilder(config.Analysis),
		client:      client,
		normalizer:  analysis.NewNormalizer(logger),
		domChecker:  analysis.NewDOMChecker(logger),
		scorer:      analysis.NewScorer(config.Scoring),
		quota:       quotaManager,
		billing:     tierResolver,
		metrics:     metrics,
		logger:      logger,
		domChecks:   config.Analysis.DOMChecks,
		activeScans: make(map[string]*ScanContext),
	}
}

// PerformScan runs the full pipeline for one identity and URL. FetchError and
// AnalysisError abort the scan and release the quota reservation; unparseable
// provider output degrades to an inconclusive result and still consumes
// quota, since the scan did complete a round trip.
func (o *Orchestrator) PerformScan(ctx context.Context, identity, pageURL string, full bool) (*models.ScanResult, error) {
	if !utils.IsValidEmail(identity) {
		return nil, fmt.Errorf("identity %q is not a valid email address", identity)
	}
	normalizedURL, err := utils.NormalizeURL(pageURL)
	if err != nil {
		return nil, err
	}

	tier, err := o.billing.GetTier(ctx, identity)
	if err != nil {
		// Resolvers degrade internally; an error here means misconfiguration.
		return nil, fmt.Errorf("resolving tier for %s: %w", identity, err)
	}

	request := &models.ScanRequest{
		Identity:    identity,
		URL:         normalizedURL,
		Tier:        tier,
		Full:        full,
		SubmittedAt: time.Now(),
	}

	reservation, err := o.quota.CheckAndReserve(identity, tier)
	if err != nil {
		o.observe("quota_denied", tier, 0)
		return nil, err
	}

	scanID := utils.GenerateScanID(normalizedURL, request.SubmittedAt)
	scanCtx := &ScanContext{
		ScanID:    scanID,
		Identity:  identity,
		URL:       normalizedURL,
		StartTime: request.SubmittedAt,
		Status:    "fetching",
	}
	o.trackScan(scanCtx)
	defer o.untrackScan(scanID)

	log := o.logger.WithFields(logrus.Fields{"scan_id": scanID, "url": normalizedURL})
	log.Info("Scan started")

	result, err := o.executePipeline(ctx, scanCtx, request, log)
	elapsed := time.Since(request.SubmittedAt)
	if err != nil {
		o.quota.Release(reservation)
		o.observe(outcomeForError(err), tier, elapsed)
		log.WithError(err).Warn("Scan failed")
		return nil, err
	}

	o.quota.Commit(reservation)
	outcome := "completed"
	if result.Inconclusive {
		outcome = "inconclusive"
	}
	o.observe(outcome, tier, elapsed)
	if o.metrics != nil {
		o.metrics.IssuesReported.Observe(float64(len(result.Issues)))
	}
	log.WithFields(logrus.Fields{
		"score":  result.Score,
		"issues": len(result.Issues),
	}).Info("Scan completed")
	return result, nil
}

func (o *Orchestrator) executePipeline(
	ctx context.Context,
	scanCtx *ScanContext,
	request *models.ScanRequest,
	log *logrus.Entry,
) (*models.ScanResult, error) {
	snapshot, err := o.fetcher.Fetch(ctx, request.URL)
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.FetchDuration.Observe(snapshot.FetchDuration.Seconds())
	}

	o.setStatus(scanCtx, "analyzing")
	payload, err := o.prompts.BuildPayload(snapshot, request)
	if err != nil {
		return nil, err
	}

	raw, analysisErr := o.client.Analyze(ctx, payload)
	if analysisErr != nil {
		return nil, analysisErr
	}

	o.setStatus(scanCtx, "normalizing")
	result := &models.ScanResult{
		ScanID:     scanCtx.ScanID,
		Identity:   request.Identity,
		URL:        request.URL,
		PageTitle:  snapshot.Title,
		StartTime:  request.SubmittedAt,
		Disclaimer: models.Disclaimer,
		Truncated:  snapshot.Truncated,
		Provider:   raw.Provider,
	}

	issues, summary, normErr := o.normalizer.Normalize(raw)
	if normErr != nil {
		log.WithError(normErr).Warn("Provider output was unparseable, degrading scan")
		result.Issues = []models.Issue{}
		result.Score = 100
		result.Summary = "Analysis was inconclusive: the provider returned output that could not be interpreted."
		result.Inconclusive = true
		result.EndTime = time.Now()
		result.Stats = models.ComputeStats(result.Issues)
		return result, nil
	}

	if o.domChecks {
		issues = appendDOMIssues(issues, o.domChecker.Check(snapshot.RenderedHTML))
	}

	result.Issues = issues
	result.Score = o.scorer.Score(issues)
	result.Stats = models.ComputeStats(issues)
	result.Summary = summary
	if result.Summary == "" {
		result.Summary = fmt.Sprintf("Found %d accessibility issues; compliance score %d/100.",
			len(issues), result.Score)
	}
	result.EndTime = time.Now()
	return result, nil
}

// appendDOMIssues adds synthetic structural findings, skipping any the
// provider already reported.
func appendDOMIssues(issues, domIssues []models.Issue) []models.Issue {
	seen := make(map[string]bool, len(issues))
	for i := range issues {
		seen[issues[i].DedupKey()] = true
	}
	for _, issue := range domIssues {
		if !seen[issue.DedupKey()] {
			issues = append(issues, issue)
		}
	}
	return issues
}

func outcomeForError(err error) string {
	var fetchErr *models.FetchError
	if errors.As(err, &fetchErr) {
		return "fetch_failed"
	}
	var analysisErr *models.AnalysisError
	if errors.As(err, &analysisErr) {
		return "analysis_failed"
	}
	return "failed"
}

func (o *Orchestrator) observe(outcome string, tier models.Tier, elapsed time.Duration) {
	if o.metrics != nil {
		o.metrics.ObserveScan(outcome, string(tier), elapsed)
	}
}

func (o *Orchestrator) trackScan(scanCtx *ScanContext) {
	o.mu.Lock()
	o.activeScans[scanCtx.ScanID] = scanCtx
	o.mu.Unlock()
}

func (o *Orchestrator) untrackScan(scanID string) {
	o.mu.Lock()
	delete(o.activeScans, scanID)
	o.mu.Unlock()
}

func (o *Orchestrator) setStatus(scanCtx *ScanContext, status string) {
	o.mu.Lock()
	scanCtx.Status = status
	o.mu.Unlock()
}

func (o *Orchestrator) ListActiveScans() []*ScanContext {
	o.mu.RLock()
	defer o.mu.RUnlock()

	scans := make([]*ScanContext, 0, len(o.activeScans))
	for _, scan := range o.activeScans {
		scans = append(scans, scan)
	}
	return scans
}

func (o *Orchestrator) GetStats() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	active := make([]map[string]interface{}, 0, len(o.activeScans))
	for _, scan := range o.activeScans {
		active = append(active, map[string]interface{}{
			"scan_id":    scan.ScanID,
			"identity":   scan.Identity,
			"url":        scan.URL,
			"status":     scan.Status,
			"start_time": scan.StartTime,
		})
	}
	return map[string]interface{}{
		"active_scans":        len(o.activeScans),
		"active_scan_details": active,
		"dom_checks":          o.domChecks,
	}
}
