package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nexassist/a11yscan/internal/billing"
	"github.com/nexassist/a11yscan/internal/quota"
	"github.com/nexassist/a11yscan/pkg/models"
)

type stubFetcher struct {
	snapshot *models.DomSnapshot
	err      error
	delay    time.Duration

	mu    sync.Mutex
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, pageURL string) (*models.DomSnapshot, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, &models.FetchError{Kind: models.FetchTimeout, URL: pageURL, Err: ctx.Err()}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	snapshot := *s.snapshot
	snapshot.URL = pageURL
	return &snapshot, nil
}

type stubAnalyzer struct {
	body string
	err  *models.AnalysisError
}

func (s *stubAnalyzer) Analyze(ctx context.Context, payload *models.AnalysisPayload) (*models.RawProviderOutput, *models.AnalysisError) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.RawProviderOutput{Provider: "stub", Body: s.body}, nil
}

func testConfig() *models.Config {
	config := models.DefaultConfig()
	config.Quota.StatePath = ""
	config.Analysis.DOMChecks = true
	return config
}

func newTestOrchestrator(t *testing.T, fetcher PageFetcher, analyzer Analyzer, config *models.Config) (*Orchestrator, *quota.Manager) {
	t.Helper()
	quotaManager, err := quota.NewManager(config, nil, nil)
	if err != nil {
		t.Fatalf("quota.NewManager: %v", err)
	}
	tierResolver := billing.NewConfigResolver(config.Billing, nil)
	return NewOrchestrator(fetcher, analyzer, quotaManager, tierResolver, config, nil, nil), quotaManager
}

func cleanSnapshot() *models.DomSnapshot {
	return &models.DomSnapshot{
		RenderedHTML:  "<html><head><title>Shop</title></head><body><p>hello</p></body></html>",
		Title:         "Shop",
		FetchDuration: 120 * time.Millisecond,
	}
}

func TestPerformScanHappyPath(t *testing.T) {
	body := `{"issues":[{"criterion":"1.4.3","severity":"High","description":"low contrast text","fix":"increase contrast ratio"}],"summary":"contrast needs work"}`
	o, _ := newTestOrchestrator(t,
		&stubFetcher{snapshot: cleanSnapshot()},
		&stubAnalyzer{body: body},
		testConfig(),
	)

	result, err := o.PerformScan(context.Background(), "dev@example.com", "example.com", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.URL != "https://example.com" {
		t.Errorf("url = %q, want scheme-normalized https://example.com", result.URL)
	}
	if len(result.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(result.Issues))
	}
	if result.Issues[0].Principle != models.PrinciplePerceivable {
		t.Errorf("principle = %q, want Perceivable", result.Issues[0].Principle)
	}
	if result.Score != 90 {
		t.Errorf("score = %d, want 100 - high weight (90)", result.Score)
	}
	if result.Inconclusive {
		t.Error("successful scan flagged inconclusive")
	}
	if result.Disclaimer != models.Disclaimer {
		t.Errorf("disclaimer missing: %q", result.Disclaimer)
	}
	if result.Stats.HighIssues != 1 || result.Stats.TotalIssues != 1 {
		t.Errorf("stats = %+v", result.Stats)
	}
	if result.Summary != "contrast needs work" {
		t.Errorf("summary = %q", result.Summary)
	}
	if result.Provider != "stub" {
		t.Errorf("provider = %q", result.Provider)
	}
}

func TestPerformScanAddsDOMIssues(t *testing.T) {
	snapshot := cleanSnapshot()
	snapshot.RenderedHTML = `<html><body><img src="x.png"><p>hi</p></body></html>`

	o, _ := newTestOrchestrator(t,
		&stubFetcher{snapshot: snapshot},
		&stubAnalyzer{body: `{"issues":[]}`},
		testConfig(),
	)

	result, err := o.PerformScan(context.Background(), "dev@example.com", "example.com", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Issues) != 1 || result.Issues[0].Criterion != "1.1.1" {
		t.Fatalf("expected synthetic missing-alt issue, got %+v", result.Issues)
	}
	if result.Score != 90 {
		t.Errorf("score = %d, want 90", result.Score)
	}
}

func TestPerformScanRejectsBadInput(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		&stubFetcher{snapshot: cleanSnapshot()},
		&stubAnalyzer{body: `{"issues":[]}`},
		testConfig(),
	)

	tests := []struct {
		name     string
		identity string
		url      string
	}{
		{"bad email", "not-an-email", "example.com"},
		{"empty email", "", "example.com"},
		{"bad scheme", "dev@example.com", "ftp://example.com"},
		{"empty url", "dev@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.PerformScan(context.Background(), tt.identity, tt.url, false); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFetchFailureReleasesQuota(t *testing.T) {
	fetchErr := &models.FetchError{Kind: models.FetchTimeout, URL: "https://slow.example.com", Err: context.DeadlineExceeded}
	o, _ := newTestOrchestrator(t,
		&stubFetcher{err: fetchErr},
		&stubAnalyzer{body: `{"issues":[]}`},
		testConfig(),
	)

	_, err := o.PerformScan(context.Background(), "free@example.com", "slow.example.com", false)
	var gotFetch *models.FetchError
	if !errors.As(err, &gotFetch) || gotFetch.Kind != models.FetchTimeout {
		t.Fatalf("expected FetchError{timeout}, got %v", err)
	}

	// The released slot must allow a retry in the same window: the second
	// attempt must reach the fetcher again instead of being quota-denied.
	_, err = o.PerformScan(context.Background(), "free@example.com", "example.com", false)
	gotFetch = nil
	if !errors.As(err, &gotFetch) {
		t.Fatalf("second failure should be a fetch error, not quota: %v", err)
	}
}

func TestAnalysisFailureReleasesQuota(t *testing.T) {
	config := testConfig()
	failing := &stubAnalyzer{err: &models.AnalysisError{Kind: models.AllProvidersExhausted, Err: errors.New("all down")}}
	fetcher := &stubFetcher{snapshot: cleanSnapshot()}
	o, quotaManager := newTestOrchestrator(t, fetcher, failing, config)

	_, err := o.PerformScan(context.Background(), "free@example.com", "example.com", false)
	var analysisErr *models.AnalysisError
	if !errors.As(err, &analysisErr) || analysisErr.Kind != models.AllProvidersExhausted {
		t.Fatalf("expected AnalysisError{all_providers_exhausted}, got %v", err)
	}

	count, _ := quotaManager.Usage("free@example.com", models.TierFree)
	if count != 0 {
		t.Errorf("failed scan consumed quota: count = %d, want 0", count)
	}
}

func TestUnparseableOutputDegradesAndConsumesQuota(t *testing.T) {
	o, quotaManager := newTestOrchestrator(t,
		&stubFetcher{snapshot: cleanSnapshot()},
		&stubAnalyzer{body: "sorry, I cannot help with that"},
		testConfig(),
	)

	result, err := o.PerformScan(context.Background(), "free@example.com", "example.com", false)
	if err != nil {
		t.Fatalf("unparseable output must not abort the scan: %v", err)
	}
	if !result.Inconclusive {
		t.Error("result not flagged inconclusive")
	}
	if len(result.Issues) != 0 {
		t.Errorf("degraded result has %d issues, want 0", len(result.Issues))
	}
	if result.Score != 100 {
		t.Errorf("degraded score = %d, want 100", result.Score)
	}

	count, _ := quotaManager.Usage("free@example.com", models.TierFree)
	if count != 1 {
		t.Errorf("inconclusive scan must consume quota: count = %d, want 1", count)
	}
}

func TestConcurrentFreeTierScansExactlyOneSucceeds(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		&stubFetcher{snapshot: cleanSnapshot(), delay: 50 * time.Millisecond},
		&stubAnalyzer{body: `{"issues":[]}`},
		testConfig(),
	)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		denials   int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.PerformScan(context.Background(), "race@example.com", "example.com", false)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			var quotaErr *models.QuotaExceededError
			if errors.As(err, &quotaErr) {
				denials++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || denials != 1 {
		t.Errorf("successes = %d, denials = %d; want exactly 1 and 1", successes, denials)
	}
}

func TestQuotaDenialReportsResetTime(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		&stubFetcher{snapshot: cleanSnapshot()},
		&stubAnalyzer{body: `{"issues":[]}`},
		testConfig(),
	)

	if _, err := o.PerformScan(context.Background(), "daily@example.com", "example.com", false); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}

	_, err := o.PerformScan(context.Background(), "daily@example.com", "example.com", false)
	var quotaErr *models.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if !quotaErr.NextAvailableAt.After(time.Now()) {
		t.Errorf("reset time %v not in the future", quotaErr.NextAvailableAt)
	}
}

func TestPaidTierScansUnlimited(t *testing.T) {
	config := testConfig()
	config.Billing.IdentityTiers = map[string]string{"agency@example.com": "Agency"}

	o, _ := newTestOrchestrator(t,
		&stubFetcher{snapshot: cleanSnapshot()},
		&stubAnalyzer{body: `{"issues":[]}`},
		config,
	)

	for i := 0; i < 3; i++ {
		if _, err := o.PerformScan(context.Background(), "agency@example.com", "example.com", true); err != nil {
			t.Fatalf("scan %d failed for unlimited tier: %v", i, err)
		}
	}
}
