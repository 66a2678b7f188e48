package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"

	"github.com/nexassist/a11yscan/pkg/models"
	"github.com/nexassist/a11yscan/pkg/utils"
)

// Fetcher renders a single page and returns its DOM snapshot. The Playwright
// runtime and browser process are shared; every Fetch gets its own isolated
// browser context so concurrent fetches never share page state.
type Fetcher struct {
	config   models.FetchConfig
	logger   *logrus.Logger
	fallback *FallbackClient

	mu            sync.Mutex
	pw            *playwright.Playwright
	browser       playwright.Browser
	isInitialized bool
	userAgent     string
}

func NewFetcher(config models.FetchConfig, userAgent string, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}
	if userAgent == "" {
		userAgent = "NexAssistAI/1.0"
	}
	f := &Fetcher{
		config:    config,
		logger:    logger,
		userAgent: userAgent,
	}
	if config.HTTPFallback {
		f.fallback = NewFallbackClient(config.FallbackTimeout, config.MaxSnapshotBytes, userAgent, logger)
	}
	return f
}

func (f *Fetcher) initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isInitialized {
		return nil
	}

	if err := playwright.Install(); err != nil {
		f.logger.WithError(err).Warn("Playwright browser install failed (continuing if already installed)")
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start Playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.config.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--no-first-run",
			"--window-size=1920,1080",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	f.pw = pw
	f.browser = browser
	f.isInitialized = true
	f.logger.Info("Browser fetcher initialized")
	return nil
}

// Fetch renders url and returns the snapshot. On renderer failure and with
// the HTTP fallback enabled, a plain GET is attempted before giving up.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*models.DomSnapshot, error) {
	normalized, err := utils.NormalizeURL(pageURL)
	if err != nil {
		return nil, &models.FetchError{Kind: models.FetchNavigationFailed, URL: pageURL, Err: err}
	}

	snapshot, ferr := f.fetchRendered(ctx, normalized)
	if ferr == nil {
		return snapshot, nil
	}
	if f.fallback == nil || ferr.Kind == models.FetchBlocked {
		return nil, ferr
	}

	f.logger.WithError(ferr).Warnf("Rendered fetch failed for %s, trying HTTP fallback", normalized)
	snapshot, fberr := f.fallback.Fetch(ctx, normalized)
	if fberr != nil {
		// Report the renderer's classification; the fallback is best effort.
		return nil, ferr
	}
	return snapshot, nil
}

func (f *Fetcher) fetchRendered(ctx context.Context, pageURL string) (*models.DomSnapshot, *models.FetchError) {
	if err := f.initialize(); err != nil {
		return nil, &models.FetchError{Kind: models.FetchNavigationFailed, URL: pageURL, Err: err}
	}

	start := time.Now()

	browserCtx, err := f.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &f.userAgent,
		Viewport:          &playwright.Size{Width: 1920, Height: 1080},
		IgnoreHttpsErrors: playwright.Bool(true),
		JavaScriptEnabled: playwright.Bool(true),
	})
	if err != nil {
		return nil, &models.FetchError{Kind: models.FetchNavigationFailed, URL: pageURL, Err: err}
	}
	defer browserCtx.Close()

	timeoutMs := float64(f.config.Timeout.Milliseconds())
	browserCtx.SetDefaultTimeout(timeoutMs)
	browserCtx.SetDefaultNavigationTimeout(timeoutMs)

	if len(f.config.BlockedResources) > 0 {
		blocked := make(map[string]bool, len(f.config.BlockedResources))
		for _, rt := range f.config.BlockedResources {
			blocked[rt] = true
		}
		if err := browserCtx.Route("**/*", func(route playwright.Route) {
			if blocked[route.Request().ResourceType()] {
				_ = route.Abort()
			} else {
				_ = route.Continue()
			}
		}); err != nil {
			f.logger.WithError(err).Warn("Failed to install resource blocking route")
		}
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, &models.FetchError{Kind: models.FetchNavigationFailed, URL: pageURL, Err: err}
	}

	// Propagate caller cancellation into the browser context so a timed-out
	// fetch does not keep rendering in the background.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = browserCtx.Close()
		case <-done:
		}
	}()

	resp, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(timeoutMs),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, &models.FetchError{Kind: models.FetchTimeout, URL: pageURL, Err: ctx.Err()}
		}
		return nil, &models.FetchError{Kind: classifyNavigationError(err), URL: pageURL, Err: err}
	}
	if resp != nil && isBotBlockStatus(resp.Status()) {
		return nil, &models.FetchError{
			Kind: models.FetchBlocked,
			URL:  pageURL,
			Err:  fmt.Errorf("target returned status %d", resp.Status()),
		}
	}

	title, err := page.Title()
	if err != nil {
		f.logger.WithError(err).Debug("Failed to read page title")
	}
	html, err := page.Content()
	if err != nil {
		return nil, &models.FetchError{Kind: models.FetchNavigationFailed, URL: pageURL, Err: err}
	}

	html, truncated := TruncateHTML(html, f.config.MaxSnapshotBytes)

	return &models.DomSnapshot{
		URL:           pageURL,
		RenderedHTML:  html,
		Title:         title,
		FetchDuration: time.Since(start),
		Truncated:     truncated,
		ContentHash:   utils.ContentHash([]byte(html)),
	}, nil
}

// Close tears down the shared browser process.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		if err := f.browser.Close(); err != nil {
			return err
		}
		f.browser = nil
	}
	if f.pw != nil {
		if err := f.pw.Stop(); err != nil {
			return err
		}
		f.pw = nil
	}
	f.isInitialized = false
	return nil
}

func classifyNavigationError(err error) models.FetchErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return models.FetchTimeout
	case strings.Contains(msg, "err_blocked_by_client") || strings.Contains(msg, "err_blocked_by_response"):
		return models.FetchBlocked
	default:
		// DNS, connection refused, certificate and protocol failures all land
		// here (ERR_NAME_NOT_RESOLVED, ERR_CONNECTION_REFUSED, ERR_CERT_*).
		return models.FetchNavigationFailed
	}
}

func isBotBlockStatus(status int) bool {
	return status == 403 || status == 429 || status == 503
}
