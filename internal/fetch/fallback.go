package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexassist/a11yscan/pkg/models"
	"github.com/nexassist/a11yscan/pkg/utils"
)

// FallbackClient performs a plain HTTP GET when headless rendering is
// unavailable. The snapshot it produces carries the raw server HTML, which is
// good enough for static pages but misses client-rendered content.
type FallbackClient struct {
	client    *http.Client
	maxBytes  int
	userAgent string
	logger    *logrus.Logger
}

func NewFallbackClient(timeout time.Duration, maxBytes int, userAgent string, logger *logrus.Logger) *FallbackClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &FallbackClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
		maxBytes:  maxBytes,
		userAgent: userAgent,
		logger:    logger,
	}
}

func (c *FallbackClient) Fetch(ctx context.Context, pageURL string) (*models.DomSnapshot, *models.FetchError) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &models.FetchError{Kind: models.FetchNavigationFailed, URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		kind := models.FetchNavigationFailed
		if ctx.Err() == context.DeadlineExceeded || isTimeoutError(err) {
			kind = models.FetchTimeout
		}
		return nil, &models.FetchError{Kind: kind, URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if isBotBlockStatus(resp.StatusCode) {
		return nil, &models.FetchError{
			Kind: models.FetchBlocked,
			URL:  pageURL,
			Err:  fmt.Errorf("target returned status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &models.FetchError{
			Kind: models.FetchNavigationFailed,
			URL:  pageURL,
			Err:  fmt.Errorf("target returned status %d", resp.StatusCode),
		}
	}

	// Read one byte past the cap to detect truncation without unbounded reads.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxBytes)+1))
	if err != nil {
		return nil, &models.FetchError{Kind: models.FetchNavigationFailed, URL: pageURL, Err: err}
	}

	html := string(body)
	truncated := false
	if len(body) > c.maxBytes {
		html, _ = TruncateHTML(html, c.maxBytes)
		truncated = true
	}

	return &models.DomSnapshot{
		URL:           pageURL,
		RenderedHTML:  html,
		Title:         extractTitle(html),
		FetchDuration: time.Since(start),
		Truncated:     truncated,
		ContentHash:   utils.ContentHash([]byte(html)),
	}, nil
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func extractTitle(html string) string {
	lower := strings.ToLower(html)
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	open := strings.Index(lower[start:], ">")
	if open < 0 {
		return ""
	}
	rest := html[start+open+1:]
	end := strings.Index(strings.ToLower(rest), "</title>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
