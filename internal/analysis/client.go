package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexassist/a11yscan/pkg/models"
	"github.com/nexassist/a11yscan/pkg/utils"
)

// providerEntry pairs an adapter with its hard per-call deadline.
type providerEntry struct {
	provider Provider
	timeout  time.Duration
}

// Client walks the ordered provider chain: each provider gets a hard
// wall-clock deadline and at most one retry on transient failure, then the
// chain advances. AllProvidersExhausted is returned only after every usable
// provider has been tried.
type Client struct {
	entries []providerEntry
	metrics *utils.ScanMetrics
	logger  *logrus.Logger
}

func NewClient(config models.AnalysisConfig, metrics *utils.ScanMetrics, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	entries := make([]providerEntry, 0, len(config.Providers))
	for _, pc := range config.Providers {
		entries = append(entries, providerEntry{
			provider: NewHTTPProvider(pc, config.Temperature, logger),
			timeout:  pc.Timeout,
		})
	}
	return &Client{entries: entries, metrics: metrics, logger: logger}
}

// NewClientWithProviders wires pre-built adapters; used by tests and the
// persona simulator.
func NewClientWithProviders(entries []Provider, timeout time.Duration, metrics *utils.ScanMetrics, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	wrapped := make([]providerEntry, 0, len(entries))
	for _, p := range entries {
		wrapped = append(wrapped, providerEntry{provider: p, timeout: timeout})
	}
	return &Client{entries: wrapped, metrics: metrics, logger: logger}
}

type readier interface {
	Ready() bool
}

func (c *Client) Analyze(ctx context.Context, payload *models.AnalysisPayload) (*models.RawProviderOutput, *models.AnalysisError) {
	var lastErr *models.AnalysisError
	tried := 0

	for i, entry := range c.entries {
		name := entry.provider.Name()
		if r, ok := entry.provider.(readier); ok && !r.Ready() {
			c.logger.WithField("provider", name).Warn("Skipping provider without credentials")
			continue
		}
		tried++

		body, err := c.callProvider(ctx, entry, payload)
		if err == nil {
			c.observe(name, "success")
			return &models.RawProviderOutput{Provider: name, Body: body}, nil
		}

		c.observe(name, "error")
		lastErr = classifyProviderError(name, err)
		c.logger.WithError(err).WithField("provider", name).Warn("Provider failed")

		if i < len(c.entries)-1 {
			if c.metrics != nil {
				c.metrics.ProviderFailovers.Inc()
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	if tried == 0 {
		return nil, &models.AnalysisError{
			Kind: models.AllProvidersExhausted,
			Err:  errors.New("no provider has credentials configured"),
		}
	}
	return nil, &models.AnalysisError{Kind: models.AllProvidersExhausted, Err: lastErr}
}

// callProvider runs one provider with its deadline, retrying exactly once
// when the failure was transient.
func (c *Client) callProvider(ctx context.Context, entry providerEntry, payload *models.AnalysisPayload) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, entry.timeout)
		body, err := entry.provider.Analyze(callCtx, payload)
		cancel()
		if err == nil {
			return body, nil
		}
		lastErr = err

		var ce *callError
		if errors.As(err, &ce) && ce.permanent {
			return "", err
		}
		if ctx.Err() != nil {
			return "", err
		}
		if attempt == 0 {
			c.logger.WithError(err).WithField("provider", entry.provider.Name()).Debug("Retrying provider once")
		}
	}
	return "", lastErr
}

func (c *Client) observe(provider, result string) {
	if c.metrics != nil {
		c.metrics.ProviderCalls.WithLabelValues(provider, result).Inc()
	}
}

func classifyProviderError(provider string, err error) *models.AnalysisError {
	kind := models.ProviderFailed
	var ce *callError
	if errors.As(err, &ce) && ce.kind != "" {
		kind = ce.kind
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = models.ProviderTimeout
	}
	return &models.AnalysisError{Kind: kind, Provider: provider, Err: err}
}
