package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nexassist/a11yscan/pkg/models"
)

// Provider is one adapter in the analysis fallback chain.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, payload *models.AnalysisPayload) (string, error)
}

// callError classifies a provider failure for the retry and failover policy.
// Permanent failures (malformed request, bad credentials) are not retried.
type callError struct {
	kind      models.AnalysisErrorKind
	permanent bool
	err       error
}

func (e *callError) Error() string { return e.err.Error() }
func (e *callError) Unwrap() error { return e.err }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// HTTPProvider speaks the OpenAI-compatible chat-completions protocol. The
// API key is read from the configured environment variable at construction so
// config files never carry secrets.
type HTTPProvider struct {
	config      models.ProviderConfig
	apiKey      string
	temperature float64
	client      *http.Client
	limiter     *rate.Limiter
	logger      *logrus.Logger
}

func NewHTTPProvider(config models.ProviderConfig, temperature float64, logger *logrus.Logger) *HTTPProvider {
	if logger == nil {
		logger = logrus.New()
	}
	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return &HTTPProvider{
		config:      config,
		apiKey:      os.Getenv(config.APIKeyEnv),
		temperature: temperature,
		client: &http.Client{
			// The per-call context carries the hard deadline; this is a
			// backstop for a provider that never responds.
			Timeout: config.Timeout + 5*time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}
}

func (p *HTTPProvider) Name() string { return p.config.Name }

// Ready reports whether this provider has credentials to call with.
func (p *HTTPProvider) Ready() bool { return p.apiKey != "" }

// Analyze sends one chat-completions request per snapshot excerpt and joins
// the raw response bodies. The bodies are untrusted text; the normalizer does
// all interpretation.
func (p *HTTPProvider) Analyze(ctx context.Context, payload *models.AnalysisPayload) (string, error) {
	if !p.Ready() {
		return "", &callError{
			permanent: true,
			err:       fmt.Errorf("provider %s: %s is not set", p.config.Name, p.config.APIKeyEnv),
		}
	}

	var bodies []string
	for i, excerpt := range payload.SnapshotExcerpts {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return "", &callError{kind: models.ProviderTimeout, err: err}
			}
		}
		body, err := p.call(ctx, payload.Instructions, excerpt, payload.Narrative)
		if err != nil {
			return "", fmt.Errorf("excerpt %d/%d: %w", i+1, len(payload.SnapshotExcerpts), err)
		}
		bodies = append(bodies, body)
	}
	return strings.Join(bodies, "\n"), nil
}

func (p *HTTPProvider) call(ctx context.Context, instructions, excerpt string, narrative bool) (string, error) {
	reqBody := chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: instructions + "\n\nHTML: " + excerpt},
		},
		Temperature: p.temperature,
		MaxTokens:   1500,
	}
	if !narrative {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", &callError{permanent: true, err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", &callError{permanent: true, err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &callError{kind: models.ProviderTimeout, err: err}
		}
		return "", &callError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &callError{err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &callError{
			kind: models.ProviderRateLimited,
			err:  fmt.Errorf("provider %s rate limited (429)", p.config.Name),
		}
	case resp.StatusCode >= 500:
		return "", &callError{err: fmt.Errorf("provider %s returned status %d", p.config.Name, resp.StatusCode)}
	case resp.StatusCode >= 400:
		return "", &callError{
			permanent: true,
			err:       fmt.Errorf("provider %s rejected request with status %d: %s", p.config.Name, resp.StatusCode, summarizeBody(raw)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &callError{err: fmt.Errorf("provider %s sent an unreadable envelope: %w", p.config.Name, err)}
	}
	if parsed.Error != nil {
		return "", &callError{err: fmt.Errorf("provider %s error: %s", p.config.Name, parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return "", &callError{err: fmt.Errorf("provider %s returned no choices", p.config.Name)}
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func summarizeBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
