package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Global    GlobalConfig    `yaml:"global" json:"global"`
	Fetch     FetchConfig     `yaml:"fetch" json:"fetch"`
	Analysis  AnalysisConfig  `yaml:"analysis" json:"analysis"`
	Scoring   ScoringConfig   `yaml:"scoring" json:"scoring"`
	Quota     QuotaConfig     `yaml:"quota" json:"quota"`
	Billing   BillingConfig   `yaml:"billing" json:"billing"`
	Reporting ReportingConfig `yaml:"reporting" json:"reporting"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
}

type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
	HelpURL   string `yaml:"help_url" json:"help_url"`
	Debug     bool   `yaml:"debug" json:"debug"`
}

type FetchConfig struct {
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxSnapshotBytes int           `yaml:"max_snapshot_bytes" json:"max_snapshot_bytes"`
	Headless         bool          `yaml:"headless" json:"headless"`
	BlockedResources []string      `yaml:"blocked_resources" json:"blocked_resources"`
	HTTPFallback     bool          `yaml:"http_fallback" json:"http_fallback"`
	FallbackTimeout  time.Duration `yaml:"fallback_timeout" json:"fallback_timeout"`
}

// ProviderConfig describes one entry in the analysis fallback chain. API keys
// come from the named environment variable so config files stay shareable.
type ProviderConfig struct {
	Name      string        `yaml:"name" json:"name"`
	Endpoint  string        `yaml:"endpoint" json:"endpoint"`
	Model     string        `yaml:"model" json:"model"`
	APIKeyEnv string        `yaml:"api_key_env" json:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"`
}

type AnalysisConfig struct {
	Providers        []ProviderConfig `yaml:"providers" json:"providers"`
	Temperature      float64          `yaml:"temperature" json:"temperature"`
	ExcerptChunkSize int              `yaml:"excerpt_chunk_size" json:"excerpt_chunk_size"`
	MaxFullChunks    int              `yaml:"max_full_chunks" json:"max_full_chunks"`
	DOMChecks        bool             `yaml:"dom_checks" json:"dom_checks"`
}

type ScoringConfig struct {
	// Per-severity score deductions; zero values fall back to the defaults.
	CriticalWeight int `yaml:"critical_weight" json:"critical_weight"`
	HighWeight     int `yaml:"high_weight" json:"high_weight"`
	MediumWeight   int `yaml:"medium_weight" json:"medium_weight"`
	LowWeight      int `yaml:"low_weight" json:"low_weight"`
}

type QuotaConfig struct {
	StatePath string `yaml:"state_path" json:"state_path"`
	Timezone  string `yaml:"timezone" json:"timezone"`
	// TierLimits overrides the built-in daily allowances; 0 means unlimited.
	TierLimits map[string]int `yaml:"tier_limits" json:"tier_limits"`
}

type BillingConfig struct {
	DefaultTier string `yaml:"default_tier" json:"default_tier"`
	// IdentityTiers pins specific identities to a tier, standing in for the
	// external subscription backend.
	IdentityTiers map[string]string `yaml:"identity_tiers" json:"identity_tiers"`
	CacheTTL      time.Duration     `yaml:"cache_ttl" json:"cache_ttl"`
}

type ReportingConfig struct {
	Formats   []string `yaml:"formats" json:"formats"`
	OutputDir string   `yaml:"output_dir" json:"output_dir"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			LogLevel:  "info",
			UserAgent: "NexAssistAI/1.0 (+https://nexassist.ai)",
			DataDir:   "./data",
			HelpURL:   "https://nexassist.ai/help",
		},
		Fetch: FetchConfig{
			Timeout:          60 * time.Second,
			MaxSnapshotBytes: 512 * 1024,
			Headless:         true,
			BlockedResources: []string{"image", "media", "font", "stylesheet"},
			HTTPFallback:     true,
			FallbackTimeout:  10 * time.Second,
		},
		Analysis: AnalysisConfig{
			Providers: []ProviderConfig{
				{
					Name:      "openai",
					Endpoint:  "https://api.openai.com/v1/chat/completions",
					Model:     "gpt-4o",
					APIKeyEnv: "OPENAI_API_KEY",
					Timeout:   90 * time.Second,
					RateLimit: 1,
				},
			},
			Temperature:      0.3,
			ExcerptChunkSize: 5000,
			MaxFullChunks:    8,
			DOMChecks:        true,
		},
		Scoring: ScoringConfig{
			CriticalWeight: 15,
			HighWeight:     10,
			MediumWeight:   5,
			LowWeight:      2,
		},
		Quota: QuotaConfig{
			StatePath: "./data/quota.json",
			Timezone:  "UTC",
			TierLimits: map[string]int{
				string(TierFree): 1,
			},
		},
		Billing: BillingConfig{
			DefaultTier: string(TierFree),
			CacheTTL:    5 * time.Minute,
		},
		Reporting: ReportingConfig{
			Formats:   []string{"json", "csv"},
			OutputDir: "./reports",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9309",
		},
	}
}

func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Global.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		errs = append(errs, "global.log_level must be one of trace|debug|info|warn|error|fatal|panic")
	}
	if c.Global.DataDir == "" {
		errs = append(errs, "global.data_dir must not be empty")
	}

	if c.Fetch.Timeout <= 0 {
		errs = append(errs, "fetch.timeout must be > 0")
	}
	if c.Fetch.MaxSnapshotBytes <= 0 {
		errs = append(errs, "fetch.max_snapshot_bytes must be > 0")
	}
	if c.Fetch.HTTPFallback && c.Fetch.FallbackTimeout <= 0 {
		errs = append(errs, "fetch.fallback_timeout must be > 0 when http_fallback is enabled")
	}

	if len(c.Analysis.Providers) == 0 {
		errs = append(errs, "analysis.providers must include at least one provider")
	}
	for i, p := range c.Analysis.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("analysis.providers[%d].name must not be empty", i))
		}
		if p.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("analysis.providers[%d].endpoint must not be empty", i))
		}
		if p.Timeout <= 0 {
			errs = append(errs, fmt.Sprintf("analysis.providers[%d].timeout must be > 0", i))
		}
		if p.RateLimit < 0 {
			errs = append(errs, fmt.Sprintf("analysis.providers[%d].rate_limit must be >= 0", i))
		}
	}
	if c.Analysis.ExcerptChunkSize <= 0 {
		errs = append(errs, "analysis.excerpt_chunk_size must be > 0")
	}
	if c.Analysis.MaxFullChunks <= 0 {
		errs = append(errs, "analysis.max_full_chunks must be > 0")
	}

	if c.Scoring.CriticalWeight < 0 || c.Scoring.HighWeight < 0 ||
		c.Scoring.MediumWeight < 0 || c.Scoring.LowWeight < 0 {
		errs = append(errs, "scoring weights must be >= 0")
	}
	if c.Scoring.CriticalWeight < c.Scoring.HighWeight ||
		c.Scoring.HighWeight < c.Scoring.MediumWeight ||
		c.Scoring.MediumWeight < c.Scoring.LowWeight {
		errs = append(errs, "scoring weights must be ordered critical >= high >= medium >= low")
	}

	if c.Quota.StatePath == "" {
		errs = append(errs, "quota.state_path must not be empty")
	}
	if c.Quota.Timezone != "" {
		if _, err := time.LoadLocation(c.Quota.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("quota.timezone %q is not a valid IANA zone", c.Quota.Timezone))
		}
	}
	for tier, limit := range c.Quota.TierLimits {
		if _, ok := ParseTier(tier); !ok {
			errs = append(errs, fmt.Sprintf("quota.tier_limits key %q is not a known tier", tier))
		}
		if limit < 0 {
			errs = append(errs, fmt.Sprintf("quota.tier_limits[%s] must be >= 0", tier))
		}
	}

	if _, ok := ParseTier(c.Billing.DefaultTier); !ok {
		errs = append(errs, fmt.Sprintf("billing.default_tier %q is not a known tier", c.Billing.DefaultTier))
	}
	for identity, tier := range c.Billing.IdentityTiers {
		if _, ok := ParseTier(tier); !ok {
			errs = append(errs, fmt.Sprintf("billing.identity_tiers[%s] %q is not a known tier", identity, tier))
		}
	}

	if c.Reporting.OutputDir == "" {
		errs = append(errs, "reporting.output_dir must not be empty")
	}
	for _, f := range c.Reporting.Formats {
		switch f {
		case "json", "csv":
		default:
			errs = append(errs, fmt.Sprintf("reporting.format %q is not supported", f))
		}
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen must be set when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomically write config: %w", err)
	}
	return nil
}

func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	}

	return c.Validate()
}

// DailyLimit resolves the effective limit for a tier: config override first,
// then the tier's built-in default. Zero means unlimited. Override keys match
// case-insensitively, like every other tier name in the config.
func (c *Config) DailyLimit(tier Tier) int {
	if limit, ok := c.Quota.TierLimits[string(tier)]; ok {
		return limit
	}
	for name, limit := range c.Quota.TierLimits {
		if t, ok := ParseTier(name); ok && t == tier {
			return limit
		}
	}
	return tier.DefaultDailyLimit()
}
