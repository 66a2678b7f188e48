package commands

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/nexassist/a11yscan/internal/analysis"
	"github.com/nexassist/a11yscan/internal/billing"
	"github.com/nexassist/a11yscan/internal/fetch"
	"github.com/nexassist/a11yscan/internal/orchestration"
	"github.com/nexassist/a11yscan/internal/quota"
	"github.com/nexassist/a11yscan/internal/reporting"
	"github.com/nexassist/a11yscan/pkg/models"
	"github.com/nexassist/a11yscan/pkg/utils"
)

// app bundles the wired scan pipeline for one CLI invocation.
type app struct {
	config       *models.Config
	logger       *logrus.Logger
	metrics      *utils.ScanMetrics
	fetcher      *fetch.Fetcher
	client       *analysis.Client
	quota        *quota.Manager
	billing      billing.TierResolver
	orchestrator *orchestration.Orchestrator
	exporter     *reporting.Exporter
}

// loadConfig resolves the effective configuration: file (when one is in use),
// then environment/flag overrides bound through viper.
func loadConfig() (*models.Config, error) {
	config := models.DefaultConfig()

	if path := viper.ConfigFileUsed(); path != "" {
		if err := config.Load(path); err != nil {
			return nil, err
		}
	}

	if dir := viper.GetString("output_directory"); dir != "" {
		config.Reporting.OutputDir = dir
	}
	if dir := viper.GetString("data_directory"); dir != "" {
		config.Global.DataDir = dir
	}
	if raw := viper.GetString("fetch_timeout"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			config.Fetch.Timeout = d
		}
	}
	if level := viper.GetString("log_level"); level != "" {
		config.Global.LogLevel = level
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func buildApp() (*app, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := logrus.StandardLogger()
	metrics := utils.NewScanMetrics(false)

	fetcher := fetch.NewFetcher(config.Fetch, config.Global.UserAgent, logger)
	client := analysis.NewClient(config.Analysis, metrics, logger)

	quotaManager, err := quota.NewManager(config, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing quota manager: %w", err)
	}

	tierResolver := billing.NewCachedResolver(
		billing.NewConfigResolver(config.Billing, logger),
		config.Billing.CacheTTL,
		logger,
	)

	exporter, err := reporting.NewExporter(config.Reporting, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing exporter: %w", err)
	}

	return &app{
		config:       config,
		logger:       logger,
		metrics:      metrics,
		fetcher:      fetcher,
		client:       client,
		quota:        quotaManager,
		billing:      tierResolver,
		orchestrator: orchestration.NewOrchestrator(fetcher, client, quotaManager, tierResolver, config, metrics, logger),
		exporter:     exporter,
	}, nil
}

func (a *app) Close() {
	if err := a.fetcher.Close(); err != nil {
		a.logger.WithError(err).Debug("Browser teardown failed")
	}
}
