package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nexassist/a11yscan/pkg/models"
)

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url]",
		Short: "Scan a page for WCAG 2.2 accessibility issues",
		Long: `Render the target page headlessly, analyze it with the configured AI
provider chain, and produce a scored accessibility report. Free-tier
identities get one scan per day; the scan aborts with the reset time when
the quota is spent.`,
		Args: cobra.ExactArgs(1),
		RunE: runScan,
	}

	cmd.Flags().StringP("email", "e", "", "Work email identifying the requester (required)")
	cmd.Flags().Bool("full", false, "Comprehensive scan (all excerpt chunks instead of a preview)")
	cmd.Flags().StringSliceP("formats", "f", nil, "Report formats to export (json, csv)")
	cmd.Flags().StringP("output", "o", "", "Report output directory")
	cmd.Flags().DurationP("timeout", "t", 5*time.Minute, "Overall scan timeout")
	cmd.Flags().Bool("no-export", false, "Print the summary without writing report files")
	_ = cmd.MarkFlagRequired("email")

	_ = viper.BindPFlag("scan.email", cmd.Flags().Lookup("email"))
	_ = viper.BindPFlag("scan.full", cmd.Flags().Lookup("full"))
	_ = viper.BindPFlag("scan.formats", cmd.Flags().Lookup("formats"))
	_ = viper.BindPFlag("scan.output", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("scan.timeout", cmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("scan.no_export", cmd.Flags().Lookup("no-export"))

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	targetURL := args[0]
	email := viper.GetString("scan.email")

	if dir := viper.GetString("scan.output"); dir != "" {
		viper.Set("output_directory", dir)
	}

	application, err := buildApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("scan.timeout"))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if application.config.Metrics.Enabled {
		go func() {
			if err := application.metrics.Serve(ctx, application.config.Metrics.Listen); err != nil {
				logrus.WithError(err).Warn("Metrics server stopped")
			}
		}()
	}

	logrus.Infof("Starting accessibility scan for %s", targetURL)
	result, err := application.orchestrator.PerformScan(ctx, email, targetURL, viper.GetBool("scan.full"))
	if err != nil {
		return describeScanError(err)
	}

	displaySummary(result)

	if viper.GetBool("scan.no_export") {
		return nil
	}
	formats := viper.GetStringSlice("scan.formats")
	if len(formats) == 0 {
		formats = application.config.Reporting.Formats
	}
	paths, err := application.exporter.ExportAll(result, formats)
	if err != nil {
		return fmt.Errorf("exporting reports: %w", err)
	}
	for format, path := range paths {
		fmt.Printf("Report (%s): %s\n", format, path)
	}
	return nil
}

// describeScanError keeps "could not load the page" distinguishable from
// "analysis service unavailable" in the user-facing failure notice.
func describeScanError(err error) error {
	var fetchErr *models.FetchError
	if errors.As(err, &fetchErr) {
		return fmt.Errorf("could not load the page (%s): %w", fetchErr.Kind, err)
	}
	var analysisErr *models.AnalysisError
	if errors.As(err, &analysisErr) {
		return fmt.Errorf("analysis service unavailable: %w", err)
	}
	var quotaErr *models.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return fmt.Errorf("%w", quotaErr)
	}
	return err
}

func displaySummary(result *models.ScanResult) {
	duration := result.EndTime.Sub(result.StartTime).Round(time.Second)

	fmt.Printf(`
Scan Summary:
═══════════════════════════════════════════════════════════════
URL:              %s
Page Title:       %s
Compliance Score: %d/100
Issues Found:     %d (Critical: %d, High: %d, Medium: %d, Low: %d)
Scan Duration:    %v
Provider:         %s
═══════════════════════════════════════════════════════════════
`,
		result.URL,
		orDash(result.PageTitle),
		result.Score,
		result.Stats.TotalIssues,
		result.Stats.CriticalIssues,
		result.Stats.HighIssues,
		result.Stats.MediumIssues,
		result.Stats.LowIssues,
		duration,
		orDash(result.Provider),
	)

	if result.Inconclusive {
		fmt.Println("NOTE: analysis was inconclusive; the provider output could not be interpreted.")
	}
	if result.Truncated {
		fmt.Println("NOTE: the page exceeded the snapshot limit and was truncated before analysis.")
	}
	if result.Summary != "" {
		fmt.Printf("\n%s\n", result.Summary)
	}
	fmt.Printf("\n%s\n", result.Disclaimer)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
