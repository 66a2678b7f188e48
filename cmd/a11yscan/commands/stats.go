package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show quota usage and report statistics",
		Long:  `Show the current day's quota usage (optionally for one identity) and the report directory statistics.`,
		RunE:  runStats,
	}
	cmd.Flags().StringP("email", "e", "", "Show remaining quota for this identity")
	_ = viper.BindPFlag("stats.email", cmd.Flags().Lookup("email"))
	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	application, err := buildApp()
	if err != nil {
		return err
	}
	defer application.Close()

	fmt.Println("Runtime Statistics:")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	quotaStats := application.quota.GetStats()
	fmt.Printf("Tracked Identities: %v\n", quotaStats["tracked_identities"])
	fmt.Printf("Active Today:       %v\n", quotaStats["active_today"])
	fmt.Printf("Quota Timezone:     %v\n", quotaStats["timezone"])

	if email := viper.GetString("stats.email"); email != "" {
		tier, err := application.billing.GetTier(cmd.Context(), email)
		if err != nil {
			return fmt.Errorf("resolving tier: %w", err)
		}
		count, limit := application.quota.Usage(email, tier)
		if limit > 0 {
			fmt.Printf("\n%s (%s tier): %d of %d scans used today\n", email, tier, count, limit)
		} else {
			fmt.Printf("\n%s (%s tier): %d scans today (unlimited)\n", email, tier, count)
		}
	}

	reportStats, err := application.exporter.GetStats()
	if err != nil {
		return fmt.Errorf("reading report stats: %w", err)
	}
	fmt.Printf("\nReports Directory:  %v\n", reportStats["output_dir"])
	fmt.Printf("Total Reports:      %v\n", reportStats["total_reports"])
	fmt.Printf("Total Size (bytes): %v\n", reportStats["total_size_bytes"])

	return nil
}
