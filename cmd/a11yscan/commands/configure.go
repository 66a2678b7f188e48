package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nexassist/a11yscan/pkg/models"
)

func NewConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Manage a11yscan configuration",
		Long: `Initialize, inspect, and edit the a11yscan configuration file
(providers, tiers, quotas, fetch limits, reporting).`,
	}

	cmd.AddCommand(newConfigureInitCommand())
	cmd.AddCommand(newConfigureShowCommand())
	cmd.AddCommand(newConfigureProvidersCommand())
	return cmd
}

func newConfigureInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long:  `Write the default configuration to the target path (YAML). Refuses to overwrite unless --force is given.`,
		RunE:  runConfigureInit,
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing configuration file")
	_ = viper.BindPFlag("configure.force", cmd.Flags().Lookup("force"))
	return cmd
}

func newConfigureShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the effective configuration after file, environment, and flag merging.`,
		RunE:  runConfigureShow,
	}
}

func newConfigureProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the analysis provider chain",
		Long:  `List the configured AI providers in failover order, with credential status.`,
		RunE:  runConfigureProviders,
	}
}

func configFilePath() (string, error) {
	if path := viper.GetString("config"); path != "" {
		return path, nil
	}
	if path := viper.ConfigFileUsed(); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".a11yscan", "config.yaml"), nil
}

func runConfigureInit(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !viper.GetBool("configure.force") {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	config := models.DefaultConfig()
	if err := config.Save(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# source: %s\n", used)
	} else {
		fmt.Println("# source: built-in defaults")
	}
	fmt.Print(string(data))
	return nil
}

func runConfigureProviders(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tNAME\tMODEL\tTIMEOUT\tCREDENTIALS")
	for i, provider := range config.Analysis.Providers {
		status := "missing (" + provider.APIKeyEnv + ")"
		if os.Getenv(provider.APIKeyEnv) != "" {
			status = "set"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, provider.Name, provider.Model, provider.Timeout, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	tiers := make([]string, 0, len(config.Quota.TierLimits))
	for tier := range config.Quota.TierLimits {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	if len(tiers) > 0 {
		var limits []string
		for _, tier := range tiers {
			limits = append(limits, fmt.Sprintf("%s=%d/day", tier, config.Quota.TierLimits[tier]))
		}
		fmt.Printf("\nQuota overrides: %s\n", strings.Join(limits, ", "))
	}
	return nil
}
