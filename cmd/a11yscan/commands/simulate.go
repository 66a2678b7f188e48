package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nexassist/a11yscan/internal/simulator"
)

func NewSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate [url]",
		Short: "Narrate a page through assistive-technology personas",
		Long: `Render the target page once and ask the AI provider chain to walk through
it as one or more assistive-technology users (screen reader, low vision,
keyboard-only, cognitive load). Simulations do not consume scan quota.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSimulate,
	}

	cmd.Flags().StringSliceP("personas", "p", []string{"blind_screen_reader"}, "Persona keys to simulate")
	cmd.Flags().Bool("list", false, "List available personas and exit")
	cmd.Flags().DurationP("timeout", "t", 5*time.Minute, "Overall simulation timeout")

	_ = viper.BindPFlag("simulate.personas", cmd.Flags().Lookup("personas"))
	_ = viper.BindPFlag("simulate.list", cmd.Flags().Lookup("list"))
	_ = viper.BindPFlag("simulate.timeout", cmd.Flags().Lookup("timeout"))

	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	application, err := buildApp()
	if err != nil {
		return err
	}
	defer application.Close()

	personaPath := filepath.Join(application.config.Global.DataDir, "personas.json")
	personas := simulator.LoadPersonas(personaPath, application.logger)

	if viper.GetBool("simulate.list") {
		fmt.Println("Available personas:")
		fmt.Print(simulator.Describe(personas))
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("a target URL is required (or use --list)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("simulate.timeout"))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	sim := simulator.NewSimulator(application.fetcher, application.client, personas, application.logger)
	experiences, err := sim.SimulateAll(ctx, viper.GetStringSlice("simulate.personas"), args[0])
	if err != nil {
		return err
	}

	for _, exp := range experiences {
		fmt.Printf("\n## %s: %s\n", exp.Persona.Label, exp.URL)
		if exp.Chunked {
			fmt.Println("(page was chunked for simulation; narrative is merged across chunks)")
		}
		fmt.Printf("\n%s\n", exp.Narrative)
	}
	return nil
}
