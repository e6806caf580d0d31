package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benchforge/portcore/internal/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "portcore",
		Short: "Serial port test orchestration core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")

	root.AddCommand(
		newDiscoverCommand(),
		newReserveCommand(),
		newRunCommand(),
		newServeMetricsCommand(),
		newConfigCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadApp() (*app, error) {
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return newApp(settings)
}
