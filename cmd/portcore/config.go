package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchforge/portcore/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect loaded process configuration",
	}
	cmd.AddCommand(newConfigShowCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var sanitize bool
	var sections []string

	c := &cobra.Command{
		Use:   "show",
		Short: "Print the loaded settings, redacting credential-shaped values by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			resp, err := a.settingsService.GetSettings(context.Background(), config.GetSettingsOptions{
				Sanitize: sanitize,
				Sections: sections,
			})
			if err != nil {
				return fmt.Errorf("get settings: %w", err)
			}

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return fmt.Errorf("render settings: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	c.Flags().BoolVar(&sanitize, "sanitize", true, "redact credential-shaped settings values")
	c.Flags().StringSliceVar(&sections, "section", nil, "limit output to these top-level sections")
	return c
}
