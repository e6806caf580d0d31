package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newDiscoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List attached serial ports and their resolved BIB/UUT mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			ctx := context.Background()
			a.hardwareCache.Start(ctx)
			defer a.hardwareCache.Stop()

			descriptors, err := a.enumerator.Discover(ctx)
			if err != nil {
				return fmt.Errorf("discover ports: %w", err)
			}

			for _, d := range descriptors {
				mapping := a.resolver.Resolve(ctx, d.PortName)
				fmt.Printf("%-16s chip=%-10s valid=%-5t bib=%-20s uut=%-16s port_index=%d fallback=%t\n",
					d.PortName, d.ChipFamily, d.ValidForPool,
					mapping.BibID, mapping.UutID, mapping.PortIndex, mapping.FromFallback)
			}
			return nil
		},
	}
}
