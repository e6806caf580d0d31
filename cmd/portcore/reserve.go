package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchforge/portcore/internal/pool"
	"github.com/benchforge/portcore/internal/reservation"
)

func newReserveCommand() *cobra.Command {
	var clientID string
	var duration time.Duration
	var strict bool
	var chipFamilies []string

	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Reserve a port for clientID and print the lease, releasing it on exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			ctx := context.Background()
			a.hardwareCache.Start(ctx)
			defer a.hardwareCache.Stop()
			a.reservation.Start(ctx)
			defer a.reservation.Stop()

			validationCfg := pool.Permissive()
			if strict {
				validationCfg = pool.StrictFor(chipFamilies...)
			}

			criteria := reservation.Criteria{
				ValidationConfig: validationCfg,
				DefaultDuration:  a.settings.Reservation.DefaultLeaseDuration,
			}

			res, ok := a.reservation.Reserve(ctx, criteria, clientID, duration)
			if !ok {
				return fmt.Errorf("no port available matching criteria")
			}

			fmt.Printf("reservation=%s port=%s expires_at=%s\n", res.ID, res.PortName, res.ExpiresAt.Format(time.RFC3339))
			a.reservation.Release(res.ID, clientID)
			fmt.Println("released")
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "portcore-cli", "client identity for the reservation")
	cmd.Flags().DurationVar(&duration, "duration", 0, "lease duration (defaults to the configured default lease)")
	cmd.Flags().BoolVar(&strict, "strict", false, "only accept listed chip families")
	cmd.Flags().StringSliceVar(&chipFamilies, "chip-family", nil, "chip families accepted in strict mode")
	return cmd
}
