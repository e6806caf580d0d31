package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchforge/portcore/internal/bibconfig"
)

func newRunCommand() *cobra.Command {
	var bibFile string
	var bibID string
	var uutID string
	var portNumber int
	var physicalPort string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the start/test/stop workflow for one declared port",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			root, _, err := a.bibStore.Load(bibFile)
			if err != nil {
				return fmt.Errorf("load bib config: %w", err)
			}

			bib, uut, port, err := findPort(root, bibID, uutID, portNumber)
			if err != nil {
				return err
			}

			if physicalPort == "" {
				physicalPort = port.Settings["physical_port"]
			}
			if physicalPort == "" {
				return fmt.Errorf("no --physical-port given and port %d has no physical_port setting", port.Number)
			}

			summary, err := a.engine.Run(context.Background(), bib, uut, port, physicalPort)
			if err != nil {
				return fmt.Errorf("workflow run failed: %w", err)
			}

			fmt.Printf("%s (%d ms)\n", summary.String(), summary.Duration.Milliseconds())
			if summary.FailureNote != "" {
				fmt.Printf("failure_note=%s\n", summary.FailureNote)
			}
			if !summary.Success {
				return fmt.Errorf("workflow failed: %s", summary.FailureNote)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bibFile, "bib-file", "", "path to the BIB/UUT/port XML configuration document")
	cmd.Flags().StringVar(&bibID, "bib-id", "", "bib id to run; when empty, the first bib declaring the uut and port is used")
	cmd.Flags().StringVar(&uutID, "uut-id", "", "uut id to run")
	cmd.Flags().IntVar(&portNumber, "port-number", 0, "logical port number to run")
	cmd.Flags().StringVar(&physicalPort, "physical-port", "", "physical device path (overrides the port's physical_port setting)")
	_ = cmd.MarkFlagRequired("bib-file")
	_ = cmd.MarkFlagRequired("uut-id")
	_ = cmd.MarkFlagRequired("port-number")
	return cmd
}

func findPort(root *bibconfig.ConfigRoot, bibID, uutID string, portNumber int) (bibconfig.BibDefinition, bibconfig.UutDefinition, bibconfig.PortDefinition, error) {
	for _, bib := range root.Bibs {
		if bibID != "" && bib.ID != bibID {
			continue
		}
		for _, uut := range bib.Uuts {
			if uut.ID != uutID {
				continue
			}
			for _, port := range uut.Ports {
				if port.Number == portNumber {
					return bib, uut, port, nil
				}
			}
		}
	}
	return bibconfig.BibDefinition{}, bibconfig.UutDefinition{}, bibconfig.PortDefinition{},
		fmt.Errorf("no matching bib/uut/port found for bib_id=%q uut_id=%q port=%d", bibID, uutID, portNumber)
}
