package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newDevicesCommand(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the GPUs engines can be opened on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.factory()
			if err != nil {
				return err
			}
			devices := f.Devices()

			w := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			}
			if len(devices) == 0 {
				fmt.Fprintln(w, "No GPU found. Engines will run on the CPU.")
				return nil
			}

			var data [][]string
			for _, d := range devices {
				memory := "unknown"
				if d.TotalMemory > 0 {
					memory = humanize.IBytes(d.TotalMemory)
				}
				kind := "discrete"
				if d.Integrated {
					kind = "integrated"
				}
				data = append(data, []string{strconv.Itoa(d.Index), d.Name, d.Type.String(), d.Vendor, kind, memory})
			}

			table := tablewriter.NewWriter(w)
			table.SetHeader([]string{"INDEX", "NAME", "API", "VENDOR", "KIND", "MEMORY"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			table.AppendBulk(data)
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}
