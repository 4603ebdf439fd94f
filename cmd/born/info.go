package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/mathengine/engine"
	"github.com/born-ml/mathengine/internal/config"
)

func newInfoCommand(a *app) *cobra.Command {
	var (
		gpu     int
		threads int
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Open an engine and print what it reports",
		Long: `Open an engine and print its kind, device and memory telemetry.

Without flags the default engine is opened (see BORN_DEFAULT_ENGINE).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.factory()
			if err != nil {
				return err
			}

			var e *engine.Engine
			switch {
			case cmd.Flags().Changed("gpu"):
				e, err = f.NewGPU(gpu)
			case cmd.Flags().Changed("threads"):
				e, err = f.NewCPU(threads)
			default:
				e, err = f.Default()
			}
			if err != nil {
				return err
			}
			defer e.Close()

			rows, err := describe(e, a.cfg)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			table.AppendBulk(rows)
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&gpu, "gpu", 0, "open the GPU at this index")
	cmd.Flags().IntVar(&threads, "threads", 0, "open a CPU engine with this many threads (0 = one per CPU)")
	cmd.MarkFlagsMutuallyExclusive("gpu", "threads")
	return cmd
}

func describe(e *engine.Engine, cfg config.Config) ([][]string, error) {
	rows := [][]string{
		{"engine", e.ID()},
		{"kind", e.Kind().String()},
	}

	switch e.Kind() {
	case engine.GPU:
		info, err := e.DeviceInfo()
		if err != nil {
			return nil, err
		}
		rows = append(rows,
			[]string{"device", fmt.Sprintf("%d: %s", info.Index, info.Name)},
			[]string{"api", info.Type.String()},
		)
		if info.Vendor != "" {
			rows = append(rows, []string{"vendor", info.Vendor})
		}
		if info.TotalMemory > 0 {
			rows = append(rows, []string{"device memory", humanize.IBytes(info.TotalMemory)})
		}
	default:
		info, err := e.CPUInfo()
		if err != nil {
			return nil, err
		}
		rows = append(rows, []string{"threads", strconv.Itoa(info.Threads)})
		if len(info.Features) > 0 {
			rows = append(rows, []string{"features", strings.Join(info.Features, " ")})
		}
	}

	stats, err := e.MemoryStats()
	if err != nil {
		return nil, err
	}
	rows = append(rows,
		[]string{"memory limit", cfg.MemoryLimit.String()},
		[]string{"memory in use", humanize.IBytes(stats.InUse)},
		[]string{"peak memory", humanize.IBytes(stats.Peak)},
		[]string{"allocations", humanize.Comma(int64(stats.Allocations))},
		[]string{"scratch pools", fmt.Sprintf("%d threads, %d hits, %d misses", stats.Threads, stats.PoolHits, stats.PoolMisses)},
	)
	return rows, nil
}
