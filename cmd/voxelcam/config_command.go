package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate and print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			entries := cfg.Entries()
			rows := make([][]string, 0, len(entries)+len(cfg.ShowcaseLocations))
			for _, e := range entries {
				rows = append(rows, []string{e[0], e[1]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Value"}, rows, nil))

			if len(cfg.ShowcaseLocations) > 0 {
				locRows := make([][]string, 0, len(cfg.ShowcaseLocations))
				for i, l := range cfg.ShowcaseLocations {
					dwell := "default"
					if l.Duration > 0 {
						dwell = fmt.Sprint(l.Duration.Std())
					}
					locRows = append(locRows, []string{
						fmt.Sprint(i + 1),
						l.Description,
						fmt.Sprintf("%g, %g, %g", l.Position[0], l.Position[1], l.Position[2]),
						fmt.Sprintf("%g / %g", l.Yaw, l.Pitch),
						dwell,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"#", "Location", "Position", "Yaw / Pitch", "Dwell"},
					locRows,
					[]columnAlignment{alignRight},
				))
			}
			return nil
		},
	}
}
