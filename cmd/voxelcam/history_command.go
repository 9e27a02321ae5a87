package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"voxelcam.ai/internal/bot"
	"voxelcam.ai/internal/persistence/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		dataDir  string
		since    time.Duration
		sessions int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show how long each player has been on camera",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				cfg, err := ctx.load()
				if err != nil {
					return err
				}
				dataDir = cfg.DataDir
			}
			path := bot.HistoryPath(dataDir)
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no history at %s: %w", path, err)
			}
			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			now := time.Now()
			return renderHistory(cmd, store, now.Add(-since), now, sessions)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: DATA_DIR from configuration)")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Only count observations started within this window")
	cmd.Flags().IntVar(&sessions, "sessions", 10, "Number of recent sessions to list")
	return cmd
}

func renderHistory(cmd *cobra.Command, store *history.Store, since, now time.Time, sessions int) error {
	out := cmd.OutOrStdout()
	observed, err := store.Observed(cmd.Context(), since, now)
	if err != nil {
		return fmt.Errorf("query observed time: %w", err)
	}
	if len(observed) == 0 {
		fmt.Fprintln(out, "No players observed in this window.")
	} else {
		rows := make([][]string, 0, len(observed))
		for _, o := range observed {
			rows = append(rows, []string{
				o.Subject,
				o.Observed.Round(time.Second).String(),
				fmt.Sprint(o.Switches),
				o.LastSeen.Local().Format(time.DateTime),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Player", "On camera", "Switches", "Last seen"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight},
		))
	}
	if sessions <= 0 {
		return nil
	}
	return renderSessions(cmd, store, sessions)
}

func renderSessions(cmd *cobra.Command, store *history.Store, limit int) error {
	out := cmd.OutOrStdout()
	list, err := store.Sessions(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("query sessions: %w", err)
	}
	if len(list) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		ended, reason := "running", ""
		if !s.EndedAt.IsZero() {
			ended = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
			reason = s.EndReason
		}
		rows = append(rows, []string{
			shortID(s.ID),
			s.StartedAt.Local().Format(time.DateTime),
			ended,
			fmt.Sprint(s.Switches),
			reason,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Session", "Started", "Duration", "Switches", "End reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
