package cmd

import (
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and search telemetry status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			meta := app.store.Metadata()
			cmd.Println("Index")
			if app.store.ChunkCount() == 0 {
				cmd.Println("  no index built; run 'dtagent index'")
			} else {
				cmd.Printf("  documents:  %d\n", app.store.DocumentCount())
				cmd.Printf("  chunks:     %d\n", app.store.ChunkCount())
				cmd.Printf("  provider:   %s (%s, %d dims)\n", meta.Provider, meta.Model, meta.Dimensions)
				cmd.Printf("  updated:    %s\n", meta.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}

			if app.telemetry == nil {
				return nil
			}
			summary, err := app.telemetry.Summarize()
			if err != nil {
				app.logger.Warn("telemetry summary failed", "error", err)
				return nil
			}
			cmd.Println("\nSearches")
			cmd.Printf("  total:        %d\n", summary.TotalSearches)
			cmd.Printf("  zero results: %d\n", summary.ZeroResultCount)
			cmd.Printf("  avg duration: %.1fms\n", summary.AvgDurationMs)
			cmd.Printf("  avg results:  %.1f\n", summary.AvgResultCount)

			paths := make([]string, 0, len(summary.PathCounts))
			for p := range summary.PathCounts {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				cmd.Printf("  path %-9s %d\n", p+":", summary.PathCounts[p])
			}
			return nil
		},
	}
	return cmd
}
