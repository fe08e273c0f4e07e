package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DayuGuo/DEVONthink-agent/internal/index"
	"github.com/DayuGuo/DEVONthink-agent/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		collection string
		force      bool
		noTUI      bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the local vector index",
		Long: `Index crawls the knowledge base through the bridge helper, chunks and
embeds each document, and writes the vector index under ~/.dtagent.
Documents whose modification date is unchanged since the last run are
skipped; use --force to reindex everything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			renderer := ui.NewRenderer(ui.Config{
				Output:     os.Stdout,
				ForcePlain: noTUI,
				NoColor:    ui.DetectNoColor(),
			})
			if err := renderer.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = renderer.Stop() }()

			stats, err := app.manager.Build(ctx, index.BuildOptions{
				Collection: collection,
				Force:      force,
				OnProgress: func(p index.Progress) {
					renderer.UpdateProgress(ui.ProgressEvent{
						Stage:    stageFor(p.Phase),
						Current:  p.Current,
						Total:    p.Total,
						Document: p.Document,
					})
				},
				OnError: func(document string, err error) {
					renderer.AddError(ui.ErrorEvent{Document: document, Err: err, IsWarn: false})
				},
			})
			if err != nil {
				return err
			}

			renderer.Complete(ui.CompletionStats{
				Documents: stats.IndexedDocuments,
				Skipped:   stats.SkippedDocuments,
				Chunks:    stats.TotalChunks,
				Errors:    stats.Errors,
				Duration:  stats.Duration,
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Restrict indexing to one collection")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reindex all documents regardless of modification date")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain line output instead of the interactive display")

	return cmd
}

func stageFor(phase index.Phase) ui.Stage {
	switch phase {
	case index.PhaseCrawling:
		return ui.StageCrawling
	case index.PhaseSaving:
		return ui.StageSaving
	default:
		return ui.StageIndexing
	}
}
