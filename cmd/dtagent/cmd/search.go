package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DayuGuo/DEVONthink-agent/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		collection   string
		limit        int
		noSemantic   bool
		noRelated    bool
		semanticOnly bool
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search runs the hybrid pipeline: a keyword search against the knowledge
base, a semantic search against the local vector index, and a related
documents lookup seeded from the best match. Results found by more
than one path rank first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			query := args[0]
			var resp *search.Response
			if semanticOnly {
				resp, err = app.engine.SemanticSearch(cmd.Context(), query, limit)
			} else {
				resp, err = app.engine.HybridSearch(cmd.Context(), query, search.Options{
					Collection:     collection,
					TopK:           limit,
					EnableSemantic: !noSemantic,
					EnableRelated:  !noRelated,
				})
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			printResults(cmd, resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Restrict search to one collection")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().BoolVar(&noSemantic, "no-semantic", false, "Skip the vector index path")
	cmd.Flags().BoolVar(&noRelated, "no-related", false, "Skip the related documents path")
	cmd.Flags().BoolVar(&semanticOnly, "semantic-only", false, "Vector index path only")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Machine-readable JSON output")

	return cmd
}

func printResults(cmd *cobra.Command, resp *search.Response) {
	if len(resp.Results) == 0 {
		cmd.Println("No results.")
		if !resp.IndexAvailable {
			cmd.Println("Hint: no vector index found; run 'dtagent index' to enable semantic search.")
		}
		return
	}

	for i, r := range resp.Results {
		paths := make([]string, len(r.Paths))
		for j, p := range r.Paths {
			paths[j] = string(p)
		}
		cmd.Printf("%2d. %s  (%.2f via %s)\n", i+1, r.Name, r.Score, strings.Join(paths, "+"))
		if r.Collection != "" {
			cmd.Printf("    collection: %s\n", r.Collection)
		}
		if r.Snippet != "" {
			cmd.Printf("    %s\n", firstLine(r.Snippet))
		}
	}
	cmd.Printf("\n%d results via %s\n", len(resp.Results), pathList(resp.SearchPaths))
	if !resp.IndexAvailable {
		cmd.Println("Vector index unavailable; showing keyword results only.")
	}
}

func pathList(paths []search.Path) string {
	if len(paths) == 0 {
		return "no paths"
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 160
	if runes := []rune(s); len(runes) > max {
		return fmt.Sprintf("%s...", string(runes[:max]))
	}
	return s
}
