// Package cmd provides the CLI commands for dtagent.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DayuGuo/DEVONthink-agent/internal/config"
	"github.com/DayuGuo/DEVONthink-agent/internal/devonthink"
	"github.com/DayuGuo/DEVONthink-agent/internal/embed"
	"github.com/DayuGuo/DEVONthink-agent/internal/logging"
	"github.com/DayuGuo/DEVONthink-agent/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the dtagent CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dtagent",
		Short: "Hybrid retrieval over a DEVONthink knowledge base",
		Long: `dtagent builds a local vector index over a DEVONthink knowledge base
and serves hybrid search (keyword + semantic + related documents) to
AI assistants over MCP and on the command line.

The knowledge base is reached through an external bridge helper; all
index data stays under ~/.dtagent.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("dtagent version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.dtagent/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.FilePath = cfg.LogPath()
	// The MCP server owns stdout/stderr for the protocol; keep the
	// log in the file only.
	logCfg.WriteToStderr = cmd.Name() != "serve"
	if debugMode {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		// A read-only state dir shouldn't block the CLI entirely.
		slog.Warn("file logging unavailable", "error", err)
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newRepository constructs the bridge-backed knowledge base client.
func newRepository(cfg *config.Config) *devonthink.ExecRepository {
	return devonthink.NewExecRepository(cfg.Bridge.Command, cfg.Bridge.Args, cfg.Bridge.Timeout)
}

// newEmbedder resolves the configured embedding provider.
func newEmbedder(cfg *config.Config) (embed.Embedder, error) {
	return embed.New(cfg.Embeddings)
}
