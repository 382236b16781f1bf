// Package cmd provides the CLI commands for frameseek.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aicvlab/frameseek/internal/config"
	"github.com/aicvlab/frameseek/internal/logging"
	"github.com/aicvlab/frameseek/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the frameseek CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frameseek",
		Short: "Multimodal keyframe search for video archives",
		Long: `frameseek serves hybrid keyframe search over a video archive:
dense vector ANN over frame embeddings, full-text search over speech
captions and on-screen text, fused by weighted reciprocal rank fusion.

Run 'frameseek ingest' to build the stores from archive exports, then
'frameseek serve' to start the HTTP API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("frameseek version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(*cobra.Command, []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.FilePath = cfg.Logging.FilePath
	if debugMode {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
