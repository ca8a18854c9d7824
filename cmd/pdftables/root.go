package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/pdftables/internal/common"
)

// cli carries what every subcommand needs once flags are parsed.
type cli struct {
	envFiles []string
	logLevel string
	noColor  bool

	cfg    *common.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "pdftables",
		Short: "Extract tables from scanned PDFs with a vision model",
		Long: `pdftables renders every page of a PDF, asks a vision-capable model for the
rows matching your columns, and writes them to an Excel workbook. Progress is
checkpointed so interrupted runs resume where they stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			common.LoadDotEnv(c.envFiles...)
			c.cfg = common.LoadConfig()
			if c.logLevel != "" {
				c.cfg.Log.Level = strings.ToLower(c.logLevel)
			}
			c.logger = newLogger(c.cfg.Log, os.Stdout)
			slog.SetDefault(c.logger)
			if c.noColor {
				color.NoColor = true
			}
			return nil
		},
	}

	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newBatchCmd(c), newServeCmd(c), newRunsCmd(c))
	return root
}

func newLogger(cfg common.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
