package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"laborline/internal/config"
	appLog "laborline/internal/log"
	"laborline/internal/model"
	"laborline/internal/timeline"
)

const version = "0.3.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "laborline",
		Short:         "Labor timeline analysis: billable time, missing time and overlaps",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/laborline/config.yaml", "Path to config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newAnalyzeCmd(&configPath))
	root.AddCommand(newImportCmd(&configPath))
	root.AddCommand(newFormatCmd())
	return root
}

// loadConfig reads the config file. With create set a missing file is
// written with defaults, as the server does on first run; one-shot
// commands just use the defaults.
func loadConfig(path string, create bool) (*config.Config, error) {
	if !create {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg := config.DefaultConfig()
			cfg.ApplyEnv()
			cfg.Normalize()
			return cfg, nil
		}
	}
	return config.Load(path)
}

func setupLogging(cfg *config.Config) {
	appLog.Setup(cfg.Env, appLog.ParseLevel(cfg.LogLevel))
}

func newAnalyzer(cfg *config.Config) (*timeline.Analyzer, error) {
	include := make(map[model.Kind]bool, len(cfg.Kinds))
	for k, v := range cfg.Kinds {
		include[model.Kind(k)] = v
	}
	return timeline.New(timeline.Options{
		Location:         cfg.Location(),
		OverlapThreshold: cfg.OverlapThreshold(),
		Include:          include,
	})
}

func newFormatCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "format <minutes>",
		Short: "Format a minute count as h:mm or words",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("minutes must be a number: %w", err)
			}
			style := timeline.FormatShort
			if long {
				style = timeline.FormatLong
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), timeline.FormatMinutes(m, style))
			return nil
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, `Use words, e.g. "2 hours and 5 minutes"`)
	return cmd
}
