package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arenadata/report-poster/internal/config"
)

const defaultConfigPath = "/etc/report-poster/config.yaml"

// options is shared by all subcommands; setup fills cfg and logger before
// any RunE runs.
type options struct {
	configPath string
	envFile    string
	json       bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "report-poster",
		Short: "Post crash reports to an HTTP collector",
		Long: strings.TrimSpace(`
Builds a report from a message, an optional error and host context, and
delivers it through the reporters named in the config file. Every delivery
attempt is written to the local journal when journal_path is set.
`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.setup(cmd.ErrOrStderr())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "c", defaultConfigPath, "path to config")
	pf.StringVar(&o.envFile, "env-file", ".env", "dotenv file read before the config; missing file is ignored")
	pf.BoolVar(&o.json, "json", false, "log as JSON regardless of log_format")

	cmd.AddCommand(newSendCmd(o), newPipeCmd(o), newHistoryCmd(o))
	return cmd
}

func (o *options) setup(w io.Writer) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.cfg = cfg
	o.logger = newLogger(w, cfg, o.json)
	return nil
}

func newLogger(w io.Writer, cfg config.Config, forceJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseSlogLevel(cfg.LogLevel)}
	if forceJSON || cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
