package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jn-run/jn/internal/config"
	"github.com/jn-run/jn/internal/jnerrors"
	"github.com/jn-run/jn/internal/metrics"
	"github.com/jn-run/jn/internal/runctx"
)

var (
	verbose bool
	cfg     config.Config
	env     *runctx.Environment
)

var rootCmd = &cobra.Command{
	Use:           "jn",
	Short:         "jn streams data between sources and sinks as newline-delimited JSON",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		installLogger(cmd.ErrOrStderr())
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		e, err := runctx.New(cfg, slog.Default(), metrics.New(cfg.MetricsNamespace, prometheus.DefaultRegisterer))
		if err != nil {
			return err
		}
		env = e
		return nil
	},
}

// installLogger sets the process-wide slog default exactly once, at
// the composition root: a JSON handler when stderr isn't a TTY, a text
// handler otherwise. Every other package takes a *slog.Logger
// explicitly rather than calling slog.Default() itself.
func installLogger(w io.Writer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// Execute runs the command tree and maps the result to the process's
// documented exit codes (0 success, 1 runtime error, 2 usage error,
// 130 on SIGINT).
func Execute() int {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return jnerrors.ExitSuccess
}

func exitCodeFor(err error) int {
	var cancelled *jnerrors.Cancelled
	if errors.As(err, &cancelled) {
		return jnerrors.ExitSIGINT
	}
	fmt.Fprintln(os.Stderr, err)
	if isUsageError(err) {
		return jnerrors.ExitUsageError
	}
	return jnerrors.ExitRuntime
}

// isUsageError matches every error kind detected before any process is
// spawned: malformed address, unresolvable profile, missing plugin, or
// a structurally invalid pipeline.
func isUsageError(err error) bool {
	var (
		parseErr   *jnerrors.AddressParseError
		validation *jnerrors.PipelineValidationError
		notFound   *jnerrors.PluginNotFoundError
		badMode    *jnerrors.ModeUnsupportedError
		noProfile  *jnerrors.ProfileNotFound
		mergeErr   *jnerrors.ProfileMergeError
		varUnset   *jnerrors.VarUnsetError
	)
	return errors.As(err, &parseErr) ||
		errors.As(err, &validation) ||
		errors.As(err, &notFound) ||
		errors.As(err, &badMode) ||
		errors.As(err, &noProfile) ||
		errors.As(err, &mergeErr) ||
		errors.As(err, &varUnset)
}

func init() {
	rootCmd.AddCommand(getCmd, putCmd, pluginsCmd, profilesCmd, scheduleCmd, serveCmd)
}
