// Package runctx wires the six core components into the one object a
// CLI command, a scheduled job, or jn serve's HTTP handlers all need:
// a Registry, a profile Resolver, a pipeline Builder, and (optionally)
// a Metrics recorder, built once from config.Config and reused for
// every address the process handles in its lifetime.
package runctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jn-run/jn/internal/address"
	"github.com/jn-run/jn/internal/config"
	"github.com/jn-run/jn/internal/executor"
	"github.com/jn-run/jn/internal/metrics"
	"github.com/jn-run/jn/internal/pipeline"
	"github.com/jn-run/jn/internal/profile"
	"github.com/jn-run/jn/internal/registry"
)

// Environment is the composition root for one jn process: every
// subsystem the pipeline builder/executor need, constructed once from
// Config and reused across however many addresses the process handles
// (one for a CLI invocation, many for jn serve/jn schedule).
type Environment struct {
	Config   config.Config
	Profiles *profile.Resolver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Tail, if set, receives every stderr line from every spawned
	// stage; jn serve wires this to its websocket broadcast hub.
	Tail func(label, line string)

	// The registry (and the builder bound to it) can be swapped by
	// WatchPlugins on a plugin-directory change; guarded so an
	// in-flight request reads a consistent pair.
	mu       sync.RWMutex
	registry *registry.Registry
	builder  *pipeline.Builder
}

// New discovers the plugin registry and builds the profile resolver
// from cfg, returning a ready-to-use Environment. Discovery failures
// that aren't pure I/O errors are logged and the affected plugin is
// skipped; only a directory read failure propagates.
func New(cfg config.Config, logger *slog.Logger, mtr *metrics.Metrics) (*Environment, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := registry.Discover(pluginTierDirs(cfg), discoveryOptions(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("runctx: plugin discovery: %w", err)
	}

	tiers := profile.DefaultTiers(cfg.ProjectDir, cfg.XDGDataHome, cfg.JNHome)
	resolver := profile.NewResolver(tiers, nil)

	return &Environment{
		Config:   cfg,
		Profiles: resolver,
		Metrics:  mtr,
		Logger:   logger,
		registry: reg,
		builder:  pipeline.New(reg, resolver),
	}, nil
}

func discoveryOptions(cfg config.Config, logger *slog.Logger) registry.Options {
	return registry.Options{
		CachePath:     filepath.Join(cfg.CacheDir, "plugins.json"),
		Strict:        cfg.Strict,
		Logger:        logger,
		RequireSigned: cfg.RequireSignedPlugins,
		TrustedKeys:   cfg.TrustedKeys,
	}
}

func pluginTierDirs(cfg config.Config) []registry.TierDir {
	dirs := []registry.TierDir{
		{Tier: registry.TierProject, Path: filepath.Join(cfg.ProjectDir, ".jn", "plugins")},
		{Tier: registry.TierUser, Path: filepath.Join(cfg.XDGDataHome, "jn", "plugins")},
		{Tier: registry.TierBundled, Path: filepath.Join(cfg.JNHome, "plugins")},
	}
	for _, extra := range cfg.PluginPath {
		dirs = append(dirs, registry.TierDir{Tier: registry.TierBundled, Path: extra})
	}
	return dirs
}

// Registry returns the current plugin registry.
func (e *Environment) Registry() *registry.Registry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry
}

// Builder returns the pipeline builder bound to the current registry.
func (e *Environment) Builder() *pipeline.Builder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.builder
}

func (e *Environment) swapRegistry(reg *registry.Registry) {
	e.mu.Lock()
	e.registry = reg
	e.builder = pipeline.New(reg, e.Profiles)
	e.mu.Unlock()
}

// WatchPlugins rebuilds the registry whenever a plugin directory
// changes, swapping the fresh registry in for subsequent requests. It
// blocks until ctx is cancelled; run it in its own goroutine from a
// long-lived process (jn serve, jn schedule run).
func (e *Environment) WatchPlugins(ctx context.Context) error {
	return registry.Watch(ctx, pluginTierDirs(e.Config), discoveryOptions(e.Config, e.Logger), func(reg *registry.Registry) {
		e.Logger.Info("plugin registry reloaded")
		e.swapRegistry(reg)
	})
}

// RunResult is one invocation's outcome, tagged with a generated run
// ID so jn serve and jn schedule can correlate log lines and status
// queries for the same run.
type RunResult struct {
	RunID     string
	StartedAt time.Time
	Result    *executor.Result
	Err       error
}

// Get resolves addr as a read pipeline and streams NDJSON to out.
func (e *Environment) Get(ctx context.Context, addr string, out io.Writer, errOut io.Writer) RunResult {
	return e.run(ctx, func() (*pipeline.Pipeline, error) {
		a, err := address.Parse(addr, address.DirectionIn)
		if err != nil {
			return nil, err
		}
		return e.Builder().BuildRead(a)
	}, nil, out, errOut)
}

// Put resolves addr as a write pipeline, reading NDJSON from in.
func (e *Environment) Put(ctx context.Context, addr string, in io.Reader, errOut io.Writer) RunResult {
	return e.run(ctx, func() (*pipeline.Pipeline, error) {
		a, err := address.Parse(addr, address.DirectionOut)
		if err != nil {
			return nil, err
		}
		return e.Builder().BuildWrite(a)
	}, in, nil, errOut)
}

func (e *Environment) run(ctx context.Context, build func() (*pipeline.Pipeline, error), in io.Reader, out, errOut io.Writer) RunResult {
	runID := uuid.NewString()
	started := time.Now()
	logger := e.Logger.With("run_id", runID)

	p, err := build()
	if err != nil {
		logger.Error("pipeline assembly failed", "error", err)
		return RunResult{RunID: runID, StartedAt: started, Err: err}
	}

	done := e.Metrics.RecordRun()
	hooks := e.Metrics.Hooks()
	if e.Tail != nil {
		hooks = executor.MergeHooks(hooks, executor.Hooks{OnStderrLine: e.Tail})
	}
	res, err := executor.Execute(ctx, p, in, out, errOut, executor.Options{Hooks: hooks})
	exitCode := 0
	if res != nil {
		exitCode = res.ExitCode
	}
	done(exitCode)

	if err != nil {
		logger.Warn("pipeline execution reported a failure", "error", err, "exit_code", exitCode)
	} else {
		logger.Info("pipeline execution completed", "exit_code", exitCode, "duration", time.Since(started))
	}
	return RunResult{RunID: runID, StartedAt: started, Result: res, Err: err}
}
