// Package scheduler runs saved jn get/put requests on a cron schedule,
// wrapping robfig/cron/v3 behind a handler-registration and
// functional-options API: each job resolves and executes one address
// pair through a runctx.Environment.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jn-run/jn/internal/runctx"
)

// Job is one recurring pipeline: a cron expression and a source/sink
// address pair. Exactly one of Get/Put addresses is meaningful per job;
// Put additionally names a file to read NDJSON from (jn schedule has no
// interactive stdin to offer a background job).
type Job struct {
	Name     string
	Schedule string
	Get      string // read-side address; mutually exclusive with Put
	Put      string // write-side address
	FromFile string // NDJSON source file for a Put job
}

// RunRecord is one completed job execution, kept for jn serve's
// /schedule endpoint to report against (humanized via xeonx/timeago in
// internal/apiserver, not here).
type RunRecord struct {
	JobName  string
	RunID    string
	Started  time.Time
	Finished time.Time
	ExitCode int
	Err      string
}

// Service owns a cron.Cron instance and the run history for every
// registered job.
type Service struct {
	env    *runctx.Environment
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	history map[string][]RunRecord
}

// Option configures a Service at construction, mirroring the host
// project's scheduler options.go pattern.
type Option func(*Service)

// WithLogger injects a logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCron supplies a preconfigured cron.Cron (e.g. with a non-UTC
// location), primarily for tests.
func WithCron(c *cron.Cron) Option {
	return func(s *Service) { s.cron = c }
}

// New builds a Service bound to env. Call AddJob for each job, then
// Start.
func New(env *runctx.Environment, opts ...Option) *Service {
	s := &Service{env: env, logger: slog.Default(), history: map[string][]RunRecord{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLocation(time.UTC))
	}
	return s
}

// AddJob registers job on the cron scheduler. The five-field cron
// expression follows robfig/cron's default parser.
func (s *Service) AddJob(job Job) (cron.EntryID, error) {
	if job.Get == "" && job.Put == "" {
		return 0, fmt.Errorf("scheduler: job %q declares neither get nor put address", job.Name)
	}
	return s.cron.AddFunc(job.Schedule, func() {
		s.runJob(job)
	})
}

// Start begins firing registered jobs; it does not block.
func (s *Service) Start() { s.cron.Start() }

// Stop halts the scheduler without waiting; the returned context is
// done once any in-flight job has finished.
func (s *Service) Stop() context.Context { return s.cron.Stop() }

// History returns the recorded runs for jobName, most recent last.
func (s *Service) History(jobName string) []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunRecord(nil), s.history[jobName]...)
}

func (s *Service) runJob(job Job) {
	ctx := context.Background()
	started := time.Now()
	logger := s.logger.With("job", job.Name)
	logger.Info("scheduled job starting")

	var rr runctx.RunResult
	switch {
	case job.Get != "":
		rr = s.env.Get(ctx, job.Get, os.Stdout, os.Stderr)
	default:
		f, err := os.Open(job.FromFile)
		if err != nil {
			logger.Error("scheduled job: cannot open source file", "path", job.FromFile, "error", err)
			s.record(job.Name, RunRecord{JobName: job.Name, Started: started, Finished: time.Now(), ExitCode: 2, Err: err.Error()})
			return
		}
		defer f.Close()
		rr = s.env.Put(ctx, job.Put, f, os.Stderr)
	}

	exitCode := 0
	errMsg := ""
	if rr.Result != nil {
		exitCode = rr.Result.ExitCode
	}
	if rr.Err != nil {
		errMsg = rr.Err.Error()
		logger.Error("scheduled job failed", "error", rr.Err, "exit_code", exitCode)
	} else {
		logger.Info("scheduled job completed", "exit_code", exitCode)
	}
	s.record(job.Name, RunRecord{
		JobName:  job.Name,
		RunID:    rr.RunID,
		Started:  started,
		Finished: time.Now(),
		ExitCode: exitCode,
		Err:      errMsg,
	})
}

func (s *Service) record(jobName string, rec RunRecord) {
	const maxHistory = 50
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[jobName], rec)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	s.history[jobName] = h
}
