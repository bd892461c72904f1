package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xeonx/timeago"

	jnscheduler "github.com/jn-run/jn/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run saved get/put requests on a cron schedule",
}

// configuredJobs converts .jn.yaml's "jobs" array (loaded once into cfg
// by internal/config) into scheduler.Job values, e.g.:
//
//	jobs:
//	  - name: nightly-export
//	    schedule: "0 2 * * *"
//	    get: "@myapi/users"
//	    put: "s3://backups/users.json.gz"
func configuredJobs() []jnscheduler.Job {
	jobs := make([]jnscheduler.Job, 0, len(cfg.Jobs))
	for _, r := range cfg.Jobs {
		jobs = append(jobs, jnscheduler.Job{Name: r.Name, Schedule: r.Schedule, Get: r.Get, Put: r.Put, FromFile: r.FromFile})
	}
	return jobs
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler in the foreground and run jobs until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs := configuredJobs()
		if len(jobs) == 0 {
			return fmt.Errorf("schedule run: no jobs configured under \"jobs\" in .jn.yaml")
		}

		sched := jnscheduler.New(env)
		for _, job := range jobs {
			if _, err := sched.AddJob(job); err != nil {
				return err
			}
		}
		sched.Start()
		defer sched.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			if err := env.WatchPlugins(ctx); err != nil {
				env.Logger.Warn("plugin hot reload unavailable", "error", err)
			}
		}()

		fmt.Fprintf(cmd.ErrOrStderr(), "scheduler running with %d job(s); press ctrl-c to stop\n", len(jobs))
		<-ctx.Done()
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured jobs and their cron schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, job := range configuredJobs() {
			target := job.Get
			if target == "" {
				target = job.Put
			}
			fmt.Fprintf(out, "%-24s %-20s %s\n", job.Name, job.Schedule, target)
		}
		return nil
	},
}

var scheduleStatusCmd = &cobra.Command{
	Use:   "status <job>",
	Short: "Point at where a named job's run history is kept (a running jn serve instance's /schedule endpoint)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// A one-shot CLI invocation has no history of its own; run
		// history lives in whichever long-running process (jn schedule
		// run / jn serve) executed the job, queried here only for
		// display formatting.
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "job %q has no history in this invocation; query jn serve's /schedule?job=%s for a running scheduler's history\n", args[0], args[0])
		fmt.Fprintf(out, "(timestamps there are humanized like %q)\n", timeago.English.Format(time.Now().Add(-90*time.Minute)))
		return nil
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleRunCmd, scheduleListCmd, scheduleStatusCmd)
}
