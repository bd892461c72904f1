package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jn-run/jn/internal/apiserver"
	jnscheduler "github.com/jn-run/jn/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run jn's HTTP status surface: /healthz, /metrics, /registry, /schedule, /ws/tail",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs := configuredJobs()

		var sched *jnscheduler.Service
		if len(jobs) > 0 {
			sched = jnscheduler.New(env, jnscheduler.WithLogger(env.Logger))
			for _, job := range jobs {
				if _, err := sched.AddJob(job); err != nil {
					return err
				}
			}
		}

		api := apiserver.New(env, sched)
		hub := api.Tail()
		env.Tail = func(label, line string) {
			hub.Publish(label + ": " + strings.TrimRight(line, "\n"))
		}

		httpServer := &http.Server{Addr: cfg.ServeAddr, Handler: api.Handler()}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go func() {
			if err := env.WatchPlugins(ctx); err != nil {
				env.Logger.Warn("plugin hot reload unavailable", "error", err)
			}
		}()

		if sched != nil {
			sched.Start()
			defer sched.Stop()
		}

		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()

		fmt.Fprintf(cmd.ErrOrStderr(), "jn serve listening on %s (%d scheduled job(s))\n", cfg.ServeAddr, len(jobs))

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}
	},
}
