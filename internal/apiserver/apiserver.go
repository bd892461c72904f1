// Package apiserver backs `jn serve`: a small HTTP status/inspect
// surface over the running process's registry and scheduled-job state,
// plus a live stderr tail over a websocket, built on gin-gonic/gin. It
// makes registry contents and scheduled-job status reachable remotely
// instead of only via the CLI.
package apiserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xeonx/timeago"

	"github.com/jn-run/jn/internal/runctx"
	"github.com/jn-run/jn/internal/scheduler"
)

// Server exposes registry/schedule status and a stderr-tail websocket
// over HTTP for a running jn process.
type Server struct {
	env       *runctx.Environment
	scheduler *scheduler.Service
	engine    *gin.Engine
	hub       *tailHub
}

// New builds a Server. scheduler may be nil for a process that only
// handles ad-hoc get/put requests (no `jn schedule` jobs registered).
func New(env *runctx.Environment, sched *scheduler.Service) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{env: env, scheduler: sched, engine: gin.New(), hub: newTailHub()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the http.Handler to pass to http.Server / httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Tail returns the stderr broadcast hub so callers (runctx, scheduler)
// can publish lines observed from running pipeline stages.
func (s *Server) Tail() *tailHub { return s.hub }

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/registry", s.handleRegistry)
	s.engine.GET("/schedule", s.handleSchedule)
	s.engine.GET("/ws/tail", s.handleTailWS)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type descriptorView struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Role         string   `json:"role"`
	Modes        []string `json:"modes"`
	Tier         string   `json:"tier"`
	ConfigParams []string `json:"config_params,omitempty"`
}

// handleRegistry lists every discovered plugin, grouped by role,
// reachable without a CLI invocation.
func (s *Server) handleRegistry(c *gin.Context) {
	byRole := s.env.Registry().All()
	out := map[string][]descriptorView{}
	for role, descriptors := range byRole {
		views := make([]descriptorView, 0, len(descriptors))
		for _, d := range descriptors {
			modes := make([]string, len(d.Modes))
			for i, m := range d.Modes {
				modes[i] = string(m)
			}
			views = append(views, descriptorView{
				Name: d.Name, Version: d.Version, Role: string(role),
				Modes: modes, Tier: d.Tier, ConfigParams: d.ConfigParams,
			})
		}
		out[string(role)] = views
	}
	c.JSON(http.StatusOK, out)
}

type runView struct {
	Job        string `json:"job"`
	RunID      string `json:"run_id"`
	ExitCode   int    `json:"exit_code"`
	Error      string `json:"error,omitempty"`
	StartedAgo string `json:"started_ago"`
}

// handleSchedule reports recent scheduled-job runs with a humanized
// "last run" timestamp via xeonx/timeago.
func (s *Server) handleSchedule(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []runView{}})
		return
	}
	job := c.Query("job")
	var out []runView
	now := time.Now()
	for _, rec := range s.scheduler.History(job) {
		out = append(out, runView{
			Job: rec.JobName, RunID: rec.RunID, ExitCode: rec.ExitCode, Error: rec.Err,
			StartedAgo: timeago.English.Format(rec.Started.In(now.Location())),
		})
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleTailWS upgrades to a websocket and streams every stderr line
// published to the hub until the client disconnects.
func (s *Server) handleTailWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	lines := s.hub.subscribe()
	defer s.hub.unsubscribe(lines)

	for line := range lines {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
}

// tailHub fans stderr lines out to every connected websocket client. A
// slow or absent subscriber never blocks publishers: its channel is
// buffered and dropped from if full, matching the executor's own
// bounded-ring-buffer philosophy for captured stderr.
type tailHub struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

func newTailHub() *tailHub {
	return &tailHub{subs: map[chan string]struct{}{}}
}

func (h *tailHub) subscribe() chan string {
	ch := make(chan string, 256)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *tailHub) unsubscribe(ch chan string) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
	close(ch)
}

// Publish broadcasts line to every subscriber, dropping it for any
// subscriber whose buffer is currently full rather than blocking the
// publisher (a pipeline stage's stderr pump).
func (h *tailHub) Publish(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- line:
		default:
		}
	}
}
