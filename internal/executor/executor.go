// Package executor implements jn's pipeline executor: it spawns every
// stage of a validated pipeline.Pipeline as an OS process connected by
// OS pipes, supervises backpressure and cancellation, reaps every
// child in descending order, and reports an aggregated result.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jn-run/jn/internal/jnerrors"
	"github.com/jn-run/jn/internal/pipeline"
	"github.com/mattn/go-isatty"
)

// GracePeriod is how long Execute waits after sending SIGTERM to every
// child before escalating to SIGKILL.
const GracePeriod = 2 * time.Second

// Options tunes executor behavior. The zero value is the documented
// default: stage stderr is held in the capture buffer when the
// parent's own stderr is a terminal (quiet unless a stage fails), and
// echoed through line by line otherwise.
type Options struct {
	ParentStderrIsTTY *bool // nil = auto-detect via isatty
	StderrTailLines   int

	// Hooks, if set, is notified of stage lifecycle events as they
	// happen. jn serve's metrics and run-status tracking hang off this
	// rather than the executor importing prometheus/uuid directly.
	Hooks Hooks
}

// Hooks lets a caller observe stage spawns and exits without the
// executor depending on any particular metrics or tracking backend.
// Every field is optional; a nil func is simply not called.
type Hooks struct {
	OnStageSpawn func(label string)
	OnStageExit  func(label string, exitCode int, signal string)
	OnStderrLine func(label, line string)
}

func (h Hooks) spawn(label string) {
	if h.OnStageSpawn != nil {
		h.OnStageSpawn(label)
	}
}

func (h Hooks) exit(label string, exitCode int, signal string) {
	if h.OnStageExit != nil {
		h.OnStageExit(label, exitCode, signal)
	}
}

func (h Hooks) stderrLine(label, line string) {
	if h.OnStderrLine != nil {
		h.OnStderrLine(label, line)
	}
}

// MergeHooks combines any number of Hooks into one that calls every
// non-nil callback of each in order, letting a caller attach metrics
// and a live stderr tail to the same run without either depending on
// the other.
func MergeHooks(all ...Hooks) Hooks {
	var merged Hooks
	for _, h := range all {
		h := h
		if h.OnStageSpawn != nil {
			prev := merged.OnStageSpawn
			merged.OnStageSpawn = func(label string) {
				if prev != nil {
					prev(label)
				}
				h.OnStageSpawn(label)
			}
		}
		if h.OnStageExit != nil {
			prev := merged.OnStageExit
			merged.OnStageExit = func(label string, exitCode int, signal string) {
				if prev != nil {
					prev(label, exitCode, signal)
				}
				h.OnStageExit(label, exitCode, signal)
			}
		}
		if h.OnStderrLine != nil {
			prev := merged.OnStderrLine
			merged.OnStderrLine = func(label, line string) {
				if prev != nil {
					prev(label, line)
				}
				h.OnStderrLine(label, line)
			}
		}
	}
	return merged
}

// StageResult is the outcome of one spawned stage.
type StageResult struct {
	Label      string
	ExitCode   int
	Signal     string
	StderrTail []string
	Cancelled  bool
}

// Result is the executor's overall report.
type Result struct {
	ExitCode int
	Stages   []StageResult
}

type spawnedStage struct {
	label    string
	cmd      *exec.Cmd
	stderrRB *stderrRingBuffer
}

// Execute runs pipeline p to completion. in/out/errOut are the parent's
// own stdio; they're used only at the chain's two open ends (the first
// stage's stdin, the last stage's stdout) when the pipeline wires
// directly to them rather than to a file.
func Execute(ctx context.Context, p *pipeline.Pipeline, in io.Reader, out io.Writer, errOut io.Writer, opts Options) (*Result, error) {
	if p.Glob != nil {
		return executeGlob(ctx, p, out, errOut, opts)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	scope := &resourceScope{}
	defer scope.closeAll()

	// watchCancellation only returns once ctx is Done; deriving a child
	// context and cancelling it on every return path keeps that
	// goroutine from outliving this call when the caller's own ctx is
	// never cancelled (e.g. context.Background()).
	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()

	stdinFile, err := resolveInput(p.Input, in, scope)
	if err != nil {
		return nil, err
	}
	stdoutFile, finishOutput, err := resolveOutput(p.Output, out, scope)
	if err != nil {
		return nil, err
	}

	n := len(p.Stages)
	pipes := make([]struct{ r, w *os.File }, n-1)
	for i := range pipes {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, &jnerrors.IOError{Op: "pipe", Path: fmt.Sprintf("stage %d|%d", i, i+1), Err: err}
		}
		pipes[i].r, pipes[i].w = r, w
		idx := i
		scope.add(func() { pipes[idx].r.Close() })
		scope.add(func() { pipes[idx].w.Close() })
	}

	// Stderr is always drained through the parent (so a verbose child
	// can't block, and so StageFailure diagnostics always have a tail);
	// the TTY rule only decides whether lines are additionally echoed
	// through to the parent's own stderr as they arrive.
	echoStderr := !stderrIsTTY(opts)
	spawned := make([]spawnedStage, n)
	var wg sync.WaitGroup

	for i, stage := range p.Stages {
		var stdin *os.File
		if i == 0 {
			stdin = stdinFile
		} else {
			stdin = pipes[i-1].r
		}
		var stdout *os.File
		if i == n-1 {
			stdout = stdoutFile
		} else {
			stdout = pipes[i].w
		}

		cmd := buildCmd(stage)
		cmd.Stdin = stdin
		cmd.Stdout = stdout

		rb := newStderrRingBuffer(opts.StderrTailLines)
		er, ew, perr := os.Pipe()
		if perr != nil {
			return nil, &jnerrors.IOError{Op: "pipe", Path: "stderr", Err: perr}
		}
		cmd.Stderr = ew
		stderrWrite := ew
		wg.Add(1)
		label := stage.Label
		go pumpStderr(&wg, er, rb, errOut, echoStderr, func(line string) { opts.Hooks.stderrLine(label, line) })

		if err := cmd.Start(); err != nil {
			stderrWrite.Close()
			return nil, &jnerrors.StageFailure{Plugin: stage.Label, ExitCode: -1, Stderr: err.Error()}
		}
		// The child now holds its own copy of the stderr pipe's write
		// end; the parent must drop its copy so the pump goroutine's
		// reader sees EOF once the child exits rather than blocking
		// forever on a write end nobody else will close.
		stderrWrite.Close()
		spawned[i] = spawnedStage{label: stage.Label, cmd: cmd, stderrRB: rb}
		opts.Hooks.spawn(stage.Label)

		// Immediately close the parent's copies of any internal pipe
		// ends that now belong to already-started children: without this,
		// an upstream producer never sees SIGPIPE when a downstream
		// consumer exits early, because the parent would still hold a
		// read end open.
		if i > 0 {
			pipes[i-1].r.Close()
			pipes[i-1].w.Close()
		}
	}

	go watchCancellation(watchCtx, spawned)

	exitCodes := make([]int, n)
	signals := make([]string, n)
	// Descending-order reap: a producer cannot exit until its consumer
	// has drained the pipe, so waiting on the producer first risks
	// deadlock if the consumer is slow.
	for i := n - 1; i >= 0; i-- {
		exitCodes[i], signals[i] = waitStage(spawned[i].cmd)
		opts.Hooks.exit(spawned[i].label, exitCodes[i], signals[i])
	}
	wg.Wait()

	stageResults := make([]StageResult, n)
	for i := range p.Stages {
		stageResults[i] = StageResult{
			Label:      spawned[i].label,
			ExitCode:   exitCodes[i],
			Signal:     signals[i],
			StderrTail: spawned[i].stderrRB.Tail(),
		}
	}
	reclassifyBrokenPipes(stageResults)

	if err := ctx.Err(); err != nil {
		if finishOutput != nil {
			finishOutput(false)
		}
		return &Result{ExitCode: jnerrors.ExitSIGINT, Stages: stageResults}, &jnerrors.Cancelled{Signal: err.Error()}
	}

	var failures []*jnerrors.StageFailure
	for _, r := range stageResults {
		if r.Signal != "" || r.ExitCode != 0 {
			failures = append(failures, &jnerrors.StageFailure{Plugin: r.Label, ExitCode: r.ExitCode, Stderr: joinTail(r.StderrTail)})
		}
	}
	if len(failures) > 0 {
		overall := failures[0].ExitCode
		if overall <= 0 {
			overall = 1
		}
		if finishOutput != nil {
			finishOutput(false)
		}
		return &Result{ExitCode: overall, Stages: stageResults}, failures[0]
	}

	if finishOutput != nil {
		if err := finishOutput(true); err != nil {
			return &Result{ExitCode: jnerrors.ExitRuntime, Stages: stageResults}, err
		}
	}
	return &Result{ExitCode: jnerrors.ExitSuccess, Stages: stageResults}, nil
}

// executeGlob runs every expanded sub-pipeline in input order,
// concatenating their output. Later sub-pipelines still run after an
// earlier one fails, so every path's diagnostics are collected; the
// first failure becomes the overall result.
func executeGlob(ctx context.Context, p *pipeline.Pipeline, out io.Writer, errOut io.Writer, opts Options) (*Result, error) {
	var all []StageResult
	var firstErr error
	overall := 0
	for _, sub := range p.Glob.SubPipelines {
		res, err := Execute(ctx, sub, nil, out, errOut, opts)
		if err != nil && res == nil {
			return nil, err
		}
		if res != nil {
			all = append(all, res.Stages...)
			if res.ExitCode != 0 && overall == 0 {
				overall = res.ExitCode
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return &Result{ExitCode: overall, Stages: all}, firstErr
}

func buildCmd(stage pipeline.Stage) *exec.Cmd {
	argv := append(append([]string{}, stage.Descriptor.LaunchPrefix...), stage.Descriptor.ExecutablePath)
	argv = append(argv, "--mode="+string(stage.Mode))
	argv = append(argv, stage.Argv...)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), stage.Env...)
	return cmd
}

func resolveInput(in pipeline.InputSpec, parentStdin io.Reader, scope *resourceScope) (*os.File, error) {
	if in.FromStdin || in.FilePath == "" {
		if parentStdin == nil {
			// No file and no caller stream: the first stage doesn't read
			// its stdin (protocol plugins fetch). Give it an EOF.
			f, err := os.Open(os.DevNull)
			if err != nil {
				return nil, &jnerrors.IOError{Op: "open", Path: os.DevNull, Err: err}
			}
			scope.add(func() { f.Close() })
			return f, nil
		}
		if f, ok := parentStdin.(*os.File); ok {
			return f, nil
		}
		return passthroughReader(parentStdin, scope)
	}
	f, err := os.Open(in.FilePath)
	if err != nil {
		return nil, &jnerrors.IOError{Op: "open", Path: in.FilePath, Err: err}
	}
	scope.add(func() { f.Close() })
	return f, nil
}

// passthroughReader copies an arbitrary io.Reader into a pipe so it can
// be handed to exec.Cmd as an *os.File stdin.
func passthroughReader(r io.Reader, scope *resourceScope) (*os.File, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	scope.add(func() { pr.Close() })
	go func() {
		defer pw.Close()
		io.Copy(pw, r)
	}()
	return pr, nil
}

// resolveOutput resolves the pipeline's output wiring and returns a
// finish callback invoked once every stage has completed: for an atomic
// file write it renames the temp file over the target on success, or
// removes it on failure.
func resolveOutput(out pipeline.OutputSpec, parentStdout io.Writer, scope *resourceScope) (*os.File, func(success bool) error, error) {
	if out.ToStdout || out.FilePath == "" {
		if parentStdout == nil {
			f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
			if err != nil {
				return nil, nil, &jnerrors.IOError{Op: "open", Path: os.DevNull, Err: err}
			}
			scope.add(func() { f.Close() })
			return f, nil, nil
		}
		if f, ok := parentStdout.(*os.File); ok {
			return f, nil, nil
		}
		return passthroughWriter(parentStdout, scope)
	}
	if out.Atomic {
		dir := filepath.Dir(out.TempPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, &jnerrors.IOError{Op: "mkdir", Path: dir, Err: err}
		}
		f, err := os.Create(out.TempPath)
		if err != nil {
			return nil, nil, &jnerrors.IOError{Op: "create", Path: out.TempPath, Err: err}
		}
		scope.add(func() { f.Close() })
		finish := func(success bool) error {
			if success {
				if err := os.Rename(out.TempPath, out.FilePath); err != nil {
					return &jnerrors.IOError{Op: "rename", Path: out.FilePath, Err: err}
				}
				return nil
			}
			os.Remove(out.TempPath)
			return nil
		}
		return f, finish, nil
	}
	f, err := os.Create(out.FilePath)
	if err != nil {
		return nil, nil, &jnerrors.IOError{Op: "create", Path: out.FilePath, Err: err}
	}
	scope.add(func() { f.Close() })
	return f, nil, nil
}

func passthroughWriter(w io.Writer, scope *resourceScope) (*os.File, func(bool) error, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	scope.add(func() { pw.Close() })
	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(w, pr)
	}()
	finish := func(bool) error {
		pw.Close()
		<-done
		return nil
	}
	return pw, finish, nil
}

func pumpStderr(wg *sync.WaitGroup, r *os.File, rb *stderrRingBuffer, passthrough io.Writer, echo bool, onLine func(string)) {
	defer wg.Done()
	defer r.Close()
	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			for {
				line, rerr := buf.ReadString('\n')
				if rerr != nil {
					buf.Reset()
					buf.WriteString(line)
					break
				}
				rb.Add(line)
				if echo && passthrough != nil {
					io.WriteString(passthrough, line)
				}
				if onLine != nil {
					onLine(line)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func waitStage(cmd *exec.Cmd) (exitCode int, signal string) {
	err := cmd.Wait()
	if err == nil {
		return 0, ""
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return -1, signalName(status.Signal())
			}
			return status.ExitStatus(), ""
		}
		return exitErr.ExitCode(), ""
	}
	return -1, ""
}

// signalName renders a signal as its conventional SIG* name;
// syscall.Signal.String() returns the human description ("broken
// pipe"), which is useless for comparisons.
func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGPIPE:
		return "SIGPIPE"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	default:
		return sig.String()
	}
}

// reclassifyBrokenPipes applies the heuristic that a stage killed by
// SIGPIPE immediately upstream of a stage that exited 0 (a normal
// early-terminating consumer) is not a real failure. Only a SIGPIPE
// signal is cleared; a non-zero exit code is still reported.
func reclassifyBrokenPipes(results []StageResult) {
	for i := 0; i < len(results)-1; i++ {
		downstream := results[i+1]
		if downstream.ExitCode == 0 && results[i].Signal == "SIGPIPE" {
			results[i].ExitCode = 0
			results[i].Signal = ""
		}
	}
}

func joinTail(lines []string) string {
	var b bytes.Buffer
	for _, l := range lines {
		b.WriteString(l)
	}
	return b.String()
}

func stderrIsTTY(opts Options) bool {
	if opts.ParentStderrIsTTY != nil {
		return *opts.ParentStderrIsTTY
	}
	return isatty.IsTerminal(os.Stderr.Fd())
}

// watchCancellation terminates every child with SIGTERM when ctx is
// cancelled, escalating to SIGKILL after GracePeriod.
func watchCancellation(ctx context.Context, stages []spawnedStage) {
	<-ctx.Done()
	for _, s := range stages {
		if s.cmd.Process != nil {
			s.cmd.Process.Signal(syscall.SIGTERM)
		}
	}
	timer := time.NewTimer(GracePeriod)
	defer timer.Stop()
	<-timer.C
	for _, s := range stages {
		if s.cmd.Process != nil {
			s.cmd.Process.Signal(syscall.SIGKILL)
		}
	}
}
