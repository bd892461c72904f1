package jnplugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// Exit codes a plugin process reports to its parent.
const (
	ExitSuccess    = 0
	ExitRuntime    = 1
	ExitUsageError = 2
)

// Handler implements one operational mode of a plugin. stdin/stdout
// carry the data stream per the mode's discipline (bytes or NDJSON);
// stderr is for diagnostics only.
type Handler func(ctx context.Context, inv Invocation, stdin io.Reader, stdout io.Writer, stderr io.Writer) error

// Plugin binds a manifest to the handlers implementing its declared
// modes. A cmd/jn-plugin-* main() constructs one and calls Run.
type Plugin struct {
	Manifest Manifest
	Handlers map[Mode]Handler
}

// Run implements the full plugin entrypoint contract: --jn-meta
// self-description, --mode dispatch, and exit-code mapping. Call it as
// os.Exit(p.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)) from main.
func (p Plugin) Run(argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(argv) == 1 && argv[0] == "--jn-meta" {
		enc := json.NewEncoder(stdout)
		if err := enc.Encode(p.Manifest); err != nil {
			fmt.Fprintln(stderr, err)
			return ExitRuntime
		}
		return ExitSuccess
	}

	inv, err := ParseArgs(argv)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageError
	}
	if err := inv.LoadProfileJSON(); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageError
	}
	if !p.Manifest.SupportsMode(inv.Mode) {
		fmt.Fprintf(stderr, "jnplugin: %s does not support mode %q\n", p.Manifest.Name, inv.Mode)
		return ExitUsageError
	}
	h, ok := p.Handlers[inv.Mode]
	if !ok {
		fmt.Fprintf(stderr, "jnplugin: %s has no handler wired for mode %q\n", p.Manifest.Name, inv.Mode)
		return ExitUsageError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalCancel(cancel)

	if err := h(ctx, inv, stdin, stdout, stderr); err != nil {
		if IsBrokenPipe(err) {
			// EPIPE on stdout means a downstream consumer exited early;
			// that's a normal termination, not a failure.
			return ExitSuccess
		}
		fmt.Fprintln(stderr, err)
		return ExitRuntime
	}
	return ExitSuccess
}

// IsBrokenPipe reports whether err is (or wraps) EPIPE/SIGPIPE, which a
// reading plugin should treat as a clean early exit rather than a
// failure.
func IsBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}
