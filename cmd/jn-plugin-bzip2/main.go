// Command jn-plugin-bzip2 is jn's reference compression plugin for the
// ".bz2" address suffix. Go's standard library only implements bzip2
// decompression (compress/bzip2 has no Writer), so this plugin only
// works on the read side of a pipeline. A ".bz2" address as a write
// target still builds (the stage is a raw-mode compression stage), but
// the plugin exits with an error when invoked with --decompress=false.
package main

import (
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:         "jn-plugin-bzip2",
			Version:      "1.0.0",
			Role:         jnplugin.RoleCompression,
			Modes:        []jnplugin.Mode{jnplugin.ModeRaw},
			Matches:      []string{"^bz2$", `(?i)\.bz2$`},
			ConfigParams: []string{"decompress"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeRaw: rawBzip2,
		},
	}
}

func rawBzip2(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	if !inv.ConfigBool("decompress", true) {
		return fmt.Errorf("jn-plugin-bzip2: compression is not supported (Go's compress/bzip2 is decode-only)")
	}
	_, err := io.Copy(stdout, bzip2.NewReader(stdin))
	return err
}
