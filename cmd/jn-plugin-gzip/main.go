// Command jn-plugin-gzip is jn's reference compression plugin for the
// ".gz" address suffix, run in raw mode: it never sees NDJSON, only the
// compressed/decompressed byte stream on either side.
package main

import (
	"compress/gzip"
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
			Name:         "jn-plugin-gzip",
			Version:      "1.0.0",
			Role:         jnplugin.RoleCompression,
			Modes:        []jnplugin.Mode{jnplugin.ModeRaw},
			Matches:      []string{"^gz$", `(?i)\.gz$`},
			ConfigParams: []string{"decompress"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeRaw: rawGzip,
		},
	}
}

// rawGzip decompresses on read (the executor feeds it compressed bytes
// and expects plain bytes out) and compresses on write. Direction is
// inferred from --decompress, set by the pipeline builder's argv
// convention for a compression-role stage in a write pipeline.
func rawGzip(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	if inv.ConfigBool("decompress", true) {
		zr, err := gzip.NewReader(stdin)
		if err != nil {
			return fmt.Errorf("jn-plugin-gzip: opening gzip stream: %w", err)
		}
		defer zr.Close()
		_, err = io.Copy(stdout, zr)
		return err
	}
	zw := gzip.NewWriter(stdout)
	if _, err := io.Copy(zw, stdin); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
