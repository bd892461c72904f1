// Command jn-plugin-filter is jn's reference filter plugin: it
// evaluates a boolean expression (synthesized by internal/filterexpr
// from leftover address parameters) against each NDJSON record, passing
// through only the records for which it is true. Expressions are
// evaluated with dop251/goja, a small embedded JavaScript runtime, so
// the query language is plain JS rather than a bespoke grammar.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dop251/goja"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:         "jn-plugin-filter",
			Version:      "1.0.0",
			Role:         jnplugin.RoleFilter,
			Modes:        []jnplugin.Mode{jnplugin.ModeFilter},
			Matches:      []string{".*"},
			ConfigParams: []string{"expr"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeFilter: filterRecords,
		},
	}
}

func filterRecords(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	expr, ok := inv.Config["expr"]
	if !ok || expr == "" {
		return fmt.Errorf("jn-plugin-filter: missing required --expr=<predicate>")
	}

	vm := goja.New()
	program, err := goja.Compile("filter", "("+expr+")", false)
	if err != nil {
		return fmt.Errorf("jn-plugin-filter: compiling expression %q: %w", expr, err)
	}

	lr := jnplugin.NewLineReader(stdin)
	lw := jnplugin.NewLineWriter(stdout)
	for {
		var obj map[string]interface{}
		ok, err := lr.Decode(&obj)
		if err != nil {
			return fmt.Errorf("jn-plugin-filter: decoding record: %w", err)
		}
		if !ok {
			break
		}
		vm.Set("record", obj)
		result, err := vm.RunProgram(program)
		if err != nil {
			fmt.Fprintf(stderr, "jn-plugin-filter: evaluating expression: %v\n", err)
			continue
		}
		if result.ToBoolean() {
			if err := lw.WriteObject(obj); err != nil {
				return err
			}
		}
	}
	return lw.Flush()
}
