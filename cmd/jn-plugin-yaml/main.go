// Command jn-plugin-yaml is jn's reference format plugin for YAML,
// decoding and encoding documents via gopkg.in/yaml.v3.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:    "jn-plugin-yaml",
			Version: "1.0.0",
			Role:    jnplugin.RoleFormat,
			Modes:   []jnplugin.Mode{jnplugin.ModeRead, jnplugin.ModeWrite},
			Matches: []string{`(?i)\.ya?ml$`},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeRead:  readYAML,
			jnplugin.ModeWrite: writeYAML,
		},
	}
}

// readYAML decodes every "---"-separated YAML document in stdin as one
// NDJSON record each, matching the way a multi-document YAML manifest
// file becomes multiple records.
func readYAML(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	dec := yaml.NewDecoder(stdin)
	lw := jnplugin.NewLineWriter(stdout)
	for {
		var doc map[string]interface{}
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("jn-plugin-yaml: decoding document: %w", err)
		}
		if err := lw.WriteObject(doc); err != nil {
			return err
		}
	}
	return lw.Flush()
}

// writeYAML emits each NDJSON record as its own "---"-separated YAML
// document.
func writeYAML(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	lr := jnplugin.NewLineReader(stdin)
	enc := yaml.NewEncoder(stdout)
	defer enc.Close()
	for {
		var obj map[string]interface{}
		ok, err := lr.Decode(&obj)
		if err != nil {
			return fmt.Errorf("jn-plugin-yaml: decoding record: %w", err)
		}
		if !ok {
			break
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return nil
}
