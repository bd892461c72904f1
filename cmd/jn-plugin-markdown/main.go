// Command jn-plugin-markdown is jn's reference format plugin for
// Markdown documents. Read mode renders each document to HTML with
// yuin/goldmark and sanitizes it with a bluemonday UGC policy before
// emitting it; write mode is a pass-through encoder since Markdown has
// no reverse mapping from an arbitrary record.
package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:         "jn-plugin-markdown",
			Version:      "1.0.0",
			Role:         jnplugin.RoleFormat,
			Modes:        []jnplugin.Mode{jnplugin.ModeRead, jnplugin.ModeWrite},
			Matches:      []string{`(?i)\.md$`, `(?i)\.markdown$`},
			ConfigParams: []string{"delimiter", "sanitize"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeRead:  readMarkdown,
			jnplugin.ModeWrite: writeMarkdown,
		},
	}
}

func delimiter(inv jnplugin.Invocation) string {
	if d, ok := inv.Config["delimiter"]; ok && d != "" {
		return d
	}
	return "\n---\n"
}

// readMarkdown splits stdin into documents on the configured delimiter
// (default a "---" line, matching Markdown's own horizontal-rule
// syntax) and emits one NDJSON record per document with two fields: the
// raw source and the rendered HTML, which — unless --sanitize=false — is
// run through bluemonday's UGC policy before it is emitted.
func readMarkdown(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("jn-plugin-markdown: reading input: %w", err)
	}
	sanitize := inv.ConfigBool("sanitize", true)
	policy := bluemonday.UGCPolicy()

	lw := jnplugin.NewLineWriter(stdout)
	for _, doc := range strings.Split(string(raw), delimiter(inv)) {
		doc = strings.TrimSpace(doc)
		if doc == "" {
			continue
		}
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(doc), &buf); err != nil {
			return fmt.Errorf("jn-plugin-markdown: rendering document: %w", err)
		}
		html := buf.String()
		obj := map[string]interface{}{
			"source": doc,
			"html":   html,
		}
		if sanitize {
			obj["html"] = policy.Sanitize(html)
		}
		if err := lw.WriteObject(obj); err != nil {
			return err
		}
	}
	return lw.Flush()
}

// writeMarkdown renders each NDJSON record's "source" (or "body") field
// back out as a Markdown document, joined by the configured delimiter.
func writeMarkdown(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	lr := jnplugin.NewLineReader(stdin)
	w := bufio.NewWriter(stdout)
	defer w.Flush()

	sep := delimiter(inv)
	first := true
	for {
		var obj map[string]interface{}
		ok, err := lr.Decode(&obj)
		if err != nil {
			return fmt.Errorf("jn-plugin-markdown: decoding record: %w", err)
		}
		if !ok {
			break
		}
		body, _ := obj["source"].(string)
		if body == "" {
			body, _ = obj["body"].(string)
		}
		if !first {
			if _, err := w.WriteString(sep); err != nil {
				return err
			}
		}
		first = false
		if _, err := w.WriteString(body); err != nil {
			return err
		}
	}
	return w.Flush()
}
