package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jn-run/jn/internal/jnerrors"
	"github.com/jn-run/jn/pkg/jnplugin"
	"github.com/pelletier/go-toml/v2"
)

const selfDescribeTimeout = 3 * time.Second

const (
	fencedBegin = "# /// script"
	fencedEnd   = "# ///"
)

// scriptMeta mirrors the PEP 723-style inline script metadata block: a
// fenced "# /// script" ... "# ///" region whose body is TOML, carrying
// jn's own declarations under a nested [tool.jn] table.
type scriptMeta struct {
	Tool struct {
		JN struct {
			Name         string   `toml:"name"`
			Version      string   `toml:"version"`
			Role         string   `toml:"role"`
			Modes        []string `toml:"modes"`
			Matches      []string `toml:"matches"`
			ConfigParams []string `toml:"config_params"`
		} `toml:"jn"`
	} `toml:"tool"`
}

// extractEmbedded looks for a fenced manifest block in the plugin's own
// source text and, if found, converts it to a jnplugin.Manifest without
// ever executing the file. Returns ok=false, no error, if no block is
// present (that's the normal case for self-describing plugins).
func extractEmbedded(path string) (jnplugin.Manifest, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jnplugin.Manifest{}, false, err
	}
	lines := strings.Split(string(data), "\n")
	start := -1
	for i, l := range lines {
		if strings.TrimRight(l, "\r") == fencedBegin {
			start = i
			break
		}
	}
	if start < 0 {
		return jnplugin.Manifest{}, false, nil
	}
	end := -1
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == fencedEnd {
			end = i
			break
		}
	}
	if end < 0 {
		return jnplugin.Manifest{}, false, &jnerrors.PluginMetaError{Path: path, Reason: "unterminated '# /// script' block"}
	}

	var body strings.Builder
	for _, l := range lines[start+1 : end] {
		// Each body line is conventionally prefixed with "# "; strip it if
		// present, leave it otherwise so plain TOML still parses.
		body.WriteString(strings.TrimPrefix(l, "# "))
		body.WriteString("\n")
	}

	var meta scriptMeta
	if err := toml.Unmarshal([]byte(body.String()), &meta); err != nil {
		return jnplugin.Manifest{}, false, &jnerrors.PluginMetaError{Path: path, Reason: fmt.Sprintf("embedded manifest TOML: %v", err)}
	}
	if meta.Tool.JN.Name == "" {
		return jnplugin.Manifest{}, false, &jnerrors.PluginMetaError{Path: path, Reason: "embedded block has no [tool.jn] table"}
	}

	m := jnplugin.Manifest{
		Name:         meta.Tool.JN.Name,
		Version:      meta.Tool.JN.Version,
		Role:         jnplugin.Role(meta.Tool.JN.Role),
		Matches:      meta.Tool.JN.Matches,
		ConfigParams: meta.Tool.JN.ConfigParams,
	}
	for _, md := range meta.Tool.JN.Modes {
		m.Modes = append(m.Modes, jnplugin.Mode(md))
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return jnplugin.Manifest{}, false, err
	}
	if err := validateManifestJSON(raw); err != nil {
		return jnplugin.Manifest{}, false, &jnerrors.PluginMetaError{Path: path, Reason: err.Error()}
	}
	return m, true, nil
}

// selfDescribe invokes the executable with --jn-meta, bounded by
// selfDescribeTimeout. Callers must only use this on tiers trusted for
// execution (see trustsSelfDescribe).
func selfDescribe(path string) (jnplugin.Manifest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), selfDescribeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--jn-meta")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return jnplugin.Manifest{}, &jnerrors.PluginMetaError{Path: path, Reason: fmt.Sprintf("--jn-meta failed: %v (stderr: %s)", err, stderr.String())}
	}

	if err := validateManifestJSON(stdout.Bytes()); err != nil {
		return jnplugin.Manifest{}, &jnerrors.PluginMetaError{Path: path, Reason: err.Error()}
	}
	var m jnplugin.Manifest
	if err := json.Unmarshal(stdout.Bytes(), &m); err != nil {
		return jnplugin.Manifest{}, &jnerrors.PluginMetaError{Path: path, Reason: fmt.Sprintf("--jn-meta output: %v", err)}
	}
	return m, nil
}

// trustsSelfDescribe reports whether tier is trusted enough to execute
// an unvetted binary for discovery purposes. Project-tier executables
// (arbitrary, often just-written, project-local scripts) are never
// auto-executed for --jn-meta; only user and bundled tiers are.
func trustsSelfDescribe(tier string, strict bool) bool {
	if strict {
		return false
	}
	return tier == TierUser || tier == TierBundled
}
