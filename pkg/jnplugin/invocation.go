package jnplugin

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Invocation is a parsed `--mode=<mode> [--key=value...] [positional...]`
// command line.
type Invocation struct {
	Mode        Mode
	Config      map[string]string
	Positional  []string
	ProfileJSON map[string]interface{} // from JN_PROFILE_JSON, if the executor set it
}

// ParseArgs parses argv (excluding argv[0]) into an Invocation. It
// rejects a bare "--jn-meta" here; callers are expected to special-case
// that single-argument form before calling ParseArgs.
func ParseArgs(argv []string) (Invocation, error) {
	inv := Invocation{Config: map[string]string{}}
	var modeSeen bool
	for _, arg := range argv {
		if !strings.HasPrefix(arg, "--") {
			inv.Positional = append(inv.Positional, arg)
			continue
		}
		body := strings.TrimPrefix(arg, "--")
		if body == "jn-meta" {
			return Invocation{}, fmt.Errorf("jnplugin: --jn-meta is mutually exclusive with --mode")
		}
		eq := strings.IndexByte(body, '=')
		if eq < 0 {
			return Invocation{}, fmt.Errorf("jnplugin: malformed flag %q (expected --key=value)", arg)
		}
		key, value := body[:eq], body[eq+1:]
		if key == "mode" {
			inv.Mode = Mode(value)
			modeSeen = true
			continue
		}
		inv.Config[key] = value
	}
	if !modeSeen {
		return Invocation{}, fmt.Errorf("jnplugin: missing required --mode=<mode> flag")
	}
	return inv, nil
}

// LoadProfileJSON populates inv.ProfileJSON from the JN_PROFILE_JSON
// environment variable, if set.
func (inv *Invocation) LoadProfileJSON() error {
	raw := os.Getenv("JN_PROFILE_JSON")
	if raw == "" {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return fmt.Errorf("jnplugin: JN_PROFILE_JSON is not valid JSON: %w", err)
	}
	inv.ProfileJSON = obj
	return nil
}

// ConfigBool reads a config flag as a loose boolean; "", "0", "false"
// are false, anything else present is true. Absent keys use def.
func (inv Invocation) ConfigBool(key string, def bool) bool {
	v, ok := inv.Config[key]
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "", "0", "false":
		return false
	default:
		return true
	}
}
