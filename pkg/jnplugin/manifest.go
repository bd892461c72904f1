// Package jnplugin is the software development kit a jn plugin links
// against: it implements the executable side of the plugin contract
// (--jn-meta self-description, --mode dispatch, NDJSON framing) so that
// every reference plugin in cmd/jn-plugin-* shares one argv parser and
// one stream-discipline implementation instead of reinventing it.
package jnplugin

import "fmt"

// Role is one of the four plugin roles the registry indexes by.
type Role string

const (
	RoleFormat      Role = "format"
	RoleProtocol    Role = "protocol"
	RoleFilter      Role = "filter"
	RoleCompression Role = "compression"
)

// Mode is one of the operational modes a plugin may declare support for.
type Mode string

const (
	ModeRead     Mode = "read"
	ModeWrite    Mode = "write"
	ModeRaw      Mode = "raw"
	ModeFilter   Mode = "filter"
	ModeProfiles Mode = "profiles"
	ModeInspect  Mode = "inspect"
)

// Manifest is a plugin's self-description, returned verbatim as JSON by
// --jn-meta and, in source form, embeddable as a fenced "# /// script"
// header for discovery without execution.
type Manifest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Role         Role     `json:"role"`
	Modes        []Mode   `json:"modes"`
	Matches      []string `json:"matches"`
	ConfigParams []string `json:"config_params,omitempty"`
}

// Validate checks the manifest is well-formed: a known role, at least
// one recognized mode, and at least one match pattern.
func (m Manifest) Validate() error {
	switch m.Role {
	case RoleFormat, RoleProtocol, RoleFilter, RoleCompression:
	default:
		return fmt.Errorf("jnplugin: unknown role %q", m.Role)
	}
	if len(m.Modes) == 0 {
		return fmt.Errorf("jnplugin: manifest %q declares no modes", m.Name)
	}
	for _, md := range m.Modes {
		switch md {
		case ModeRead, ModeWrite, ModeRaw, ModeFilter, ModeProfiles, ModeInspect:
		default:
			return fmt.Errorf("jnplugin: unknown mode %q", md)
		}
	}
	if len(m.Matches) == 0 {
		return fmt.Errorf("jnplugin: manifest %q declares no match patterns", m.Name)
	}
	return nil
}

// SupportsMode reports whether the manifest declares mode among its
// modes.
func (m Manifest) SupportsMode(mode Mode) bool {
	for _, md := range m.Modes {
		if md == mode {
			return true
		}
	}
	return false
}

// ConsumesParam reports whether key is declared as a configuration
// parameter. Parameters not declared here are filter candidates.
func (m Manifest) ConsumesParam(key string) bool {
	for _, p := range m.ConfigParams {
		if p == key {
			return true
		}
	}
	return false
}
