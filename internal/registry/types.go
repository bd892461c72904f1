// Package registry implements jn's plugin registry: discovering plugin
// executables across the project/user/bundled search
// path, extracting their self-description without necessarily executing
// them, compiling match patterns, and ranking matches by specificity.
package registry

import (
	"regexp"
	"time"

	"github.com/jn-run/jn/pkg/jnplugin"
)

// Tier names, in priority order (highest first).
const (
	TierProject = "project"
	TierUser    = "user"
	TierBundled = "bundled"
)

// TierDir is one directory on the plugin search path.
type TierDir struct {
	Tier string
	Path string
}

// pattern pairs a compiled regular expression with its precomputed
// specificity score. Patterns that failed to compile are dropped here
// (PATTERN_COMPILE_FAILED) but the descriptor itself is retained.
type pattern struct {
	source      string
	re          *regexp.Regexp
	specificity int
}

// PluginDescriptor is the registry's immutable record of one discovered
// plugin executable.
type PluginDescriptor struct {
	Name           string
	Version        string
	Role           jnplugin.Role
	Modes          []jnplugin.Mode
	ConfigParams   []string
	ExecutablePath string
	LaunchPrefix   []string
	SourceMtime    time.Time
	Tier           string

	patterns []pattern
}

// SupportsMode reports whether the plugin declares mode.
func (d *PluginDescriptor) SupportsMode(mode jnplugin.Mode) bool {
	for _, m := range d.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ConsumesParam reports whether key is a declared configuration
// parameter (as opposed to a filter candidate).
func (d *PluginDescriptor) ConsumesParam(key string) bool {
	for _, p := range d.ConfigParams {
		if p == key {
			return true
		}
	}
	return false
}

// matchSpecificity returns the highest specificity among the patterns
// that matched candidate, and whether any pattern matched at all.
func (d *PluginDescriptor) matchSpecificity(candidate string) (int, bool) {
	best, any := 0, false
	for _, p := range d.patterns {
		if p.re == nil {
			continue
		}
		if p.re.MatchString(candidate) {
			if !any || p.specificity > best {
				best = p.specificity
			}
			any = true
		}
	}
	return best, any
}
