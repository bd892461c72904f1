package profile

import (
	"os"
	"path/filepath"
	"sort"
)

// Tier is one entry of the profile search path, consulted in order:
// project, then user, then bundled. Root is the "profiles" directory
// itself, e.g. "<project>/.jn/profiles".
type Tier struct {
	Name string
	Root string
}

// DefaultTiers builds the standard three-tier search path rooted at the
// current project, the user's XDG data directory, and JN_HOME.
func DefaultTiers(projectDir, xdgDataHome, jnHome string) []Tier {
	var tiers []Tier
	if projectDir != "" {
		tiers = append(tiers, Tier{Name: "project", Root: filepath.Join(projectDir, ".jn", "profiles")})
	}
	if xdgDataHome != "" {
		tiers = append(tiers, Tier{Name: "user", Root: filepath.Join(xdgDataHome, "jn", "profiles")})
	}
	if jnHome != "" {
		tiers = append(tiers, Tier{Name: "bundled", Root: filepath.Join(jnHome, "profiles")})
	}
	return tiers
}

var leafExtensions = []string{".json", ".yaml", ".yml", ".sql", ".jq", ".txt", ""}

// locateLeaf searches tiers in priority order for a (namespace, name)
// profile, inferring kind from the subdirectory of profiles/ the
// namespace directory lives under. The kind and tier for a namespace are
// expected to be consistent wherever that namespace appears; the first
// tier offering a resolvable leaf file wins outright, no merging across
// tiers (mirrors a PATH-style lookup rather than the ancestor fold,
// which operates within a single tier).
func locateLeaf(tiers []Tier, namespace, name string) (tier Tier, kind string, leafPath string, ancestors []string, found bool) {
	for _, t := range tiers {
		kinds, err := readKindDirs(t.Root)
		if err != nil {
			continue
		}
		for _, k := range kinds {
			nsDir := filepath.Join(t.Root, k, namespace)
			info, err := os.Stat(nsDir)
			if err != nil || !info.IsDir() {
				continue
			}
			for _, ext := range leafExtensions {
				candidate := filepath.Join(nsDir, name+ext)
				if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
					chain := ancestorChain(t.Root, k, namespace, candidate)
					return t, k, candidate, chain, true
				}
			}
		}
	}
	return Tier{}, "", "", nil, false
}

func readKindDirs(profilesRoot string) ([]string, error) {
	entries, err := os.ReadDir(profilesRoot)
	if err != nil {
		return nil, err
	}
	var kinds []string
	for _, e := range entries {
		if e.IsDir() {
			kinds = append(kinds, e.Name())
		}
	}
	sort.Strings(kinds)
	return kinds, nil
}

// ancestorChain returns, root to leaf, every _meta.json that applies to
// leafPath plus leafPath itself: profiles/_meta.json,
// profiles/<kind>/_meta.json, profiles/<kind>/<namespace>/_meta.json,
// leafPath.
func ancestorChain(profilesRoot, kind, namespace, leafPath string) []string {
	var chain []string
	candidates := []string{
		filepath.Join(profilesRoot, "_meta.json"),
		filepath.Join(profilesRoot, kind, "_meta.json"),
		filepath.Join(profilesRoot, kind, namespace, "_meta.json"),
	}
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			chain = append(chain, c)
		}
	}
	chain = append(chain, leafPath)
	return chain
}
