package registry

import (
	"crypto/ed25519"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/jn-run/jn/internal/jnerrors"
	"github.com/jn-run/jn/internal/pluginsign"
	"github.com/jn-run/jn/pkg/jnplugin"
)

// Options tunes discovery behavior.
type Options struct {
	CachePath string
	// Strict disables executable self-describe entirely, requiring every
	// plugin outside the embedded-manifest path to be skipped.
	Strict bool
	Logger *slog.Logger

	// RequireSigned drops any user/bundled-tier plugin whose signature
	// does not verify against TrustedKeys. Project-tier plugins are
	// never signature-checked, matching the existing trust boundary
	// that exempts project-tier plugins from --jn-meta execution too.
	RequireSigned bool
	TrustedKeys   []ed25519.PublicKey
}

// Registry indexes discovered plugins by role, each role's slice sorted
// by name (patterns are pre-compiled; ranking by specificity happens at
// match time since specificity depends on which pattern matched, not a
// single per-descriptor number).
type Registry struct {
	byRole map[jnplugin.Role][]*PluginDescriptor
	logger *slog.Logger
}

// Discover scans every directory in dirs (priority order: project >
// user > bundled) for plugin executables and builds a Registry. Errors
// extracting one plugin's metadata are logged and that plugin is
// omitted; Discover itself only fails on I/O errors enumerating a
// directory that exists but can't be read, or on cache persistence
// failure.
func Discover(dirs []TierDir, opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cached := loadCache(opts.CachePath)
	fresh := map[string]cacheEntry{}

	var descriptors []*PluginDescriptor
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir.Path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, &jnerrors.IOError{Op: "readdir", Path: dir.Path, Err: err}
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir.Path, e.Name())
			info, err := e.Info()
			if err != nil {
				continue
			}
			if !isExecutable(info) {
				continue
			}
			if dir.Tier != TierProject && opts.RequireSigned {
				if err := pluginsign.VerifyBinary(path, pluginsign.DefaultSignaturePath(path), opts.TrustedKeys); err != nil {
					logger.Warn("plugin signature verification failed", "path", path, "error", err)
					continue
				}
			}

			if prior, ok := cached[path]; ok && prior.Mtime == info.ModTime().UnixNano() && prior.Size == info.Size() {
				fresh[path] = prior
				descriptors = append(descriptors, buildDescriptor(prior.Manifest, path, prior.LaunchPrefix, dir.Tier, info))
				continue
			}

			manifest, launchPrefix, err := extractMetadata(path, dir.Tier, opts.Strict)
			if err != nil {
				logger.Warn("plugin metadata extraction failed", "path", path, "error", err)
				continue
			}
			entry := cacheEntry{Path: path, Mtime: info.ModTime().UnixNano(), Size: info.Size(), Tier: dir.Tier, LaunchPrefix: launchPrefix, Manifest: manifest}
			fresh[path] = entry
			descriptors = append(descriptors, buildDescriptor(manifest, path, launchPrefix, dir.Tier, info))
		}
	}

	if opts.CachePath != "" {
		if err := saveCache(opts.CachePath, fresh); err != nil {
			return nil, err
		}
	}

	r := &Registry{byRole: map[jnplugin.Role][]*PluginDescriptor{}, logger: logger}
	for _, d := range descriptors {
		r.byRole[d.Role] = append(r.byRole[d.Role], d)
	}
	for role := range r.byRole {
		sortByName(r.byRole[role])
	}
	return r, nil
}

// extractMetadata tries the embedded-manifest path first, falling back
// to self-describe only on tiers trusted for execution.
func extractMetadata(path, tier string, strict bool) (jnplugin.Manifest, []string, error) {
	if m, ok, err := extractEmbedded(path); err != nil {
		return jnplugin.Manifest{}, nil, err
	} else if ok {
		return m, nil, nil
	}
	if !trustsSelfDescribe(tier, strict) {
		return jnplugin.Manifest{}, nil, &jnerrors.PluginMetaError{Path: path, Reason: "no embedded manifest and tier is not trusted for --jn-meta execution"}
	}
	m, err := selfDescribe(path)
	return m, nil, err
}

func buildDescriptor(m jnplugin.Manifest, path string, launchPrefix []string, tier string, info os.FileInfo) *PluginDescriptor {
	d := &PluginDescriptor{
		Name:           m.Name,
		Version:        m.Version,
		Role:           m.Role,
		Modes:          m.Modes,
		ConfigParams:   m.ConfigParams,
		ExecutablePath: path,
		LaunchPrefix:   launchPrefix,
		SourceMtime:    info.ModTime(),
		Tier:           tier,
	}
	for _, pat := range m.Matches {
		re, err := regexp.Compile(pat)
		if err != nil {
			// PATTERN_COMPILE_FAILED: plugin retained, pattern omitted.
			continue
		}
		d.patterns = append(d.patterns, pattern{source: pat, re: re, specificity: specificity(pat, tier)})
	}
	return d
}

// sortByName orders a role's descriptors by name; the stable sort
// preserves discovery order (project before user before bundled) for
// descriptors sharing a name, which is what ByName's tier-priority
// guarantee rests on.
func sortByName(ds []*PluginDescriptor) {
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].Name < ds[j].Name })
}

// Match returns every plugin in role whose patterns match candidate
// (the address's raw or path string, caller's choice), sorted by
// descending specificity; ties are broken lexicographically by name.
func (r *Registry) Match(role jnplugin.Role, candidate string) []*PluginDescriptor {
	type scored struct {
		d   *PluginDescriptor
		spc int
	}
	var hits []scored
	for _, d := range r.byRole[role] {
		if spc, ok := d.matchSpecificity(candidate); ok {
			hits = append(hits, scored{d, spc})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].spc != hits[j].spc {
			return hits[i].spc > hits[j].spc
		}
		return hits[i].d.Name < hits[j].d.Name
	})
	out := make([]*PluginDescriptor, len(hits))
	for i, h := range hits {
		out[i] = h.d
	}
	return out
}

// Best returns the head of Match's output, or nil if nothing matches.
func (r *Registry) Best(role jnplugin.Role, candidate string) *PluginDescriptor {
	m := r.Match(role, candidate)
	if len(m) == 0 {
		return nil
	}
	return m[0]
}

// ByName returns every descriptor with the given role and name, in tier
// priority order (project > user > bundled), so that a name collision
// across tiers always resolves to the most specific tier first.
func (r *Registry) ByName(role jnplugin.Role, name string) []*PluginDescriptor {
	var out []*PluginDescriptor
	for _, d := range r.byRole[role] {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

// All returns every discovered descriptor grouped by role, for
// introspection surfaces (jn plugins list, jn serve's /registry
// endpoint). The returned slices are copies; mutating them does not
// affect the registry.
func (r *Registry) All() map[jnplugin.Role][]*PluginDescriptor {
	out := make(map[jnplugin.Role][]*PluginDescriptor, len(r.byRole))
	for role, ds := range r.byRole {
		out[role] = append([]*PluginDescriptor(nil), ds...)
	}
	return out
}

func isExecutable(info os.FileInfo) bool {
	if info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
