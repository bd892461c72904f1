// Package profile implements jn's profile resolver: given a
// namespace/name reference it locates the matching _meta.json
// ancestor chain across the project/user/bundled search path, deep-merges
// it left to right, expands ${VAR}/${VAR:-default} references against
// the environment, and returns a merged configuration object; merging
// it with the address's own query parameters is left to the caller.
package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jn-run/jn/internal/address"
	"github.com/jn-run/jn/internal/jnerrors"
	"gopkg.in/yaml.v3"
)

// Resolved is the outcome of resolving a profile reference: a merged
// configuration object, the credential-bearing fields flattened out of
// it, and the profile's own "defaults" map for parameter merging (done
// by the caller, in internal/pipeline/params.go, so address-vs-profile
// precedence stays in one place).
type Resolved struct {
	Kind            string
	Config          map[string]interface{}
	Defaults        map[string]string
	CredentialPairs map[string]string
	Files           []string // ancestor chain consulted, root to leaf
}

// Resolver resolves profile references and caches results for the
// lifetime of a single jn invocation, keyed by the ancestor chain's
// (path, mtime) tuple so an external edit between two resolutions in the
// same run is still observed.
type Resolver struct {
	Tiers []Tier
	Env   func(string) (string, bool)

	mu    sync.Mutex
	cache map[string]*Resolved
}

// NewResolver builds a Resolver over tiers. If env is nil, os.LookupEnv
// is used.
func NewResolver(tiers []Tier, env func(string) (string, bool)) *Resolver {
	if env == nil {
		env = os.LookupEnv
	}
	return &Resolver{Tiers: tiers, Env: env, cache: map[string]*Resolved{}}
}

// Resolve looks up namespace/name, merges its ancestor chain, and
// substitutes environment references. name may be a multi-segment
// remainder (e.g. "users/extra"); it is matched against the leaf file
// name exactly as given.
func (r *Resolver) Resolve(ref address.ProfileRef) (*Resolved, error) {
	_, kind, leafPath, chain, found := locateLeaf(r.Tiers, ref.Namespace, ref.Name)
	if !found {
		var tierNames []string
		for _, t := range r.Tiers {
			tierNames = append(tierNames, t.Name)
		}
		return nil, &jnerrors.ProfileNotFound{Kind: "unknown", Namespace: ref.Namespace, Name: ref.Name, SearchedTiers: tierNames}
	}

	cacheKey, err := r.cacheKey(kind, ref.Namespace, ref.Name, chain)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if cached, ok := r.cache[cacheKey]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	objs := make([]map[string]interface{}, 0, len(chain))
	for _, f := range chain {
		obj, err := loadFile(f, f == leafPath)
		if err != nil {
			return nil, &jnerrors.ProfileMergeError{File: f, Err: err}
		}
		objs = append(objs, obj)
	}
	merged := foldChain(objs)

	substituted, err := substituteDeep(merged, func(name string) (string, bool) { return r.Env(name) })
	if err != nil {
		if ve, ok := err.(*jnerrors.VarUnsetError); ok {
			ve.File = fileReferencing(chain, ve.Var, leafPath)
		}
		return nil, err
	}
	config, _ := substituted.(map[string]interface{})

	resolved := &Resolved{
		Kind:            kind,
		Config:          config,
		Defaults:        stringMap(config["defaults"]),
		CredentialPairs: credentialPairs(config),
		Files:           chain,
	}

	r.mu.Lock()
	r.cache[cacheKey] = resolved
	r.mu.Unlock()
	return resolved, nil
}

// fileReferencing finds the ancestor-chain file whose text actually
// contains a ${name...} reference, so a VAR_UNSET diagnostic points at
// the _meta.json (or leaf) that introduced it rather than blaming the
// leaf for an ancestor's reference. Substitution runs over the merged
// tree, which no longer knows which file a string came from.
func fileReferencing(chain []string, name, fallback string) string {
	for _, f := range chain {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		if strings.Contains(string(data), "${"+name) {
			return f
		}
	}
	return fallback
}

func credentialPairs(config map[string]interface{}) map[string]string {
	out := map[string]string{}
	for k, v := range stringMap(config["headers"]) {
		out["headers."+k] = v
	}
	for k, v := range stringMap(config["credentials"]) {
		out["credentials."+k] = v
	}
	return out
}

// cacheKey incorporates every ancestor file's mtime so edits made
// between two resolutions within the same invocation are observed.
func (r *Resolver) cacheKey(kind, namespace, name string, chain []string) (string, error) {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteString("/")
	b.WriteString(namespace)
	b.WriteString("/")
	b.WriteString(name)
	for _, f := range chain {
		fi, err := os.Stat(f)
		if err != nil {
			return "", &jnerrors.IOError{Op: "stat", Path: f, Err: err}
		}
		b.WriteString("|")
		b.WriteString(f)
		b.WriteString("@")
		b.WriteString(strconv.FormatInt(fi.ModTime().UnixNano(), 10))
	}
	return b.String(), nil
}

func loadFile(path string, isLeaf bool) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	base := filepath.Base(path)

	if base == "_meta.json" || ext == ".json" {
		var obj map[string]interface{}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil
	}
	if ext == ".yaml" || ext == ".yml" {
		var obj map[string]interface{}
		if err := yaml.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return normalizeYAML(obj), nil
	}
	if !isLeaf {
		// Only _meta.json files participate as non-leaf ancestors; this
		// branch is unreachable in practice since ancestorChain only
		// ever names _meta.json paths before the leaf.
		return map[string]interface{}{}, nil
	}
	// Non-JSON/YAML leaves (.sql, .jq, extensionless) are opaque bodies:
	// the profile's text content, addressable as config["body"].
	return map[string]interface{}{"body": string(data)}, nil
}

// normalizeYAML converts yaml.v3's map[string]interface{} decode (which
// can nest map[string]interface{} for objects already, but may produce
// map[interface{}]interface{} in older decodes) into a form deepMerge can
// walk uniformly. gopkg.in/yaml.v3 decodes mappings as
// map[string]interface{} by default, so this mainly normalizes nested
// slices of maps.
func normalizeYAML(v map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k, vv := range v {
		out[k] = normalizeYAMLValue(vv)
	}
	return out
}

func normalizeYAMLValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return normalizeYAML(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeYAMLValue(e)
		}
		return out
	default:
		return v
	}
}
