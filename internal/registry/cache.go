package registry

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jn-run/jn/internal/jnerrors"
	"github.com/jn-run/jn/pkg/jnplugin"
)

// cacheFormatVersion is bumped whenever cacheFile's shape changes
// incompatibly; a mismatched version is treated as an empty cache.
const cacheFormatVersion = 1

type cacheEntry struct {
	Path         string            `json:"path"`
	Mtime        int64             `json:"mtime_unix_nano"`
	Size         int64             `json:"size"`
	Tier         string            `json:"tier"`
	LaunchPrefix []string          `json:"launch_prefix,omitempty"`
	Manifest     jnplugin.Manifest `json:"manifest"`
}

type cacheFile struct {
	Version int          `json:"version"`
	Entries []cacheEntry `json:"entries"`
}

// loadCache reads <cache_dir>/plugins.json. A missing or unreadable
// file is not an error: discovery simply starts cold.
func loadCache(path string) map[string]cacheEntry {
	out := map[string]cacheEntry{}
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil || cf.Version != cacheFormatVersion {
		return out
	}
	for _, e := range cf.Entries {
		out[e.Path] = e
	}
	return out
}

// saveCache writes entries to path atomically (temp file + rename in
// the same directory), per the core's general atomic-write discipline.
func saveCache(path string, entries map[string]cacheEntry) error {
	cf := cacheFile{Version: cacheFormatVersion}
	for _, e := range entries {
		cf.Entries = append(cf.Entries, e)
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &jnerrors.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".plugins-*.json.tmp")
	if err != nil {
		return &jnerrors.IOError{Op: "create temp", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &jnerrors.IOError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &jnerrors.IOError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &jnerrors.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
