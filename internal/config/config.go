// Package config layers jn's runtime configuration: built-in defaults,
// an optional .jn.yaml (or JN_CONFIG-pointed) file, then environment
// variables, each tier overriding the last. Nothing here reads from
// process-wide state at use time — Load returns a plain Config value
// that callers thread explicitly into the registry and profile
// resolver, keeping both independently testable against a temp
// directory.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully-resolved, immutable configuration for one jn
// invocation.
type Config struct {
	// JNHome overrides the bundled plugin/profile root.
	JNHome string
	// PluginPath is additional plugin directories, appended after the
	// project/user tiers (JN_PLUGIN_PATH, colon-separated).
	PluginPath []string
	// CacheDir overrides the default registry-cache location.
	CacheDir string
	// ProjectDir is the root searched for ./.jn/{plugins,profiles}.
	ProjectDir string
	// XDGDataHome is the base for the user tier (${XDG_DATA_HOME:-~/.local}).
	XDGDataHome string

	// Strict disables plugin discovery's executable self-describe path
	// entirely, requiring an embedded manifest for every non-project
	// plugin.
	Strict bool
	// RequireSignedPlugins gates discovery on ed25519 signature
	// verification for user/bundled-tier plugins (JN_REQUIRE_SIGNED_PLUGINS).
	RequireSignedPlugins bool
	// TrustedKeys are the ed25519 public keys accepted when
	// RequireSignedPlugins is set (JN_TRUSTED_KEYS, hex-encoded, comma
	// separated).
	TrustedKeys []ed25519.PublicKey

	// ServeAddr is the listen address for `jn serve` (JN_SERVE_ADDR).
	ServeAddr string
	// MetricsNamespace prefixes every prometheus metric name.
	MetricsNamespace string

	// Jobs is the "jobs" array of .jn.yaml, consumed by `jn schedule`.
	Jobs []JobConfig
}

// JobConfig is one entry of .jn.yaml's "jobs" list: a named cron
// schedule plus the get/put address it runs.
type JobConfig struct {
	Name     string `mapstructure:"name"`
	Schedule string `mapstructure:"schedule"`
	Get      string `mapstructure:"get"`
	Put      string `mapstructure:"put"`
	FromFile string `mapstructure:"from_file"`
}

// Load builds a Config from, in ascending priority: built-in defaults,
// a config file (./.jn.yaml or $JN_CONFIG), then JN_*/XDG_* environment
// variables. It never fails on a missing config file; a malformed one
// is reported.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".jn")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if cfgFile := os.Getenv("JN_CONFIG"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("xdg_data_home", defaultXDGDataHome())
	v.SetDefault("strict", false)
	v.SetDefault("require_signed_plugins", false)
	v.SetDefault("serve_addr", ":7411")
	v.SetDefault("metrics_namespace", "jn")

	v.SetEnvPrefix("JN")
	v.AutomaticEnv()
	_ = v.BindEnv("home", "JN_HOME")
	_ = v.BindEnv("plugin_path", "JN_PLUGIN_PATH")
	_ = v.BindEnv("cache_dir", "JN_CACHE_DIR")
	_ = v.BindEnv("strict", "JN_STRICT")
	_ = v.BindEnv("require_signed_plugins", "JN_REQUIRE_SIGNED_PLUGINS")
	_ = v.BindEnv("trusted_keys", "JN_TRUSTED_KEYS")
	_ = v.BindEnv("serve_addr", "JN_SERVE_ADDR")
	_ = v.BindEnv("xdg_data_home", "XDG_DATA_HOME")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, err
		}
	}

	projectDir, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	keys, err := parseTrustedKeys(v.GetString("trusted_keys"))
	if err != nil {
		return Config{}, err
	}

	var jobs []JobConfig
	if err := v.UnmarshalKey("jobs", &jobs); err != nil {
		return Config{}, err
	}

	cfg := Config{
		JNHome:               v.GetString("home"),
		PluginPath:           splitPath(v.GetString("plugin_path")),
		CacheDir:             v.GetString("cache_dir"),
		ProjectDir:           projectDir,
		XDGDataHome:          v.GetString("xdg_data_home"),
		Strict:               v.GetBool("strict"),
		RequireSignedPlugins: v.GetBool("require_signed_plugins"),
		TrustedKeys:          keys,
		ServeAddr:            v.GetString("serve_addr"),
		MetricsNamespace:     v.GetString("metrics_namespace"),
		Jobs:                 jobs,
	}
	if cfg.JNHome == "" {
		cfg.JNHome = defaultJNHome()
	}
	return cfg, nil
}

func splitPath(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, string(os.PathListSeparator)) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTrustedKeys(raw string) ([]ed25519.PublicKey, error) {
	if raw == "" {
		return nil, nil
	}
	var keys []ed25519.PublicKey
	for _, h := range strings.Split(raw, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, err
		}
		keys = append(keys, ed25519.PublicKey(b))
	}
	return keys, nil
}

func defaultXDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local")
}

func defaultJNHome() string {
	return "/usr/local/share/jn"
}

func defaultCacheDir() string {
	if v := os.Getenv("JN_CACHE_DIR"); v != "" {
		return v
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "jn")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jn-cache"
	}
	return filepath.Join(home, ".cache", "jn")
}
