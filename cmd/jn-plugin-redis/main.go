// Command jn-plugin-redis is jn's reference protocol plugin for a
// "redis" profile kind, built on redis/go-redis/v9. It reads a profile's
// "match" pattern (read) or reads NDJSON key/value records from stdin
// and SETs them (write).
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:    "redis",
			Version: "1.0.0",
			Role:    jnplugin.RoleProtocol,
			Modes:   []jnplugin.Mode{jnplugin.ModeProfiles, jnplugin.ModeWrite},
			Matches: []string{"redis"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeProfiles: scanRedis,
			jnplugin.ModeWrite:    setRedis,
		},
	}
}

type redisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Match    string `json:"match"`
}

func decodeConfig(inv jnplugin.Invocation) redisConfig {
	var cfg redisConfig
	raw := inv.ProfileJSON
	if v, ok := raw["addr"].(string); ok {
		cfg.Addr = v
	}
	if v, ok := raw["password"].(string); ok {
		cfg.Password = v
	}
	if v, ok := raw["db"].(float64); ok {
		cfg.DB = int(v)
	}
	if v, ok := raw["match"].(string); ok {
		cfg.Match = v
	}
	return cfg
}

func client(cfg redisConfig) *redis.Client {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})
}

// scanRedis iterates every key matching the profile's "match" pattern
// (default "*") and emits one {key, value} NDJSON record per key.
func scanRedis(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := decodeConfig(inv)
	rdb := client(cfg)
	defer rdb.Close()

	match := cfg.Match
	if match == "" {
		match = "*"
	}

	lw := jnplugin.NewLineWriter(stdout)
	iter := rdb.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := rdb.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("jn-plugin-redis: GET %q: %w", key, err)
		}
		if err := lw.WriteObject(map[string]interface{}{"key": key, "value": val}); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("jn-plugin-redis: scanning %q: %w", match, err)
	}
	return lw.Flush()
}

// setRedis reads NDJSON {key, value} records from stdin and SETs each.
func setRedis(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := decodeConfig(inv)
	rdb := client(cfg)
	defer rdb.Close()

	lr := jnplugin.NewLineReader(stdin)
	for {
		var rec struct {
			Key   string      `json:"key"`
			Value interface{} `json:"value"`
		}
		ok, err := lr.Decode(&rec)
		if err != nil {
			return fmt.Errorf("jn-plugin-redis: decoding record: %w", err)
		}
		if !ok {
			break
		}
		if rec.Key == "" {
			continue
		}
		if err := rdb.Set(ctx, rec.Key, fmt.Sprint(rec.Value), 0).Err(); err != nil {
			return fmt.Errorf("jn-plugin-redis: SET %q: %w", rec.Key, err)
		}
	}
	return nil
}
