// Command jn-plugin-sql is jn's reference protocol plugin for "sql"
// profiles: it opens a connection with database/sql plus a
// blank-imported driver and runs the profile's leaf query through
// jmoiron/sqlx for row-to-map decoding, since the query has no
// compile-time known row shape to StructScan into.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:    "sql",
			Version: "1.0.0",
			Role:    jnplugin.RoleProtocol,
			Modes:   []jnplugin.Mode{jnplugin.ModeProfiles},
			Matches: []string{"sql"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeProfiles: runQuery,
		},
	}
}

type sqlConfig struct {
	Driver string `json:"driver"` // "mysql", "postgres", "sqlite3"
	DSN    string `json:"dsn"`
	Body   string `json:"body"` // the profile's ".sql" leaf content
}

func decodeConfig(inv jnplugin.Invocation) sqlConfig {
	var cfg sqlConfig
	raw := inv.ProfileJSON
	if v, ok := raw["driver"].(string); ok {
		cfg.Driver = v
	}
	if v, ok := raw["dsn"].(string); ok {
		cfg.DSN = v
	}
	if v, ok := raw["body"].(string); ok {
		cfg.Body = v
	}
	return cfg
}

// runQuery executes the profile's query body and emits one NDJSON
// record per result row, column values keyed by column name.
func runQuery(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := decodeConfig(inv)
	if cfg.Driver == "" || cfg.DSN == "" {
		return fmt.Errorf("jn-plugin-sql: profile missing \"driver\" or \"dsn\"")
	}
	if cfg.Body == "" {
		return fmt.Errorf("jn-plugin-sql: profile has no query body (expected a .sql leaf)")
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("jn-plugin-sql: connecting (%s): %w", cfg.Driver, err)
	}
	defer db.Close()

	return queryToNDJSON(ctx, db, cfg.Body, stdout)
}

// queryToNDJSON runs query and emits one NDJSON record per result row,
// column values keyed by column name.
func queryToNDJSON(ctx context.Context, db *sqlx.DB, query string, stdout io.Writer) error {
	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return fmt.Errorf("jn-plugin-sql: query failed: %w", err)
	}
	defer rows.Close()

	lw := jnplugin.NewLineWriter(stdout)
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return fmt.Errorf("jn-plugin-sql: scanning row: %w", err)
		}
		normalizeRow(row)
		if err := lw.WriteObject(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return lw.Flush()
}

// normalizeRow turns driver-returned []byte column values (the common
// representation for TEXT/VARCHAR in database/sql) into plain strings
// so they marshal as JSON strings, not base64.
func normalizeRow(row map[string]interface{}) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}
