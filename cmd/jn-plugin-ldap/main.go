// Command jn-plugin-ldap is jn's reference protocol plugin for LDAP
// directories: it binds, runs a search, and emits one NDJSON record per
// entry. Built on go-ldap/ldap/v3.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-ldap/ldap/v3"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:    "ldap",
			Version: "1.0.0",
			Role:    jnplugin.RoleProtocol,
			Modes:   []jnplugin.Mode{jnplugin.ModeProfiles},
			Matches: []string{"ldap"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeProfiles: searchLDAP,
		},
	}
}

// ldapConfig is the subset of a resolved "ldap" profile this plugin
// needs to open a connection and run one search.
type ldapConfig struct {
	Server   string `json:"server"`
	Port     int    `json:"port"`
	BaseDN   string `json:"base_dn"`
	BindDN   string `json:"bind_dn"`
	BindPass string `json:"bind_password"`
	Filter   string   `json:"filter"`
	TLS      bool     `json:"tls"`
	Attrs    []string `json:"attributes"`
}

func searchLDAP(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := decodeConfig(inv)
	if cfg.Server == "" {
		return fmt.Errorf("jn-plugin-ldap: profile has no \"server\" field")
	}
	if cfg.Port == 0 {
		cfg.Port = 389
	}
	if cfg.Filter == "" {
		cfg.Filter = "(objectClass=*)"
	}

	addr := cfg.Server + ":" + strconv.Itoa(cfg.Port)
	var conn *ldap.Conn
	var err error
	if cfg.TLS {
		conn, err = ldap.DialTLS("tcp", addr, &tls.Config{ServerName: cfg.Server})
	} else {
		conn, err = ldap.DialURL("ldap://" + addr)
	}
	if err != nil {
		return fmt.Errorf("jn-plugin-ldap: connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPass); err != nil {
			return fmt.Errorf("jn-plugin-ldap: bind: %w", err)
		}
	}

	req := ldap.NewSearchRequest(
		cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		cfg.Filter, cfg.Attrs, nil,
	)
	result, err := conn.SearchWithPaging(req, 500)
	if err != nil {
		return fmt.Errorf("jn-plugin-ldap: search: %w", err)
	}

	lw := jnplugin.NewLineWriter(stdout)
	for _, entry := range result.Entries {
		obj := map[string]interface{}{"dn": entry.DN}
		for _, a := range entry.Attributes {
			if len(a.Values) == 1 {
				obj[a.Name] = a.Values[0]
			} else {
				obj[a.Name] = a.Values
			}
		}
		if err := lw.WriteObject(obj); err != nil {
			return err
		}
	}
	return lw.Flush()
}

func decodeConfig(inv jnplugin.Invocation) ldapConfig {
	var cfg ldapConfig
	raw := inv.ProfileJSON
	if v, ok := raw["server"].(string); ok {
		cfg.Server = v
	}
	if v, ok := raw["port"].(float64); ok {
		cfg.Port = int(v)
	}
	if v, ok := raw["base_dn"].(string); ok {
		cfg.BaseDN = v
	}
	if v, ok := raw["bind_dn"].(string); ok {
		cfg.BindDN = v
	}
	if v, ok := raw["bind_password"].(string); ok {
		cfg.BindPass = v
	}
	if v, ok := raw["filter"].(string); ok {
		cfg.Filter = v
	}
	if v, ok := raw["tls"].(bool); ok {
		cfg.TLS = v
	}
	if v, ok := raw["attributes"].([]interface{}); ok {
		for _, e := range v {
			if s, ok := e.(string); ok {
				cfg.Attrs = append(cfg.Attrs, s)
			}
		}
	}
	return cfg
}
