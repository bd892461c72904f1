// Command jn-plugin-http is jn's reference protocol plugin for bare
// http(s):// addresses and "@namespace/name" profiles of kind "http",
// built on the standard library's net/http: a request/response fetch
// needs nothing a plain http.Client doesn't already provide (see
// DESIGN.md).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:         "http",
			Version:      "1.0.0",
			Role:         jnplugin.RoleProtocol,
			Modes:        []jnplugin.Mode{jnplugin.ModeRaw, jnplugin.ModeProfiles},
			Matches:      []string{"^https?://"},
			ConfigParams: []string{"method", "op"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeRaw:      rawHTTP,
			jnplugin.ModeProfiles: profileHTTP,
		},
	}
}

var client = &http.Client{Timeout: 30 * time.Second}

// rawHTTP serves a bare http(s):// address: "--op=fetch" performs a GET
// (or --method override) and streams the response body to stdout;
// "--op=push" reads stdin fully and PUTs (or --method override) it to
// the address.
func rawHTTP(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	addr := os.Getenv("JN_ADDRESS")
	if addr == "" {
		return fmt.Errorf("jn-plugin-http: JN_ADDRESS not set")
	}
	switch inv.Config["op"] {
	case "push":
		method := configOr(inv, "method", "PUT")
		body, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, addr, bytes.NewReader(body))
		if err != nil {
			return err
		}
		return do(req, io.Discard)
	default:
		method := configOr(inv, "method", "GET")
		req, err := http.NewRequestWithContext(ctx, method, addr, nil)
		if err != nil {
			return err
		}
		return do(req, stdout)
	}
}

// profileConfig is the subset of an "http" profile's merged
// configuration this plugin understands: url, method, headers, and an
// optional static body.
type profileConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// profileHTTP drives a profile-resolved HTTP request: it issues one
// request and, when the response is a JSON array, emits one NDJSON
// record per element; otherwise the whole decoded body is one record.
func profileHTTP(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	pc := decodeProfile(inv)
	if pc.URL == "" {
		return fmt.Errorf("jn-plugin-http: profile has no \"url\" field")
	}
	method := pc.Method
	if method == "" {
		method = "GET"
	}
	var bodyReader io.Reader
	if method != "GET" && method != "HEAD" {
		if pc.Body != "" {
			bodyReader = bytesReader(pc.Body)
		} else {
			bodyReader = stdin
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, pc.URL, bodyReader)
	if err != nil {
		return err
	}
	for k, v := range pc.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("jn-plugin-http: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("jn-plugin-http: %s %s: status %d", method, pc.URL, resp.StatusCode)
	}

	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("jn-plugin-http: decoding response body: %w", err)
	}

	lw := jnplugin.NewLineWriter(stdout)
	switch v := payload.(type) {
	case []interface{}:
		for _, elem := range v {
			if err := lw.WriteObject(elem); err != nil {
				return err
			}
		}
	default:
		if err := lw.WriteObject(v); err != nil {
			return err
		}
	}
	return lw.Flush()
}

func decodeProfile(inv jnplugin.Invocation) profileConfig {
	var pc profileConfig
	b, _ := json.Marshal(inv.ProfileJSON)
	_ = json.Unmarshal(b, &pc)
	return pc
}

func do(req *http.Request, out io.Writer) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("jn-plugin-http: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("jn-plugin-http: %s %s: status %d", req.Method, req.URL, resp.StatusCode)
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

func configOr(inv jnplugin.Invocation, key, def string) string {
	if v, ok := inv.Config[key]; ok && v != "" {
		return v
	}
	return def
}

func bytesReader(s string) io.Reader { return bytes.NewReader([]byte(s)) }
