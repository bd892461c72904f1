package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jn-run/jn/internal/address"
	"github.com/jn-run/jn/internal/profile"
	"github.com/jn-run/jn/internal/registry"
	"github.com/jn-run/jn/pkg/jnplugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvScript = `#!/bin/sh
# /// script
# [tool.jn]
# name = "csv"
# version = "1.0.0"
# role = "format"
# modes = ["read", "write"]
# matches = ['(?i)\.csv$']
# config_params = ["delimiter", "header"]
# ///
exit 0
`

const gzipScript = `#!/bin/sh
# /// script
# [tool.jn]
# name = "gzip"
# version = "1.0.0"
# role = "compression"
# modes = ["raw"]
# matches = ['^gz$']
# ///
exit 0
`

const httpScript = `#!/bin/sh
# /// script
# [tool.jn]
# name = "http"
# version = "1.0.0"
# role = "protocol"
# modes = ["raw", "profiles"]
# matches = ['^http(s)?://']
# config_params = ["limit"]
# ///
exit 0
`

const filterScript = `#!/bin/sh
# /// script
# [tool.jn]
# name = "filter"
# version = "1.0.0"
# role = "filter"
# modes = ["filter"]
# matches = ['.*']
# config_params = ["expr"]
# ///
exit 0
`

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o755))
	}
	write("jn-plugin-csv", csvScript)
	write("jn-plugin-gzip", gzipScript)
	write("jn-plugin-http", httpScript)
	write("jn-plugin-filter", filterScript)

	reg, err := registry.Discover([]registry.TierDir{{Tier: registry.TierProject, Path: dir}}, registry.Options{})
	require.NoError(t, err)
	return reg
}

// TestBuildRead_S1 checks that a plain CSV file read pipeline has
// exactly one content stage.
func TestBuildRead_S1(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, nil)

	addr, err := address.Parse("t.csv", address.DirectionIn)
	require.NoError(t, err)

	p, err := b.BuildRead(addr)
	require.NoError(t, err)
	require.Len(t, p.Stages, 1)
	assert.Equal(t, "csv", p.Stages[0].Descriptor.Name)
	assert.Equal(t, jnplugin.ModeRead, p.Stages[0].Mode)
}

// TestBuildRead_S3 checks that a gzipped CSV file read pipeline has
// exactly two stages (decompress -> format); stdout wiring/concatenation
// happens in the executor.
func TestBuildRead_S3(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, nil)

	addr, err := address.Parse("t.csv.gz", address.DirectionIn)
	require.NoError(t, err)

	p, err := b.BuildRead(addr)
	require.NoError(t, err)
	require.Len(t, p.Stages, 2)
	assert.Equal(t, "gzip", p.Stages[0].Descriptor.Name)
	assert.Equal(t, jnplugin.ModeRaw, p.Stages[0].Mode)
	assert.Equal(t, "csv", p.Stages[1].Descriptor.Name)
	assert.Equal(t, jnplugin.ModeRead, p.Stages[1].Mode)
}

func TestBuildRead_ConfigParamBecomesArgv(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, nil)

	addr, err := address.Parse("t.csv?delimiter=%3B", address.DirectionIn)
	require.NoError(t, err)

	p, err := b.BuildRead(addr)
	require.NoError(t, err)
	require.Len(t, p.Stages, 1)
	assert.Contains(t, p.Stages[0].Argv, "--delimiter=%3B")
}

func TestBuildRead_FilterParamAddsFilterStage(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, nil)

	addr, err := address.Parse("t.csv?status=done", address.DirectionIn)
	require.NoError(t, err)

	p, err := b.BuildRead(addr)
	require.NoError(t, err)
	require.Len(t, p.Stages, 2)
	assert.Equal(t, "filter", p.Stages[1].Descriptor.Name)
	assert.Equal(t, jnplugin.ModeFilter, p.Stages[1].Mode)
	require.Len(t, p.Stages[1].Argv, 1)
	assert.Equal(t, `--expr=(record["status"] == "done")`, p.Stages[1].Argv[0])
}

// TestBuildRead_S4 checks profile resolution with env substitution,
// splitting "limit" (declared config) from "role" (left over as a
// filter).
func TestBuildRead_S4(t *testing.T) {
	reg := testRegistry(t)
	root := t.TempDir()
	profiles := filepath.Join(root, ".jn", "profiles")
	require.NoError(t, os.MkdirAll(filepath.Join(profiles, "http", "myapi"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(profiles, "http", "myapi", "_meta.json"),
		[]byte(`{"base_url":"https://api.example.com","headers":{"Auth":"Bearer ${TOK}"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(profiles, "http", "myapi", "users.json"),
		[]byte(`{"path":"/v1/users","defaults":{"limit":"10"}}`), 0o644))

	resolver := profile.NewResolver(profile.DefaultTiers(root, "", ""), func(name string) (string, bool) {
		if name == "TOK" {
			return "abc", true
		}
		return "", false
	})
	b := New(reg, resolver)

	addr, err := address.Parse("@myapi/users?role=admin", address.DirectionIn)
	require.NoError(t, err)

	p, err := b.BuildRead(addr)
	require.NoError(t, err)
	require.Len(t, p.Stages, 2)
	assert.Equal(t, "http", p.Stages[0].Descriptor.Name)
	assert.Contains(t, p.Stages[0].Argv, "--limit=10")
	require.Len(t, p.Stages[0].Env, 1)
	assert.Contains(t, p.Stages[0].Env[0], "Bearer abc")
	assert.Equal(t, "filter", p.Stages[1].Descriptor.Name)
	assert.Equal(t, `--expr=(record["role"] == "admin")`, p.Stages[1].Argv[0])
}

func TestBuildWrite_FileSinkIsAtomic(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, nil)

	addr, err := address.Parse("out.csv", address.DirectionOut)
	require.NoError(t, err)

	p, err := b.BuildWrite(addr)
	require.NoError(t, err)
	require.Len(t, p.Stages, 1)
	assert.Equal(t, jnplugin.ModeWrite, p.Stages[0].Mode)
	assert.True(t, p.Output.Atomic)
	assert.Equal(t, "out.csv", p.Output.FilePath)
	assert.NotEmpty(t, p.Output.TempPath)
}

func TestMergeParameters_AddressWinsOverDefaults(t *testing.T) {
	out := MergeParameters([]address.Param{{Key: "limit", Value: "99"}}, map[string]string{"limit": "10", "page": "1"})
	assert.Equal(t, []address.Param{{Key: "limit", Value: "99"}, {Key: "page", Value: "1"}}, out)
}
