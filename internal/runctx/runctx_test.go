package runctx

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jn-run/jn/internal/config"
	"github.com/jn-run/jn/internal/jnerrors"
)

// csvShim is a plugin executable for tests: an embedded manifest for
// discovery, and an awk one-liner that converts header-ful CSV on stdin
// to one JSON object per line.
const csvShim = `#!/bin/sh
# /// script
# [tool.jn]
# name = "csv"
# version = "1.0.0"
# role = "format"
# modes = ["read", "write"]
# matches = ['(?i)\.csv$']
# ///
awk 'NR==1 { n=split($0, h, ","); next }
{ split($0, v, ","); printf "{";
  for (i=1;i<=n;i++) { printf "\"%s\":\"%s\"", h[i], v[i]; if (i<n) printf "," }
  print "}" }'
`

func testEnvironment(t *testing.T) (*Environment, string) {
	t.Helper()
	project := t.TempDir()
	pluginDir := filepath.Join(project, ".jn", "plugins")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "jn-plugin-csv"), []byte(csvShim), 0o755))

	cfg := config.Config{ProjectDir: project, CacheDir: t.TempDir()}
	env, err := New(cfg, nil, nil)
	require.NoError(t, err)
	return env, project
}

// TestGet_CSVFileToNDJSON drives a full read pipeline end to end: a CSV
// file on disk, a discovered format plugin spawned as a child process,
// and NDJSON streamed back to the caller.
func TestGet_CSVFileToNDJSON(t *testing.T) {
	env, project := testEnvironment(t)

	input := filepath.Join(project, "t.csv")
	require.NoError(t, os.WriteFile(input, []byte("a,b\n1,2\n3,4\n"), 0o644))

	var out, errOut bytes.Buffer
	rr := env.Get(context.Background(), input, &out, &errOut)
	require.NoError(t, rr.Err)
	require.NotNil(t, rr.Result)
	assert.Equal(t, 0, rr.Result.ExitCode)
	assert.Equal(t, "{\"a\":\"1\",\"b\":\"2\"}\n{\"a\":\"3\",\"b\":\"4\"}\n", out.String())
	assert.NotEmpty(t, rr.RunID)
}

func TestGet_MalformedAddress(t *testing.T) {
	env, _ := testEnvironment(t)

	var out, errOut bytes.Buffer
	rr := env.Get(context.Background(), "", &out, &errOut)
	require.Error(t, rr.Err)
	var parseErr *jnerrors.AddressParseError
	assert.ErrorAs(t, rr.Err, &parseErr)
}

func TestGet_NoPluginForFormat(t *testing.T) {
	env, project := testEnvironment(t)

	input := filepath.Join(project, "t.parquet")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	var out, errOut bytes.Buffer
	rr := env.Get(context.Background(), input, &out, &errOut)
	require.Error(t, rr.Err)
	var notFound *jnerrors.PluginNotFoundError
	assert.ErrorAs(t, rr.Err, &notFound)
}
