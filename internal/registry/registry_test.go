package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jn-run/jn/pkg/jnplugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvPluginScript = `#!/bin/sh
# /// script
# [tool.jn]
# name = "csv"
# version = "1.0.0"
# role = "format"
# modes = ["read", "write"]
# matches = ['(?i)\.csv$', '(?i)\.tsv$']
# config_params = ["delimiter", "header"]
# ///
exit 0
`

const jsonPluginScript = `#!/bin/sh
# /// script
# [tool.jn]
# name = "json"
# version = "1.0.0"
# role = "format"
# modes = ["read", "write"]
# matches = ['^.*\.json$']
# ///
exit 0
`

func writeExecutable(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

func TestDiscover_EmbeddedManifest(t *testing.T) {
	dir := t.TempDir()
	writeExecutable(t, dir, "jn-plugin-csv", csvPluginScript)

	reg, err := Discover([]TierDir{{Tier: TierProject, Path: dir}}, Options{})
	require.NoError(t, err)

	csv := reg.Best(jnplugin.RoleFormat, "data.csv")
	require.NotNil(t, csv)
	assert.Equal(t, "csv", csv.Name)
	assert.True(t, csv.SupportsMode(jnplugin.ModeRead))
	assert.True(t, csv.ConsumesParam("delimiter"))
	assert.False(t, csv.ConsumesParam("limit"))

	assert.Nil(t, reg.Best(jnplugin.RoleFormat, "data.parquet"))
}

func TestDiscover_SpecificityOrdering(t *testing.T) {
	dir := t.TempDir()
	writeExecutable(t, dir, "jn-plugin-json", jsonPluginScript)

	anchoredLoose := `#!/bin/sh
# /// script
# [tool.jn]
# name = "json-loose"
# version = "1.0.0"
# role = "format"
# modes = ["read"]
# matches = [".*"]
# ///
exit 0
`
	writeExecutable(t, dir, "jn-plugin-json-loose", anchoredLoose)

	reg, err := Discover([]TierDir{{Tier: TierProject, Path: dir}}, Options{})
	require.NoError(t, err)

	matches := reg.Match(jnplugin.RoleFormat, "data.json")
	require.Len(t, matches, 2)
	assert.Equal(t, "json", matches[0].Name, "the longer, anchored pattern must outrank the catch-all")
}

func TestDiscover_CacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeExecutable(t, dir, "jn-plugin-csv", csvPluginScript)
	cachePath := filepath.Join(t.TempDir(), "plugins.json")

	reg1, err := Discover([]TierDir{{Tier: TierProject, Path: dir}}, Options{CachePath: cachePath})
	require.NoError(t, err)
	require.FileExists(t, cachePath)

	reg2, err := Discover([]TierDir{{Tier: TierProject, Path: dir}}, Options{CachePath: cachePath})
	require.NoError(t, err)

	assert.Equal(t, reg1.Best(jnplugin.RoleFormat, "x.csv").Name, reg2.Best(jnplugin.RoleFormat, "x.csv").Name)
}

func TestSpecificity_LiteralLengthDominatesWithinTier(t *testing.T) {
	short := specificity(`^a$`, TierUser)
	long := specificity(`^abcdefgh$`, TierUser)
	assert.Greater(t, long, short)
}

func TestSpecificity_TierBonus(t *testing.T) {
	project := specificity(`^x$`, TierProject)
	bundled := specificity(`^x$`, TierBundled)
	assert.Greater(t, project, bundled)
}

func TestTrustsSelfDescribe(t *testing.T) {
	assert.False(t, trustsSelfDescribe(TierProject, false))
	assert.True(t, trustsSelfDescribe(TierUser, false))
	assert.True(t, trustsSelfDescribe(TierBundled, false))
	assert.False(t, trustsSelfDescribe(TierUser, true))
}
