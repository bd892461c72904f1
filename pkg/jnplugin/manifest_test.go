package jnplugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_Validate(t *testing.T) {
	m := Manifest{Name: "csv", Role: RoleFormat, Modes: []Mode{ModeRead, ModeWrite}, Matches: []string{`(?i)\.csv$`}}
	require.NoError(t, m.Validate())

	bad := m
	bad.Role = "bogus"
	assert.Error(t, bad.Validate())

	noModes := m
	noModes.Modes = nil
	assert.Error(t, noModes.Validate())

	noMatches := m
	noMatches.Matches = nil
	assert.Error(t, noMatches.Validate())
}

func TestManifest_SupportsModeAndConfigParams(t *testing.T) {
	m := Manifest{Role: RoleFormat, Modes: []Mode{ModeRead}, Matches: []string{"x"}, ConfigParams: []string{"delimiter"}}
	assert.True(t, m.SupportsMode(ModeRead))
	assert.False(t, m.SupportsMode(ModeWrite))
	assert.True(t, m.ConsumesParam("delimiter"))
	assert.False(t, m.ConsumesParam("limit"))
}
