package jnplugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_Basic(t *testing.T) {
	inv, err := ParseArgs([]string{"--mode=read", "--delimiter=,", "--header=true", "extra.csv"})
	require.NoError(t, err)
	assert.Equal(t, ModeRead, inv.Mode)
	assert.Equal(t, ",", inv.Config["delimiter"])
	assert.Equal(t, "true", inv.Config["header"])
	assert.Equal(t, []string{"extra.csv"}, inv.Positional)
}

func TestParseArgs_MissingMode(t *testing.T) {
	_, err := ParseArgs([]string{"--delimiter=,"})
	require.Error(t, err)
}

func TestParseArgs_MalformedFlag(t *testing.T) {
	_, err := ParseArgs([]string{"--mode=read", "--no-equals"})
	require.Error(t, err)
}

func TestParseArgs_RejectsJNMeta(t *testing.T) {
	_, err := ParseArgs([]string{"--mode=read", "--jn-meta"})
	require.Error(t, err)
}

func TestInvocation_ConfigBool(t *testing.T) {
	inv := Invocation{Config: map[string]string{"header": "false", "strict": "1"}}
	assert.False(t, inv.ConfigBool("header", true))
	assert.True(t, inv.ConfigBool("strict", false))
	assert.True(t, inv.ConfigBool("absent", true))
}
