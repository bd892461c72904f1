package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StdioBare(t *testing.T) {
	a, err := Parse("-", DirectionIn)
	require.NoError(t, err)
	assert.Equal(t, KindStdio, a.Kind)
	assert.True(t, a.IsStdio)
	assert.Equal(t, "-", a.Path)
	assert.Empty(t, a.FormatHint)
}

func TestParse_StdioWithFormat(t *testing.T) {
	a, err := Parse("-~csv", DirectionOut)
	require.NoError(t, err)
	assert.Equal(t, "csv", a.FormatHint)
}

func TestParse_StdioDanglingTilde(t *testing.T) {
	_, err := Parse("-~", DirectionIn)
	require.Error(t, err)
}

func TestParse_ProfileBasic(t *testing.T) {
	a, err := Parse("@myapi/users?role=admin", DirectionIn)
	require.NoError(t, err)
	require.Equal(t, KindProfile, a.Kind)
	require.NotNil(t, a.ProfileRef)
	assert.Equal(t, "myapi", a.ProfileRef.Namespace)
	assert.Equal(t, "users", a.ProfileRef.Name)
	require.Len(t, a.Parameters, 1)
	assert.Equal(t, Param{Key: "role", Value: "admin"}, a.Parameters[0])
}

func TestParse_BarePathIsFileKind(t *testing.T) {
	a, err := Parse("data.csv", DirectionIn)
	require.NoError(t, err)
	assert.Equal(t, KindFile, a.Kind)
	assert.Nil(t, nil) // protocol absence asserted below
	assert.Equal(t, "", a.Protocol)
}

func TestParse_SchemeLowercased(t *testing.T) {
	a, err := Parse("HTTP://example.com/x.json", DirectionIn)
	require.NoError(t, err)
	assert.Equal(t, "http", a.Protocol)
	assert.Equal(t, KindURL, a.Kind)
}

func TestParse_CompressionOrder(t *testing.T) {
	a, err := Parse("x.a.gz.bz2", DirectionIn)
	require.NoError(t, err)
	assert.Equal(t, []string{"bz2", "gz"}, a.Compression)
	assert.Equal(t, "x.a", a.Path)
}

func TestParse_RetainedExtAndCompression(t *testing.T) {
	a, err := Parse("t.csv.gz", DirectionIn)
	require.NoError(t, err)
	assert.Equal(t, []string{"gz"}, a.Compression)
	assert.Equal(t, "csv", a.RetainedExt)
}

func TestParse_QueryAndFormatHint(t *testing.T) {
	a, err := Parse("data.txt~csv?limit=10&limit=20&name=", DirectionIn)
	require.NoError(t, err)
	assert.Equal(t, "csv", a.FormatHint)
	require.Len(t, a.Parameters, 3)
	assert.Equal(t, Param{Key: "limit", Value: "10"}, a.Parameters[0])
	assert.Equal(t, Param{Key: "limit", Value: "20"}, a.Parameters[1])
	assert.Equal(t, Param{Key: "name", Value: ""}, a.Parameters[2])
}

func TestParse_OperatorSuffix(t *testing.T) {
	a, err := Parse("data.csv?count>=10&count<5&status!=done", DirectionIn)
	require.NoError(t, err)
	require.Len(t, a.Parameters, 3)
	assert.Equal(t, Param{Key: "count", Op: ">=", Value: "10"}, a.Parameters[0])
	assert.Equal(t, Param{Key: "count", Op: "<", Value: "5"}, a.Parameters[1])
	assert.Equal(t, Param{Key: "status", Op: "!=", Value: "done"}, a.Parameters[2])
}

func TestParse_Glob(t *testing.T) {
	a, err := Parse("logs/*.csv", DirectionIn)
	require.NoError(t, err)
	assert.True(t, a.IsGlob)
	assert.Equal(t, KindGlob, a.Kind)
}

func TestParse_EmptyAddress(t *testing.T) {
	_, err := Parse("", DirectionIn)
	require.Error(t, err)
}

// TestRoundTrip checks that parsing the canonical rendering of an
// Address yields an Address equal in every field except Raw.
func TestRoundTrip(t *testing.T) {
	cases := []string{
		"data.csv",
		"t.csv.gz",
		"x.a.gz.bz2",
		"http://example.com/v1/users~json?role=admin&limit=10",
		"data.csv?count>=10&count<5&status!=done",
		"-~csv",
		"@myapi/users?role=admin",
		"logs/*.csv",
	}
	for _, raw := range cases {
		a, err := Parse(raw, DirectionIn)
		require.NoErrorf(t, err, "parsing %q", raw)
		canon := a.Canonical()
		b, err := Parse(canon, DirectionIn)
		require.NoErrorf(t, err, "re-parsing canonical form %q of %q", canon, raw)

		assert.Equal(t, a.Kind, b.Kind, raw)
		assert.Equal(t, a.Protocol, b.Protocol, raw)
		assert.Equal(t, a.Path, b.Path, raw)
		assert.Equal(t, a.FormatHint, b.FormatHint, raw)
		assert.Equal(t, a.Compression, b.Compression, raw)
		assert.Equal(t, a.Parameters, b.Parameters, raw)
		assert.Equal(t, a.IsGlob, b.IsGlob, raw)
		assert.Equal(t, a.IsStdio, b.IsStdio, raw)
		if a.ProfileRef != nil {
			require.NotNil(t, b.ProfileRef, raw)
			assert.Equal(t, *a.ProfileRef, *b.ProfileRef, raw)
		}
	}
}
