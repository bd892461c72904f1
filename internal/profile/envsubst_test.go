package profile

import (
	"testing"

	"github.com/jn-run/jn/internal/jnerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	env := envLookup(map[string]string{"FOO": "foo-value", "BAR": "bar-value"})

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "no references here", "no references here"},
		{"set variable", "x=${FOO}", "x=foo-value"},
		{"default unused when set", "${FOO:-fallback}", "foo-value"},
		{"default used when unset", "${MISSING:-fallback}", "fallback"},
		{"empty default", "${MISSING:-}", ""},
		{"nested default", "${MISSING:-${BAR}}", "bar-value"},
		{"dollar escape", "cost is $$5", "cost is $5"},
		{"adjacent references", "${FOO}${BAR}", "foo-valuebar-value"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := substitute(tc.in, env)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSubstitute_UnsetFails(t *testing.T) {
	_, err := substitute("${NOPE}", envLookup(nil))
	var varErr *jnerrors.VarUnsetError
	require.ErrorAs(t, err, &varErr)
	assert.Equal(t, "NOPE", varErr.Var)
}

func TestSubstitute_Unterminated(t *testing.T) {
	_, err := substitute("${NOPE", envLookup(nil))
	require.Error(t, err)
}

// TestSubstitute_SinglePass checks that substituted values are never
// re-scanned: a value containing ${...} text stays literal.
func TestSubstitute_SinglePass(t *testing.T) {
	env := envLookup(map[string]string{"A": "${B}", "B": "never"})
	got, err := substitute("${A}", env)
	require.NoError(t, err)
	assert.Equal(t, "${B}", got)
}
