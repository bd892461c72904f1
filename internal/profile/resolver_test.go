package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jn-run/jn/internal/address"
	"github.com/jn-run/jn/internal/jnerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func TestResolve_Basic(t *testing.T) {
	root := t.TempDir()
	profiles := filepath.Join(root, ".jn", "profiles")
	writeFile(t, filepath.Join(profiles, "http", "myapi", "users.json"), `{
		"base_url": "https://api.example.com",
		"headers": {"Authorization": "Bearer ${TOKEN}"},
		"defaults": {"limit": "50"}
	}`)

	r := NewResolver(DefaultTiers(root, "", ""), envLookup(map[string]string{"TOKEN": "abc123"}))
	resolved, err := r.Resolve(address.ProfileRef{Namespace: "myapi", Name: "users"})
	require.NoError(t, err)

	assert.Equal(t, "http", resolved.Kind)
	assert.Equal(t, "https://api.example.com", resolved.Config["base_url"])
	assert.Equal(t, "Bearer abc123", resolved.CredentialPairs["headers.Authorization"])
	assert.Equal(t, "50", resolved.Defaults["limit"])
}

// TestResolve_AncestorLeftFold checks that merging the ancestor chain
// root -> kind -> namespace -> leaf as a left fold gives the same
// result as nesting the merges by hand.
func TestResolve_AncestorLeftFold(t *testing.T) {
	root := t.TempDir()
	profiles := filepath.Join(root, ".jn", "profiles")
	writeFile(t, filepath.Join(profiles, "_meta.json"), `{"timeout": 30, "tags": ["root"]}`)
	writeFile(t, filepath.Join(profiles, "http", "_meta.json"), `{"tags": ["http"], "retries": 2}`)
	writeFile(t, filepath.Join(profiles, "http", "myapi", "_meta.json"), `{"base_url": "https://api.example.com"}`)
	writeFile(t, filepath.Join(profiles, "http", "myapi", "users.json"), `{"timeout": 5}`)

	r := NewResolver(DefaultTiers(root, "", ""), envLookup(nil))
	resolved, err := r.Resolve(address.ProfileRef{Namespace: "myapi", Name: "users"})
	require.NoError(t, err)

	rootObj := map[string]interface{}{"timeout": float64(30), "tags": []interface{}{"root"}}
	kindObj := map[string]interface{}{"tags": []interface{}{"http"}, "retries": float64(2)}
	nsObj := map[string]interface{}{"base_url": "https://api.example.com"}
	leafObj := map[string]interface{}{"timeout": float64(5)}

	byHand := deepMerge(deepMerge(deepMerge(rootObj, kindObj), nsObj), leafObj)
	assert.Equal(t, byHand, resolved.Config)
	assert.Equal(t, float64(5), resolved.Config["timeout"])
	assert.Equal(t, []interface{}{"http"}, resolved.Config["tags"])
	assert.Equal(t, float64(2), resolved.Config["retries"])
}

func TestResolve_VarUnset(t *testing.T) {
	root := t.TempDir()
	profiles := filepath.Join(root, ".jn", "profiles")
	writeFile(t, filepath.Join(profiles, "http", "myapi", "users.json"), `{"token": "${MISSING}"}`)

	r := NewResolver(DefaultTiers(root, "", ""), envLookup(nil))
	_, err := r.Resolve(address.ProfileRef{Namespace: "myapi", Name: "users"})
	require.Error(t, err)
	var varErr *jnerrors.VarUnsetError
	require.ErrorAs(t, err, &varErr)
	assert.Equal(t, "MISSING", varErr.Var)
}

// TestResolve_VarUnsetNamesAncestorFile checks the diagnostic points
// at the _meta.json that introduced the reference, not the leaf.
func TestResolve_VarUnsetNamesAncestorFile(t *testing.T) {
	root := t.TempDir()
	profiles := filepath.Join(root, ".jn", "profiles")
	metaPath := filepath.Join(profiles, "http", "myapi", "_meta.json")
	writeFile(t, metaPath, `{"headers": {"Auth": "Bearer ${TOK}"}}`)
	writeFile(t, filepath.Join(profiles, "http", "myapi", "users.json"), `{"path": "/v1/users"}`)

	r := NewResolver(DefaultTiers(root, "", ""), envLookup(nil))
	_, err := r.Resolve(address.ProfileRef{Namespace: "myapi", Name: "users"})
	require.Error(t, err)
	var varErr *jnerrors.VarUnsetError
	require.ErrorAs(t, err, &varErr)
	assert.Equal(t, "TOK", varErr.Var)
	assert.Equal(t, metaPath, varErr.File)
	assert.Contains(t, err.Error(), "VAR_UNSET(TOK)")
}

func TestResolve_EnvDefault(t *testing.T) {
	root := t.TempDir()
	profiles := filepath.Join(root, ".jn", "profiles")
	writeFile(t, filepath.Join(profiles, "http", "myapi", "users.json"), `{"region": "${REGION:-us-east-1}"}`)

	r := NewResolver(DefaultTiers(root, "", ""), envLookup(nil))
	resolved, err := r.Resolve(address.ProfileRef{Namespace: "myapi", Name: "users"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", resolved.Config["region"])
}

func TestResolve_NotFound(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(DefaultTiers(root, "", ""), envLookup(nil))
	_, err := r.Resolve(address.ProfileRef{Namespace: "nope", Name: "nothing"})
	require.Error(t, err)
	var nf *jnerrors.ProfileNotFound
	require.ErrorAs(t, err, &nf)
}

func TestResolve_Caching(t *testing.T) {
	root := t.TempDir()
	profiles := filepath.Join(root, ".jn", "profiles")
	writeFile(t, filepath.Join(profiles, "http", "myapi", "users.json"), `{"base_url": "https://api.example.com"}`)

	r := NewResolver(DefaultTiers(root, "", ""), envLookup(nil))
	first, err := r.Resolve(address.ProfileRef{Namespace: "myapi", Name: "users"})
	require.NoError(t, err)
	second, err := r.Resolve(address.ProfileRef{Namespace: "myapi", Name: "users"})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestResolve_YAMLLeaf(t *testing.T) {
	root := t.TempDir()
	profiles := filepath.Join(root, ".jn", "profiles")
	writeFile(t, filepath.Join(profiles, "ldap", "corp", "search.yaml"), "base_dn: dc=example,dc=com\nscope: sub\n")

	r := NewResolver(DefaultTiers(root, "", ""), envLookup(nil))
	resolved, err := r.Resolve(address.ProfileRef{Namespace: "corp", Name: "search"})
	require.NoError(t, err)
	assert.Equal(t, "ldap", resolved.Kind)
	assert.Equal(t, "dc=example,dc=com", resolved.Config["base_dn"])
}

func TestResolve_OpaqueBodyLeaf(t *testing.T) {
	root := t.TempDir()
	profiles := filepath.Join(root, ".jn", "profiles")
	writeFile(t, filepath.Join(profiles, "sql", "warehouse", "top_users.sql"), "SELECT * FROM users LIMIT ${LIMIT:-10}")

	r := NewResolver(DefaultTiers(root, "", ""), envLookup(nil))
	resolved, err := r.Resolve(address.ProfileRef{Namespace: "warehouse", Name: "top_users"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users LIMIT 10", resolved.Config["body"])
}
