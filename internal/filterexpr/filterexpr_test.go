package filterexpr

import (
	"testing"

	"github.com/jn-run/jn/internal/address"
	"github.com/stretchr/testify/assert"
)

func TestBuild_Empty(t *testing.T) {
	assert.Equal(t, "", Build(nil))
}

// TestBuild_S4 checks a single equality filter parameter for "role"
// left over after "limit" is consumed as config.
func TestBuild_S4(t *testing.T) {
	expr := Build([]address.Param{{Key: "role", Value: "admin"}})
	assert.Equal(t, `(record["role"] == "admin")`, expr)
}

func TestBuild_ANDAcrossDistinctKeys(t *testing.T) {
	expr := Build([]address.Param{
		{Key: "status", Value: "done"},
		{Key: "region", Value: "us"},
	})
	assert.Equal(t, `(record["status"] == "done") && (record["region"] == "us")`, expr)
}

func TestBuild_ORWithinRepeatedKey(t *testing.T) {
	expr := Build([]address.Param{
		{Key: "status", Value: "done"},
		{Key: "status", Value: "failed"},
	})
	assert.Equal(t, `((record["status"] == "done") || (record["status"] == "failed"))`, expr)
}

func TestBuild_OperatorSuffixesAndNumericLiterals(t *testing.T) {
	expr := Build([]address.Param{
		{Key: "count", Op: ">=", Value: "10"},
		{Key: "count", Op: "<", Value: "5"},
	})
	assert.Equal(t, `((record["count"] >= 10) || (record["count"] < 5))`, expr)
}

func TestBuild_NotEqual(t *testing.T) {
	expr := Build([]address.Param{{Key: "status", Op: "!=", Value: "done"}})
	assert.Equal(t, `(record["status"] != "done")`, expr)
}

func TestBuild_MixedANDandOR(t *testing.T) {
	expr := Build([]address.Param{
		{Key: "status", Value: "done"},
		{Key: "status", Value: "failed"},
		{Key: "region", Value: "us"},
	})
	assert.Equal(t, `((record["status"] == "done") || (record["status"] == "failed")) && (record["region"] == "us")`, expr)
}
