package jnplugin

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReaderWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLineWriter(&buf)
	require.NoError(t, lw.WriteObject(map[string]string{"a": "1"}))
	require.NoError(t, lw.WriteObject(map[string]string{"a": "2"}))
	require.NoError(t, lw.Flush())

	lr := NewLineReader(&buf)
	var got []map[string]string
	for {
		var m map[string]string
		ok, err := lr.Decode(&m)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, m)
	}
	assert.Equal(t, []map[string]string{{"a": "1"}, {"a": "2"}}, got)
}

func TestLineReader_SkipsBlankLines(t *testing.T) {
	lr := NewLineReader(bytes.NewReader([]byte("{\"a\":1}\n\n\n{\"a\":2}\n")))
	var count int
	for {
		_, ok, err := lr.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, 2, count)
}
