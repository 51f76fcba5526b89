package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEnvExpander_RetypesPlainScalars(t *testing.T) {
	env := map[string]string{"PORT": "9222", "HEADLESS": "true", "HOST": "localhost"}
	expander := newEnvExpander()
	expander.lookup = func(key string) (string, bool) {
		val, ok := env[key]
		return val, ok
	}

	out, err := expander.Expand([]byte(`
port: ${PORT}
headless: ${HEADLESS}
host: ${HOST}
quoted: "${PORT}"
missing: ${NOPE}
`))
	require.NoError(t, err)
	require.Equal(t, []string{"NOPE"}, expander.Missing())

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	require.Equal(t, 9222, decoded["port"])
	require.Equal(t, true, decoded["headless"])
	require.Equal(t, "localhost", decoded["host"])
	require.Equal(t, "9222", decoded["quoted"])
	require.Equal(t, "", decoded["missing"])
}

func TestEnvExpander_LeavesKeysAndPlainValues(t *testing.T) {
	expander := newEnvExpander()
	out, err := expander.Expand([]byte("${KEY}: value\nlist: [a, b]\n"))
	require.NoError(t, err)
	require.Nil(t, expander.Missing())

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "value", decoded["${KEY}"])
	require.Equal(t, []any{"a", "b"}, decoded["list"])
}

func TestScalarTag(t *testing.T) {
	require.Equal(t, "!!int", scalarTag("42"))
	require.Equal(t, "!!float", scalarTag("1.5"))
	require.Equal(t, "!!bool", scalarTag("False"))
	require.Equal(t, "!!str", scalarTag("NaN"))
	require.Equal(t, "!!str", scalarTag("1x"))
}
