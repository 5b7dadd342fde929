package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		log, err := newLogger("debug", format)
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(-1))
	}

	_, err := newLogger("chatty", "json")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestServe_InvalidConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_WINDOW", "never")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_WINDOW")
}
