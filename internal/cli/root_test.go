package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_Flags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"config", "env", "engine", "state", "timeout", "concurrency", "verbose", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %q should exist", name)
	}
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"version", "catalog", "invoke", "run", "runs", "serve", "completion"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestCompletionCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"completion", "bash"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "leapgis")

	cmd = NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"completion", "tcsh"})
	assert.Error(t, cmd.Execute())
}

func TestRoot_InvalidConfig(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--config", "does-not-exist.yaml", "catalog"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}
