package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := GetRootCmd()
	assert.Equal(t, "kalku", cmd.Use)
	assert.Equal(t, version, cmd.Version)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["chat"])
	assert.True(t, names["tools"])
	assert.True(t, names["call"])
}

func TestVersionFlag(t *testing.T) {
	cmd := GetRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "version "+version)
}

func TestCallRequiresToolName(t *testing.T) {
	cmd := GetRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"call"})

	assert.Error(t, cmd.Execute())
}

func TestExecuteReturnsCommandError(t *testing.T) {
	cmd := GetRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"call", "add", "--args", "{bad"})

	// main relies on this error to set a non-zero exit status.
	assert.Error(t, Execute())
}

func TestCallRejectsBadArgsJSON(t *testing.T) {
	cmd := GetRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"call", "add", "--args", "{not json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --args JSON")
}
