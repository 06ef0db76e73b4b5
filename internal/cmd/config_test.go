package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCommand(t *testing.T) {
	t.Setenv("HISTORIAN_HARVESTER_ARCHIVE_URI", "s3://from-env/history")

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", "../../dev/examples/historian.yml"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "archive_uri: s3://from-env/history")
	assert.Contains(t, out.String(), "state_uri: s3://athena-history-state/historian/checkpoint.json")
}
