package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Tree(t *testing.T) {
	root := rootCommand()

	for _, path := range [][]string{
		{"run"},
		{"serve"},
		{"discover"},
		{"cleanup"},
		{"reprocess"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "steps"},
		{"migrate", "version"},
		{"migrate", "force"},
		{"events", "tail"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRootCommand_ArgValidation(t *testing.T) {
	root := rootCommand()

	discover, _, err := root.Find([]string{"discover"})
	require.NoError(t, err)
	assert.Error(t, discover.Args(discover, nil))
	assert.NoError(t, discover.Args(discover, []string{"lotus", "nails"}))

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	assert.Error(t, run.Args(run, []string{"extra"}))
	assert.NotNil(t, run.Flags().Lookup("once"))

	force, _, err := root.Find([]string{"migrate", "force"})
	require.NoError(t, err)
	assert.Error(t, force.Args(force, nil))
}
