package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "score", "cache", "history", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}

	cacheNames := make(map[string]bool)
	for _, c := range cacheCmd.Commands() {
		cacheNames[c.Name()] = true
	}
	for _, name := range []string{"get", "resolve", "refresh", "list", "explain"} {
		assert.True(t, cacheNames[name], "expected cache subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "medcode-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	require.NotNil(t, runCmd.Flags().Lookup("questions"))
	require.NotNil(t, runCmd.Flags().Lookup("key"))

	out := runCmd.Flags().Lookup("out")
	require.NotNil(t, out)
	assert.Equal(t, "results.json", out.DefValue)
}

func TestScoreCommand_Flags(t *testing.T) {
	require.NotNil(t, scoreCmd.Flags().Lookup("answers"))
	require.NotNil(t, scoreCmd.Flags().Lookup("key"))
}

func TestHistoryCommand_Flags(t *testing.T) {
	flag := historyCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
