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

	for _, name := range []string{"run", "trigger", "status", "serve", "config", "alerts", "signals", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "afh", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestTriggerCommand_RequiresCadence(t *testing.T) {
	require.Error(t, triggerCmd.Args(triggerCmd, nil))
	require.NoError(t, triggerCmd.Args(triggerCmd, []string{"urgent"}))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestListCommand_Flags(t *testing.T) {
	assert.Equal(t, "20", runsCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "50", signalsCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "24h0m0s", alertsCmd.Flags().Lookup("since").DefValue)
	require.NotNil(t, signalsCmd.Flags().Lookup("json"))
}
