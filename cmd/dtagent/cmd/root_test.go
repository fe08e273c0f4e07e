package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	// Given: the root command
	rootCmd := NewRootCmd()

	// Then: every subcommand should be reachable by name
	for _, name := range []string{"config", "index", "search", "status", "serve", "version"} {
		sub, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, "Subcommand %q should exist", name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	// Given: the root command
	rootCmd := NewRootCmd()

	// Then: config and debug flags should be registered
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"), "--config should be registered")
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"), "--debug should be registered")
}

func TestRootCmd_VersionTemplate(t *testing.T) {
	// Given: the root command
	rootCmd := NewRootCmd()

	// Then: the built-in --version flag should be wired to our version
	assert.NotEmpty(t, rootCmd.Version, "Root command should carry a version")
}
