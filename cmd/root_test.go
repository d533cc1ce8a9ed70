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

	expected := []string{"discover", "classify", "choices", "override", "query", "tenants", "mapping", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "orgmap", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestClassifyCommand_Flags(t *testing.T) {
	require.NotNil(t, classifyCmd.Flags().Lookup("bundle"))
	save := classifyCmd.Flags().Lookup("save")
	require.NotNil(t, save)
	assert.Equal(t, "false", save.DefValue)
}

func TestOverrideCommand_Flags(t *testing.T) {
	for _, name := range []string{"answers", "household", "advisor", "aum"} {
		assert.NotNil(t, overrideCmd.Flags().Lookup(name), "override should have --%s", name)
	}
}

func TestQueryCommand_HasHouseholds(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range queryCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["households"])

	limit := queryHouseholdsCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "0", limit.DefValue)
	assert.NotNil(t, queryHouseholdsCmd.Flags().ShorthandLookup("q"))
	assert.NotNil(t, queryHouseholdsCmd.Flags().Lookup("run"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCollectAnswers(t *testing.T) {
	reset := func() {
		overrideAnswers, overrideHousehold, overrideAdvisor, overrideAUM = "", "", "", ""
	}
	t.Cleanup(reset)

	t.Run("empty", func(t *testing.T) {
		reset()
		_, err := collectAnswers()
		assert.Error(t, err)
	})

	t.Run("flags", func(t *testing.T) {
		reset()
		overrideHousehold = "record_type:Household"
		overrideAUM = "not_tracked"
		a, err := collectAnswers()
		require.NoError(t, err)
		assert.Equal(t, "record_type:Household", a.Household)
		assert.Equal(t, "not_tracked", a.AUM)
		assert.Empty(t, a.Advisor)
	})
}
