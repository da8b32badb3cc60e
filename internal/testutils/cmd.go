// Package testutils provides helper functions for testing
package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CmdTestCase is a test case for testing cobra CMD flags.
type CmdTestCase struct {
	Name           string
	Short          string
	Default        string
	Filename       bool
	PersistentFlag bool
	BaseCmd        *cobra.Command
}

// FlagTestHelper is a helper function to test cobra CMD flags.
func FlagTestHelper(t *testing.T, testCase CmdTestCase) {
	t.Helper()
	var flag *pflag.Flag

	if testCase.PersistentFlag {
		flag = testCase.BaseCmd.PersistentFlags().Lookup(testCase.Name)
	} else {
		flag = testCase.BaseCmd.Flags().Lookup(testCase.Name)
	}
	require.NotNil(t, flag, "flag %q should exist", testCase.Name)
	assert.Equal(t, testCase.Short, flag.Shorthand)
	assert.Equal(t, testCase.Default, flag.DefValue)

	_, isFilename := flag.Annotations[cobra.BashCompFilenameExt]
	assert.Equal(t, testCase.Filename, isFilename, "flag %q filename annotation", testCase.Name)
}
