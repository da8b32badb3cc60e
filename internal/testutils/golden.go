package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// UpdateGoldenEnv is the environment variable that, when set to a non-empty value, refreshes golden files.
const UpdateGoldenEnv = "TESTS_UPDATE_GOLDEN"

// GoldenPath returns the golden file path for the current test.
//
// Top level tests use testdata/golden/<TestName>, subtests use testdata/golden/<TestName>/<SubtestName>,
// where spaces in the subtest name are replaced by underscores as the testing package does.
func GoldenPath(t *testing.T) string {
	t.Helper()

	return filepath.Join(append([]string{"testdata", "golden"}, strings.Split(t.Name(), "/")...)...)
}

// LoadWithUpdateFromGolden loads the golden file for the current test, writing data to it first
// when golden files are being refreshed.
func LoadWithUpdateFromGolden(t *testing.T, data string) string {
	t.Helper()

	path := GoldenPath(t)
	if os.Getenv(UpdateGoldenEnv) != "" {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750), "Cannot create directory for updating golden files")
		require.NoError(t, os.WriteFile(path, []byte(data), 0600), "Cannot write updated golden file to %s", path)
	}

	want, err := os.ReadFile(path)
	require.NoError(t, err, "Cannot load golden file %s", path)

	// Normalize content between Windows and Linux
	return strings.ReplaceAll(string(want), "\r\n", "\n")
}

// LoadWithUpdateFromGoldenYAML is like LoadWithUpdateFromGolden, but marshals got to YAML and
// unmarshals the golden file back into the same type so that callers compare values, not bytes.
func LoadWithUpdateFromGoldenYAML[T any](t *testing.T, got T) T {
	t.Helper()

	data, err := yaml.Marshal(got)
	require.NoError(t, err, "Cannot serialize provided object")

	var want T
	err = yaml.Unmarshal([]byte(LoadWithUpdateFromGolden(t, string(data))), &want)
	require.NoError(t, err, "Cannot deserialize golden file")

	return want
}
