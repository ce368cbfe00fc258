// Package testutils provides test helpers shared across the repository.
package testutils

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var update = flag.Bool("update", false, "update golden files")

// GoldenPath returns the golden path file for the current test.
func GoldenPath(t *testing.T) string {
	t.Helper()

	path := filepath.Join("testdata", "golden")
	path = filepath.Join(path, normalizeName(t.Name()))

	return path
}

// LoadWithUpdateFromGoldenYAML loads the element from a YAML serialized golden file.
// If the update environment flag is set, the golden file is refreshed from got first.
func LoadWithUpdateFromGoldenYAML[E any](t *testing.T, got E) E {
	t.Helper()

	goldenPath := GoldenPath(t)

	if *update {
		out, err := yaml.Marshal(got)
		require.NoError(t, err, "Cannot marshal to YAML")
		require.NoError(t, os.MkdirAll(filepath.Dir(goldenPath), 0750), "Cannot create golden directory")
		require.NoError(t, os.WriteFile(goldenPath, out, 0600), "Cannot write golden file")
	}

	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "Cannot load golden file")

	var want E
	require.NoError(t, yaml.Unmarshal(data, &want), "Cannot unmarshal golden file")

	return want
}

func normalizeName(name string) string {
	r := []rune(name)
	for i, c := range r {
		switch c {
		case ' ', '/', '\\', ':':
			r[i] = '_'
		}
	}
	return string(r)
}
