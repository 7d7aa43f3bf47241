package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPaths(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	dir, err := DefaultConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".finchat"), dir)

	path, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".finchat", "config.yaml"), path)

	data, err := DefaultDataPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".finchat", "finchat.db"), data)
}

func TestDefaultConfigDir_HomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)

	got, err := DefaultDataPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "finchat.db"), got)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"~", home},
		{"~/data/finchat.db", filepath.Join(home, "data/finchat.db")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"/some/~/path", "/some/~/path"},
		{"~other/path", "~other/path"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
