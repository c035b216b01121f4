package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
}

func TestFindFilesByExtension(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.hcl", "nested/b.hcl", "c.yml")

	files, err := FindFilesByExtension(root, ".hcl")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.hcl"),
		filepath.Join(root, "nested", "b.hcl"),
	}, files)

	assert.Panics(t, func() { _, _ = FindFilesByExtension(root, "") })
}

func TestFindFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "ci.hcl", "workflows/docker.yml", "workflows/release.yaml", "README.md")

	t.Run("directory and explicit file are merged", func(t *testing.T) {
		files, err := FindFiles([]string{
			filepath.Join(root, "workflows"),
			filepath.Join(root, "ci.hcl"),
			filepath.Join(root, "workflows", "docker.yml"),
			filepath.Join(root, "missing"),
		}, ".yml", ".yaml")
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(root, "workflows", "docker.yml"),
			filepath.Join(root, "workflows", "release.yaml"),
		}, files)
	})

	t.Run("results are sorted", func(t *testing.T) {
		files, err := FindFiles([]string{root}, ".hcl", ".yml")
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(root, "ci.hcl"),
			filepath.Join(root, "workflows", "docker.yml"),
		}, files)
	})

	t.Run("no paths", func(t *testing.T) {
		files, err := FindFiles(nil, ".hcl")
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}

func TestFindFiles_HiddenDirectories(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"ci.hcl",
		".github/workflows/docker.yml",
		".github/dependabot.yml",
		".github/ISSUE_TEMPLATE/bug.yml",
		".git/hooks/pre-commit.yml",
		".wavegrid/logs/ci/run.yml",
		"nested/.cache/stale.hcl",
		".hidden.yml",
	)

	files, err := FindFiles([]string{root}, ".hcl", ".yml")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, ".github", "workflows", "docker.yml"),
		filepath.Join(root, "ci.hcl"),
	}, files)
}

func TestVisible(t *testing.T) {
	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{".", true, true},
		{"workflows/ci.yml", false, true},
		{".github", true, true},
		{".github/workflows", true, true},
		{".github/workflows/ci.yml", false, true},
		{".github/dependabot.yml", false, false},
		{".github/actions", true, false},
		{".git", true, false},
		{"sub/.wavegrid", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, visible(tt.rel, tt.isDir))
		})
	}
}
