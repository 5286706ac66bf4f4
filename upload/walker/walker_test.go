package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalk_Deep(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg", 512)
	writeFile(t, root, "sub/b.jpg", 100)
	writeFile(t, root, "sub/nested/c.png", 5)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "deeper"), 0o755))

	result, err := Walk(Options{Root: root, Deep: true}, log.NewLogger())
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	// directories with no descendant files are pruned
	assert.Equal(t, []string{
		filepath.Join(root, "sub"),
		filepath.Join(root, "sub", "nested"),
	}, result.Directories)

	require.Len(t, result.Files, 3)
	sizes := map[string]int64{}
	for _, file := range result.Files {
		rel, err := filepath.Rel(root, file.Path)
		require.NoError(t, err)
		sizes[filepath.ToSlash(rel)] = file.Size
	}
	assert.Equal(t, map[string]int64{
		"a.jpg":            512,
		"sub/b.jpg":        100,
		"sub/nested/c.png": 5,
	}, sizes)
}

func TestWalk_ShallowOnlyListsImmediateChildren(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg", 10)
	writeFile(t, root, "sub/b.jpg", 10)

	result, err := Walk(Options{Root: root}, log.NewLogger())
	require.NoError(t, err)

	assert.Empty(t, result.Directories)
	require.Len(t, result.Files, 1)
	assert.Equal(t, filepath.Join(root, "a.jpg"), result.Files[0].Path)
}

func TestWalk_SkipsTempArtifacts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.jpg", 10)
	writeFile(t, root, ".DS_Store", 10)
	writeFile(t, root, "~$lockfile.docx", 10)
	writeFile(t, root, "download.TMP", 10)
	writeFile(t, root, "Thumbs.db", 10)
	writeFile(t, root, ".hidden/inside.jpg", 10)

	result, err := Walk(Options{Root: root, Deep: true}, log.NewLogger())
	require.NoError(t, err)

	require.Len(t, result.Files, 1)
	assert.Equal(t, filepath.Join(root, "keep.jpg"), result.Files[0].Path)
	assert.Empty(t, result.Directories)
}

func TestWalk_MaximumPathsExceeded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.jpg", 1)
	writeFile(t, root, "two.jpg", 1)
	writeFile(t, root, "three.jpg", 1)

	_, err := Walk(Options{Root: root, Deep: true, MaximumPaths: 2}, log.NewLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaximumPathsExceeded)
}

func TestWalk_IncludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "photo.jpg", 1)
	writeFile(t, root, "notes.txt", 1)
	writeFile(t, root, "sub/render.jpg", 1)

	result, err := Walk(Options{
		Root:            root,
		Deep:            true,
		IncludePatterns: []string{"**/*.jpg"},
	}, log.NewLogger())
	require.NoError(t, err)

	require.Len(t, result.Files, 2)
	for _, file := range result.Files {
		assert.Equal(t, ".jpg", filepath.Ext(file.Path))
	}
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := Walk(Options{Root: filepath.Join(t.TempDir(), "missing")}, log.NewLogger())
	require.Error(t, err)
}

func TestWalk_RootIsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.jpg", 1)

	_, err := Walk(Options{Root: filepath.Join(root, "file.jpg")}, log.NewLogger())
	require.Error(t, err)
}

func writeFile(t *testing.T, root, relPath string, size int) {
	t.Helper()
	fullPath := filepath.Join(root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
	require.NoError(t, os.WriteFile(fullPath, make([]byte, size), 0o644))
}
