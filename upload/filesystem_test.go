package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestFileSystemUpload_ShallowTree(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()

	dir := t.TempDir()
	smallContent := patternBytes(1024)
	largeContent := patternBytes(1999)
	writeTestFile(t, dir, "a.jpg", smallContent)
	writeTestFile(t, dir, "b.jpg", largeContent)

	fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
		Options: Options{
			URL:        repo.URL() + "/content/dam/target",
			Concurrent: true,
		},
		LocalPath: dir,
	}, log.NewLogger())
	require.NoError(t, err)

	recorder := &eventRecorder{}
	fsu.OnEvent(recorder.listener())

	result, err := fsu.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalFiles())
	assert.Equal(t, 2, result.TotalCompleted())
	assert.Empty(t, result.Errors())

	assert.Equal(t, smallContent, repo.fileBytes("/content/dam/target", "a.jpg"))
	assert.Equal(t, largeContent, repo.fileBytes("/content/dam/target", "b.jpg"))

	created := recorder.ofType(EventFolderCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "/content/dam/target", created[0].FolderPath)

	assert.Len(t, recorder.ofType(EventFileStart), 2)
	assert.Len(t, recorder.ofType(EventFileEnd), 2)
	assert.Empty(t, recorder.ofType(EventFileError))
}

func TestFileSystemUpload_DeepTreeCreatesFolders(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()

	dir := t.TempDir()
	content := patternBytes(300)
	writeTestFile(t, dir, filepath.Join("Sub Folder", "photo.jpg"), content)

	fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
		Options: Options{
			URL: repo.URL() + "/content/dam/target",
		},
		LocalPath: dir,
		Deep:      true,
	}, log.NewLogger())
	require.NoError(t, err)

	recorder := &eventRecorder{}
	fsu.OnEvent(recorder.listener())

	result, err := fsu.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalCompleted())
	assert.Equal(t, content, repo.fileBytes("/content/dam/target/sub-folder", "photo.jpg"))

	created := recorder.ofType(EventFolderCreated)
	require.Len(t, created, 2)
	assert.Equal(t, "/content/dam/target", created[0].FolderPath)
	assert.Equal(t, "/content/dam/target/sub-folder", created[1].FolderPath)
	assert.Equal(t, "/content/dam/target", created[1].TargetParent)
	assert.Equal(t, "Sub Folder", created[1].FolderTitle)
}

func TestFileSystemUpload_CleansesFileNames(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()

	dir := t.TempDir()
	content := patternBytes(300)
	writeTestFile(t, dir, "My File#1.JPG", content)

	fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
		Options: Options{
			URL: repo.URL() + "/content/dam/target",
		},
		LocalPath: dir,
	}, log.NewLogger())
	require.NoError(t, err)

	result, err := fsu.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalCompleted())
	assert.Equal(t, content, repo.fileBytes("/content/dam/target", "My-File-1.JPG"))
}

func TestFileSystemUpload_ZeroByteFile(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()

	dir := t.TempDir()
	writeTestFile(t, dir, "empty.bin", nil)

	fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
		Options: Options{
			URL: repo.URL() + "/content/dam/target",
		},
		LocalPath: dir,
	}, log.NewLogger())
	require.NoError(t, err)

	recorder := &eventRecorder{}
	fsu.OnEvent(recorder.listener())

	result, err := fsu.Execute(context.Background())
	require.NoError(t, err)

	// the folder is still created; the empty file fails without a filestart
	events := recorder.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventFolderCreated, events[0].Type)
	assert.Equal(t, EventFileError, events[1].Type)
	assert.Equal(t, "empty.bin", events[1].FileName)

	assert.Equal(t, 1, result.TotalFiles())
	assert.Equal(t, 0, result.TotalCompleted())
}

func TestFileSystemUpload_RootFolderAlreadyExists(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()
	repo.existingFolders["/content/dam/target"] = true

	dir := t.TempDir()
	content := patternBytes(300)
	writeTestFile(t, dir, "a.jpg", content)

	fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
		Options: Options{
			URL: repo.URL() + "/content/dam/target",
		},
		LocalPath: dir,
	}, log.NewLogger())
	require.NoError(t, err)

	recorder := &eventRecorder{}
	fsu.OnEvent(recorder.listener())

	result, err := fsu.Execute(context.Background())
	require.NoError(t, err)

	assert.Empty(t, recorder.ofType(EventFolderCreated))
	assert.Equal(t, 1, result.TotalCompleted())
	assert.Equal(t, content, repo.fileBytes("/content/dam/target", "a.jpg"))
}

func TestFileSystemUpload_PathBudgetExceeded(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()

	dir := t.TempDir()
	writeTestFile(t, dir, "a.jpg", patternBytes(300))
	writeTestFile(t, dir, "b.jpg", patternBytes(300))

	fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
		Options: Options{
			URL: repo.URL() + "/content/dam/target",
		},
		LocalPath:    dir,
		MaximumPaths: 1,
	}, log.NewLogger())
	require.NoError(t, err)

	result, err := fsu.Execute(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, CodeTooLarge, CodeOf(err))
}

func TestFileSystemUpload_FileBudgetExceeded(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()

	dir := t.TempDir()
	writeTestFile(t, dir, "a.jpg", patternBytes(300))
	writeTestFile(t, dir, "b.jpg", patternBytes(300))

	fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
		Options: Options{
			URL: repo.URL() + "/content/dam/target",
		},
		LocalPath:      dir,
		MaxUploadFiles: 1,
	}, log.NewLogger())
	require.NoError(t, err)

	result, err := fsu.Execute(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, CodeTooLarge, CodeOf(err))
}

func TestFileSystemUpload_IncludePatterns(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()

	dir := t.TempDir()
	content := patternBytes(300)
	writeTestFile(t, dir, "a.jpg", content)
	writeTestFile(t, dir, "notes.txt", patternBytes(300))

	fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
		Options: Options{
			URL: repo.URL() + "/content/dam/target",
		},
		LocalPath:       dir,
		IncludePatterns: []string{"**/*.jpg"},
	}, log.NewLogger())
	require.NoError(t, err)

	result, err := fsu.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalFiles())
	assert.Equal(t, content, repo.fileBytes("/content/dam/target", "a.jpg"))
	assert.Empty(t, repo.fileBytes("/content/dam/target", "notes.txt"))
}

func TestFileSystemUpload_WalkFailureCodes(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()

	dir := t.TempDir()
	filePath := writeTestFile(t, dir, "plain.txt", patternBytes(10))

	tests := []struct {
		name      string
		localPath string
		wantCode  Code
	}{
		{name: "missing root", localPath: filepath.Join(dir, "does-not-exist"), wantCode: CodeNotFound},
		{name: "root is a file", localPath: filePath, wantCode: CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
				Options:   Options{URL: repo.URL() + "/content/dam/target"},
				LocalPath: tt.localPath,
			}, log.NewLogger())
			require.NoError(t, err)

			result, err := fsu.Execute(context.Background())
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantCode, CodeOf(err))
		})
	}
}

func TestFileSystemUpload_FailedFolderAttemptedOnce(t *testing.T) {
	repo := newFakeRepository()
	defer repo.Close()
	repo.failFolderFor["/content/dam/target/bad"] = true

	dir := t.TempDir()
	writeTestFile(t, dir, filepath.Join("bad", "x", "1.jpg"), patternBytes(300))
	writeTestFile(t, dir, filepath.Join("bad", "y", "2.jpg"), patternBytes(300))

	fsu, err := NewFileSystemUpload(FileSystemUploadOptions{
		Options: Options{
			URL: repo.URL() + "/content/dam/target",
		},
		LocalPath: dir,
		Deep:      true,
	}, log.NewLogger())
	require.NoError(t, err)

	result, err := fsu.Execute(context.Background())
	require.NoError(t, err)

	// both children need the failed parent, but its creation is tried once
	assert.Equal(t, 1, repo.attemptsFor("/content/dam/target/bad"))

	failedResults := 0
	for _, dirResult := range result.DirectoryResults() {
		if dirResult.FolderPath == "/content/dam/target/bad" {
			failedResults++
			assert.Equal(t, CodeForbidden, CodeOf(dirResult.Err))
		}
	}
	assert.Equal(t, 1, failedResults)
	assert.NotEmpty(t, result.Errors())
}

func TestNewFileSystemUpload_InvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		options FileSystemUploadOptions
	}{
		{
			name:    "missing local path",
			options: FileSystemUploadOptions{Options: Options{URL: "http://localhost:4502/content/dam/t"}},
		},
		{
			name: "invalid replacement",
			options: FileSystemUploadOptions{
				Options:                     Options{URL: "http://localhost:4502/content/dam/t"},
				LocalPath:                   "/tmp",
				InvalidCharacterReplacement: "#",
			},
		},
		{
			name: "missing target folder",
			options: FileSystemUploadOptions{
				Options:   Options{URL: "http://localhost:4502"},
				LocalPath: "/tmp",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileSystemUpload(tt.options, log.NewLogger())
			require.Error(t, err)
			assert.Equal(t, CodeInvalidOptions, CodeOf(err))
		})
	}
}
