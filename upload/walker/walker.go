// Package walker lists the files and directories beneath a local root,
// skipping temporary artifacts and enforcing a maximum-path budget.
package walker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaximumPaths is the combined directory+file budget used when the
// options do not set one.
const DefaultMaximumPaths = 5000

// ErrMaximumPathsExceeded is returned when a walk would visit more entries
// than the configured budget allows.
var ErrMaximumPathsExceeded = errors.New("maximum path count exceeded")

// File is one uploadable file found during the walk.
type File struct {
	Path string
	Size int64
}

// Options controls a walk.
type Options struct {
	// Root is the local directory to list.
	Root string
	// Deep lists the full recursive tree; otherwise only immediate
	// children of Root are considered.
	Deep bool
	// MaximumPaths caps the combined directory and file count.
	MaximumPaths int
	// IncludePatterns optionally restricts files to those matching at
	// least one doublestar pattern (matched against the path relative to
	// Root).
	IncludePatterns []string
}

// Result is the outcome of a walk. Errors holds per-entry filesystem
// failures that did not abort the walk.
type Result struct {
	Directories []string
	Files       []File
	Errors      []error
}

// temp artifacts that editors and operating systems leave behind
var skippedNamePrefixes = []string{".", "~"}
var skippedNames = []string{"Thumbs.db", "desktop.ini", "Desktop.ini", "ehthumbs.db"}
var skippedNameSuffixes = []string{".tmp", ".swp", ".lock", ".part", ".crdownload"}

// Walk lists the directory tree rooted at options.Root.
func Walk(options Options, logger log.Logger) (Result, error) {
	result := Result{}

	maximumPaths := options.MaximumPaths
	if maximumPaths <= 0 {
		maximumPaths = DefaultMaximumPaths
	}

	root, err := filepath.Abs(options.Root)
	if err != nil {
		return result, fmt.Errorf("resolve walk root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return result, fmt.Errorf("stat walk root: %w", err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("walk root %s is not a directory", root)
	}

	// explicit work stack instead of recursion so arbitrarily deep trees
	// cannot exhaust the call stack
	stack := []string{root}
	pathCount := 0
	dirHasFiles := map[string]bool{}
	var directories []string

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("read directory %s: %w", dir, err))
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if isSkippedName(name) {
				logger.Debugf("Skipping temp artifact %s", filepath.Join(dir, name))
				continue
			}

			pathCount++
			if pathCount > maximumPaths {
				return Result{}, fmt.Errorf("walk of %s visited more than %d entries: %w", root, maximumPaths, ErrMaximumPathsExceeded)
			}

			fullPath := filepath.Join(dir, name)
			if entry.IsDir() {
				if !options.Deep {
					continue
				}
				directories = append(directories, fullPath)
				stack = append(stack, fullPath)
				continue
			}

			fileInfo, err := entry.Info()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("stat %s: %w", fullPath, err))
				continue
			}
			if !fileInfo.Mode().IsRegular() {
				logger.Debugf("Skipping non-regular file %s", fullPath)
				continue
			}

			included, err := matchesInclude(root, fullPath, options.IncludePatterns)
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if !included {
				continue
			}

			result.Files = append(result.Files, File{Path: fullPath, Size: fileInfo.Size()})
			markFileBearing(dirHasFiles, root, dir)
		}

		if !options.Deep {
			break
		}
	}

	// directories with no descendant files are never created remotely
	for _, dir := range directories {
		if dirHasFiles[dir] {
			result.Directories = append(result.Directories, dir)
		}
	}
	sort.Strings(result.Directories)

	return result, nil
}

func markFileBearing(dirHasFiles map[string]bool, root, dir string) {
	for {
		if dirHasFiles[dir] {
			return
		}
		dirHasFiles[dir] = true
		if dir == root {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func matchesInclude(root, path string, patterns []string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false, fmt.Errorf("relativize %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("invalid include pattern %s: %w", pattern, err)
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func isSkippedName(name string) bool {
	for _, prefix := range skippedNamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	for _, skipped := range skippedNames {
		if name == skipped {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, suffix := range skippedNameSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
