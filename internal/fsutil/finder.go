// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindFilesByExtension recursively searches the given root path for all files ending
// with the specified extension. It returns a slice of their full paths.
// Hidden files and directories are skipped, except .github/workflows.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		if !visible(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}

// FindFiles resolves a mix of file and directory paths into a sorted,
// de-duplicated list of files carrying one of the given extensions.
// Directories are walked recursively. Paths that do not exist are ignored;
// an explicitly named file with another extension is ignored too, so several
// format loaders can share the same path list.
func FindFiles(paths []string, extensions ...string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if hasExtension(path, extensions) {
				add(filepath.Clean(path))
			}
			continue
		}

		for _, ext := range extensions {
			found, err := FindFilesByExtension(path, ext)
			if err != nil {
				return nil, fmt.Errorf("error walking %s: %w", path, err)
			}
			for _, f := range found {
				add(filepath.Clean(f))
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// visible reports whether a path relative to the walk root is searched.
func visible(rel string, isDir bool) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		if p == "." || !strings.HasPrefix(p, ".") {
			continue
		}
		if p != ".github" {
			return false
		}
		if i+1 == len(parts) {
			return isDir
		}
		if parts[i+1] != "workflows" {
			return false
		}
	}
	return true
}

func hasExtension(path string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
