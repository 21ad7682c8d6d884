// Package cachepath resolves the run context directory: the cache
// directory that backs a single litani run, discovered via a
// .litani_cache_dir pointer file.
package cachepath

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
)

// PointerFileName is the name of the pointer file that, once found, names
// the actual cache directory for a run.
const PointerFileName = ".litani_cache_dir"

// maxDescendantScanDepth bounds the downward scan fallback -- an
// unbounded descendant walk over a large working tree is a surprising way
// for cache discovery to behave, so it stops here.
const maxDescendantScanDepth = 16

// Find resolves the cache directory by searching, in order: the current
// directory and all of its ancestors, then a depth-first walk of the
// current directory's descendants (bounded to maxDescendantScanDepth), for
// a readable .litani_cache_dir pointer whose target exists. The first such
// pointer wins. Permission errors on a candidate are skipped silently.
func Find(startDir string) (string, error) {
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", xerrors.Errorf("getwd: %w", err)
		}
		startDir = wd
	}
	startDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", xerrors.Errorf("abs: %w", err)
	}

	if dir, ok := tryPointer(filepath.Join(startDir, PointerFileName)); ok {
		return dir, nil
	}
	dir := startDir
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached the filesystem root
		}
		dir = parent
		if target, ok := tryPointer(filepath.Join(dir, PointerFileName)); ok {
			return target, nil
		}
	}

	if target, ok := scanDescendants(startDir, maxDescendantScanDepth); ok {
		return target, nil
	}

	return "", xerrors.Errorf("%s: %w", startDir, litani.ErrMissingCache)
}

// tryPointer reads path as a .litani_cache_dir pointer file and returns the
// directory it names, if that directory exists and is readable.
func tryPointer(path string) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	target := string(bytesTrimSpace(b))
	if target == "" {
		return "", false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	if _, err := os.Stat(target); err != nil {
		return "", false
	}
	return target, true
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// scanDescendants performs a bounded depth-first walk of root's
// descendants, looking for a .litani_cache_dir pointer. Permission errors
// on a candidate directory are skipped silently, rather than aborting the
// walk.
func scanDescendants(root string, maxDepth int) (string, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsPermission(err) {
			return "", false
		}
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		child := filepath.Join(root, e.Name())
		if target, ok := tryPointer(filepath.Join(child, PointerFileName)); ok {
			return target, true
		}
		if maxDepth > 0 {
			if target, ok := scanDescendants(child, maxDepth-1); ok {
				return target, true
			}
		}
	}
	return "", false
}

// WritePointer creates startDir/.litani_cache_dir, pointing at cacheDir.
// Used by `litani init`.
func WritePointer(startDir, cacheDir string) error {
	return os.WriteFile(filepath.Join(startDir, PointerFileName), []byte(cacheDir+"\n"), 0644)
}
