// Package atomicfile writes files via temp-file-plus-rename, so readers
// never observe a partially written file, using github.com/google/renameio
// exactly as cmd/distri/build.go does for build metadata and downloaded
// artifacts.
package atomicfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// WriteFile atomically writes data to path, creating parent directories as
// needed.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return xerrors.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := renameio.WriteFile(path, data, perm); err != nil {
		return xerrors.Errorf("atomicfile.WriteFile %s: %w", path, err)
	}
	return nil
}

// WriteJSON atomically marshals v as JSON and writes it to path.
func WriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Errorf("marshal %s: %w", path, err)
	}
	return WriteFile(path, b, 0644)
}

// PendingFile is the temporary file Create opens for path, for callers that
// need to stream writes before committing. renameio.TempFile chooses its
// name (a hidden, randomly suffixed name derived from path's base name, not
// "<path>~<uuid>") and its directory (os.TempDir when that can be renamed
// onto path's filesystem, otherwise path's own directory). Callers must call
// either Commit or Cancel exactly once.
type PendingFile struct {
	pf *renameio.PendingFile
}

// Create creates parent directories for path and returns a pending file.
func Create(path string) (*PendingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, xerrors.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := renameio.TempFile("", path)
	if err != nil {
		return nil, xerrors.Errorf("atomicfile.Create %s: %w", path, err)
	}
	return &PendingFile{pf: f}, nil
}

func (p *PendingFile) Write(b []byte) (int, error) { return p.pf.Write(b) }

// Commit flushes, closes and atomically renames the temp file over the
// final destination.
func (p *PendingFile) Commit() error {
	return p.pf.CloseAtomicallyReplace()
}

// Cancel deletes the temp file without publishing it.
func (p *PendingFile) Cancel() error {
	return p.pf.Cleanup()
}

// Symlink atomically creates (or replaces) a symlink at linkname pointing
// at oldname, via renameio.Symlink — the exact call cmd/distri/build.go
// uses to publish metadata symlinks.
func Symlink(oldname, linkname string) error {
	if err := os.MkdirAll(filepath.Dir(linkname), 0755); err != nil {
		return xerrors.Errorf("mkdir %s: %w", filepath.Dir(linkname), err)
	}
	if err := renameio.Symlink(oldname, linkname); err != nil {
		return xerrors.Errorf("atomicfile.Symlink %s -> %s: %w", linkname, oldname, err)
	}
	return nil
}
