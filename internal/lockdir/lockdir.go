// Package lockdir implements filesystem-level mutual exclusion keyed to a
// directory, plus a companion expirable-directory marker. Locking relies
// on POSIX unlink(2) succeeding exactly once across concurrent callers: a
// directory is locked iff its sentinel file is absent, so "release"
// creates the sentinel and "acquire" atomically unlinks it. This survives
// process death, unlike flock(2), which is why it is preferred here.
package lockdir

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
)

const (
	lockSentinel    = ".litani-lock"
	expiredSentinel = ".litani-expired"
)

// Dir is a lockable, expirable directory. A newly constructed Dir is
// considered initially locked: callers must Release() before the
// directory becomes available to other acquirers.
type Dir struct {
	path string
}

// New returns a Dir for path. path must already exist.
func New(path string) *Dir {
	return &Dir{path: path}
}

func (d *Dir) sentinelPath() string { return filepath.Join(d.path, lockSentinel) }
func (d *Dir) expiredPath() string  { return filepath.Join(d.path, expiredSentinel) }

// Init marks the directory as initially locked, by creating the sentinel's
// absence — i.e. it ensures no stale sentinel is left over from a previous
// directory at this path. Callers that create a fresh report directory
// call Init then hold the lock until Release.
func (d *Dir) Init() error {
	err := os.Remove(d.sentinelPath()) // sentinel absent => locked
	if err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("init %s: %w", d.path, err)
	}
	return nil
}

// TryAcquire attempts a non-blocking acquisition. It returns
// litani.ErrAcquisitionFailed if the directory is already locked.
func (d *Dir) TryAcquire() error {
	err := os.Remove(d.sentinelPath())
	if err == nil {
		return nil // we unlinked the sentinel: we now hold the lock
	}
	if os.IsNotExist(err) {
		return xerrors.Errorf("%s: %w", d.path, litani.ErrAcquisitionFailed)
	}
	return xerrors.Errorf("acquire %s: %w", d.path, err)
}

// Acquire blocks, retrying at a 1s cadence, until either the lock is
// acquired or timeout elapses, in which case it returns
// litani.ErrTimeoutExpired.
func (d *Dir) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		if err := d.TryAcquire(); err == nil {
			return nil
		} else if !xerrors.Is(err, litani.ErrAcquisitionFailed) {
			return err
		}
		if time.Now().After(deadline) {
			return xerrors.Errorf("%s: %w", d.path, litani.ErrTimeoutExpired)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release creates the sentinel file, returning the directory to the unlocked
// state so a subsequent Acquire can succeed.
func (d *Dir) Release() error {
	f, err := os.OpenFile(d.sentinelPath(), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return xerrors.Errorf("release %s: %w", d.path, err)
	}
	return f.Close()
}

// Expire marks the directory as eligible for garbage collection.
func (d *Dir) Expire() error {
	f, err := os.OpenFile(d.expiredPath(), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return xerrors.Errorf("expire %s: %w", d.path, err)
	}
	return f.Close()
}

// IsExpired reports whether the directory has been marked expired.
func (d *Dir) IsExpired() bool {
	_, err := os.Stat(d.expiredPath())
	return err == nil
}

// Path returns the underlying directory path.
func (d *Dir) Path() string { return d.path }
