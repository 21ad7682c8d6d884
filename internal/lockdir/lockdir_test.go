package lockdir

import (
	"context"
	"testing"
	"time"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
)

func TestInitThenAcquireThenRelease(t *testing.T) {
	dir := t.TempDir()
	d := New(dir)

	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.TryAcquire(); err == nil {
		t.Fatal("TryAcquire on a freshly-Init'd (locked) dir: want error, got nil")
	} else if !xerrors.Is(err, litani.ErrAcquisitionFailed) {
		t.Fatalf("TryAcquire error = %v, want ErrAcquisitionFailed", err)
	}

	if err := d.Release(); err != nil {
		t.Fatal(err)
	}
	if err := d.TryAcquire(); err != nil {
		t.Fatalf("TryAcquire after Release: %v", err)
	}
	// second TryAcquire without an intervening Release must fail: the
	// sentinel is gone, so the directory is locked again.
	if err := d.TryAcquire(); !xerrors.Is(err, litani.ErrAcquisitionFailed) {
		t.Fatalf("second TryAcquire = %v, want ErrAcquisitionFailed", err)
	}
}

func TestAcquireTimesOut(t *testing.T) {
	dir := t.TempDir()
	d := New(dir)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	// never released: Acquire must time out rather than block forever.
	err := d.Acquire(context.Background(), 50*time.Millisecond)
	if !xerrors.Is(err, litani.ErrTimeoutExpired) {
		t.Fatalf("Acquire on a never-released dir = %v, want ErrTimeoutExpired", err)
	}
}

func TestExpireAndIsExpired(t *testing.T) {
	dir := t.TempDir()
	d := New(dir)
	if d.IsExpired() {
		t.Fatal("fresh directory reports expired")
	}
	if err := d.Expire(); err != nil {
		t.Fatal(err)
	}
	if !d.IsExpired() {
		t.Fatal("directory does not report expired after Expire()")
	}
}
