package memprofile

import (
	"testing"
	"time"

	"github.com/litani-build/litani"
)

func TestParsePSParsesRSSAndVSZAsBytes(t *testing.T) {
	out := "  PID  PPID   RSS    VSZ\n" +
		"    1     0  1024   4096\n" +
		"    2     1   512   2048\n"
	rows, err := parsePS(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].pid != 1 || rows[0].ppid != 0 || rows[0].rss != 1024*1024 || rows[0].vsz != 4096*1024 {
		t.Errorf("row 0 = %+v, want pid=1 ppid=0 rss=1048576 vsz=4194304", rows[0])
	}
}

func TestParsePSSkipsMalformedLines(t *testing.T) {
	out := "PID PPID RSS VSZ\n" +
		"not-a-pid 0 1024 4096\n" +
		"   \n" +
		"3 1 256 1024\n"
	rows, err := parsePS(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (malformed and blank lines skipped)", len(rows))
	}
	if rows[0].pid != 3 {
		t.Errorf("surviving row pid = %d, want 3", rows[0].pid)
	}
}

func TestStopComputesPeakAcrossTrace(t *testing.T) {
	p := &Profiler{
		start: time.Now(),
		done:  make(chan struct{}),
		trace: []litani.MemorySample{
			{Time: 0, RSS: 100, VSZ: 1000},
			{Time: 1, RSS: 300, VSZ: 200},
			{Time: 2, RSS: 150, VSZ: 900},
		},
	}

	trace := p.Stop()
	if trace.Peak == nil {
		t.Fatal("Stop: Peak is nil, want non-nil after non-empty trace")
	}
	if trace.Peak.RSS != 300 || trace.Peak.VSZ != 1000 {
		t.Errorf("Peak = %+v, want RSS=300 VSZ=1000", trace.Peak)
	}
	if trace.Peak.HumanReadableRSS == "" {
		t.Error("HumanReadableRSS is empty")
	}
}

func TestStopToleratesEmptyTrace(t *testing.T) {
	p := &Profiler{start: time.Now(), done: make(chan struct{})}

	trace := p.Stop()
	if trace.Peak != nil {
		t.Errorf("Peak = %+v, want nil for an empty trace", trace.Peak)
	}
	if len(trace.Trace) != 0 {
		t.Errorf("Trace = %+v, want empty", trace.Trace)
	}
}
