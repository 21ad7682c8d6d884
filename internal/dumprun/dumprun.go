// Package dumprun implements the dump-run protocol: the run-build process
// installs a SIGUSR1 handler that snapshots the current
// run state to disk; the dump-run CLI verb signals that process and polls
// for a fresh, consistent snapshot. The signal-registration shape is
// grounded on internal/oninterrupt/oninterrupt.go's package-level callback
// list plus a single signal.Notify goroutine, generalized from SIGINT to
// SIGUSR1 and from "run cleanups" to "write a snapshot".
package dumprun

import (
	"encoding/json"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/atomicfile"
)

const (
	pidFileName  = "run-pid"
	dumpFileName = "dumped-run.json"
)

// Writer installs the SIGUSR1 handler for a run-build process: on each
// signal it calls snapshot and atomically publishes the result.
type Writer struct {
	cacheDir string
	snapshot func() (*litani.Run, error)

	mu   sync.Mutex
	sigC chan os.Signal
	done chan struct{}
}

// NewWriter records this process's PID to <cache>/run-pid and starts
// listening for SIGUSR1; each signal invokes snapshot and writes its result
// to <cache>/dumped-run.json. Call Stop to release the signal handler.
func NewWriter(cacheDir string, snapshot func() (*litani.Run, error)) (*Writer, error) {
	if err := atomicfile.WriteFile(filepath.Join(cacheDir, pidFileName), []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return nil, xerrors.Errorf("write run-pid: %w", err)
	}

	w := &Writer{
		cacheDir: cacheDir,
		snapshot: snapshot,
		sigC:     make(chan os.Signal, 1),
		done:     make(chan struct{}),
	}
	signal.Notify(w.sigC, syscall.SIGUSR1)
	go w.loop()
	return w, nil
}

func (w *Writer) loop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.sigC:
			w.mu.Lock()
			run, err := w.snapshot()
			if err == nil {
				_ = atomicfile.WriteJSON(filepath.Join(w.cacheDir, dumpFileName), run)
			}
			w.mu.Unlock()
		}
	}
}

// Stop unregisters the signal handler. The run-pid and dumped-run.json
// files are left behind for late readers: best-effort, last snapshot wins.
func (w *Writer) Stop() {
	signal.Stop(w.sigC)
	close(w.done)
}

// Request options for the client side of the protocol.
type Request struct {
	CacheDir      string
	InitialDelay  time.Duration // default 200ms
	Multiplier    float64       // default 2.0
	MaxRetries    int           // 0 means unbounded
	CallerJobID   string        // from LITANI_JOB_ID, empty if none
	CallerInputs  []string      // the caller's declared inputs, if CallerJobID is set
}

// Dump signals the run-build process identified by <cache>/run-pid and
// polls dumped-run.json with exponential backoff (plus jitter that also
// doubles each round) until a consistent snapshot appears or retries are
// exhausted, in which case it returns (nil, nil) so the caller can emit a
// JSON null.
func Dump(req Request) (*litani.Run, error) {
	pidBytes, err := os.ReadFile(filepath.Join(req.CacheDir, pidFileName))
	if err != nil {
		return nil, xerrors.Errorf("read run-pid: %w", err)
	}
	pid, err := strconv.Atoi(string(pidBytes))
	if err != nil {
		return nil, xerrors.Errorf("parse run-pid: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, xerrors.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGUSR1); err != nil {
		return nil, xerrors.Errorf("signal process %d: %w", pid, err)
	}

	delay := req.InitialDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	mult := req.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	jitter := delay

	for attempt := 0; req.MaxRetries <= 0 || attempt < req.MaxRetries; attempt++ {
		time.Sleep(delay + time.Duration(rand.Int63n(int64(jitter)+1)))

		run, err := readSnapshot(req.CacheDir)
		if err == nil && isConsistent(run, req.CallerJobID, req.CallerInputs) {
			return run, nil
		}

		delay = time.Duration(float64(delay) * mult)
		jitter = time.Duration(float64(jitter) * mult)
	}
	return nil, nil
}

func readSnapshot(cacheDir string) (*litani.Run, error) {
	b, err := os.ReadFile(filepath.Join(cacheDir, dumpFileName))
	if err != nil {
		return nil, err
	}
	var run litani.Run
	if err := json.Unmarshal(b, &run); err != nil {
		return nil, xerrors.Errorf("decode dumped run: %w", err)
	}
	return &run, nil
}

// isConsistent implements the consistency rule: when the caller ran as a
// job (LITANI_JOB_ID set), every job that produces one of the caller's
// declared inputs must show complete=true in the snapshot;
// otherwise any well-formed snapshot is consistent.
func isConsistent(run *litani.Run, callerJobID string, callerInputs []string) bool {
	if run == nil {
		return false
	}
	if callerJobID == "" || len(callerInputs) == 0 {
		return true
	}

	wanted := make(map[string]bool, len(callerInputs))
	for _, in := range callerInputs {
		wanted[in] = true
	}

	for _, p := range run.Pipelines {
		for _, s := range p.CIStages {
			for _, j := range s.Jobs {
				for _, out := range j.WrapperArguments.Outputs {
					if wanted[out] && !j.Complete {
						return false
					}
				}
			}
		}
	}
	return true
}
