// Package wrapper implements the job wrapper and supervisor: runs one
// job's command with a timeout, subprocess-tree kill, output capture,
// periodic memory sampling, artifact copy, and outcome classification.
// An errgroup (after internal/batch/batch.go's worker-pool shape) runs the
// stdout/stderr drain goroutines while the command is waited on; the
// memory profiler samples on its own ticker goroutine and is stopped once
// the command has exited.
package wrapper

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/atomicfile"
	"github.com/litani-build/litani/internal/memprofile"
	"github.com/litani-build/litani/internal/outcome"
)

// Options configures one invocation of Run.
type Options struct {
	CacheDir string
	Spec     litani.JobSpec
	Table    *litani.OutcomeTable // resolved outcome table, see internal/outcome
}

// killGrace is how long the wrapper waits after SIGTERM before escalating
// to SIGKILL.
const killGrace = 1 * time.Second

// Run executes one job to completion, writes its status file atomically,
// and returns the wrapper's process exit code: 0 when the job's outcome is
// success or fail_ignored, 1 when it is fail, regardless of the command's
// own return code.
func Run(ctx context.Context, opts Options) (exitCode int, _ error) {
	spec := opts.Spec

	cmd := exec.Command("/bin/sh", "-c", spec.Command)
	cmd.Env = append(os.Environ(), litani.EnvJobID+"="+spec.JobID)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return 1, xerrors.Errorf("stdout pipe: %w", err)
	}
	if spec.InterleaveStdoutStderr {
		// StdoutPipe has already pointed cmd.Stdout at the pipe's write end;
		// aliasing Stderr to it merges both streams into one pipe.
		cmd.Stderr = cmd.Stdout
	}
	var stderrPipe io.ReadCloser
	if !spec.InterleaveStdoutStderr {
		stderrPipe, err = cmd.StderrPipe()
		if err != nil {
			return 1, xerrors.Errorf("stderr pipe: %w", err)
		}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return 1, xerrors.Errorf("start %q: %w", spec.Command, err)
	}

	var profiler *memprofile.Profiler
	if spec.ProfileMemory {
		profiler = memprofile.New(ctx, cmd.Process.Pid, memprofile.DefaultInterval)
	}

	if spec.VeryVerbose {
		os.Stderr.WriteString(spec.Command + "\n")
	}

	eg, _ := errgroup.WithContext(ctx)
	tee := spec.Verbose || spec.VeryVerbose
	eg.Go(func() error { return drainLines(stdoutPipe, &stdoutBuf, tee, os.Stdout) })
	if stderrPipe != nil {
		eg.Go(func() error { return drainLines(stderrPipe, &stderrBuf, tee, os.Stderr) })
	}

	waitErr := waitWithTimeout(ctx, cmd, spec.Timeout)
	_ = eg.Wait() // drain goroutines see EOF once the process's pipes close

	var memTrace litani.MemoryTrace
	if profiler != nil {
		memTrace = profiler.Stop()
	}

	end := time.Now()
	timeoutReached := xerrors.Is(waitErr, errTimeout)
	returnCode := exitCodeOf(waitErr)

	table := opts.Table
	if table == nil {
		table = outcome.DefaultTable(outcome.DefaultTableOptions{
			TimeoutOk:     spec.TimeoutOk,
			TimeoutIgnore: spec.TimeoutIgnore,
		})
	}
	result, err := outcome.Decide(table, returnCode, timeoutReached)
	if err != nil {
		return 1, xerrors.Errorf("decide outcome: %w", err)
	}

	artifactErr := copyArtifacts(opts.CacheDir, spec)
	if artifactErr != nil && result != litani.OutcomeFail {
		result = litani.OutcomeFail
	}

	status := litani.JobStatus{
		Complete:          true,
		CommandReturnCode: returnCode,
		TimeoutReached:    timeoutReached,
		StartTime:         start.UTC().Format(litani.TimeLayoutSeconds),
		EndTime:           end.UTC().Format(litani.TimeLayoutSeconds),
		Duration:          int(end.Sub(start).Seconds()),
		Outcome:           result,
		Stdout:            splitLines(stdoutBuf.String()),
		Stderr:            splitLines(stderrBuf.String()),
		MemoryTrace:       memTrace,
		WrapperArguments:  spec,
	}
	if result == litani.OutcomeFail {
		status.WrapperReturnCode = 1
	}
	if spec.OutcomeTable != "" {
		status.LoadedOutcomeDict = table
	}

	if err := writeStatus(opts.CacheDir, spec.JobID, status); err != nil {
		return 1, xerrors.Errorf("write status: %w", err)
	}

	if result == litani.OutcomeFail {
		return 1, nil
	}
	return 0, nil
}

var errTimeout = xerrors.New("job timed out")

// waitWithTimeout waits for cmd to exit, enforcing the timeout-then-kill
// protocol: SIGTERM to the whole process group, a killGrace wait, then
// SIGKILL. A zero timeoutSeconds means no timeout.
func waitWithTimeout(ctx context.Context, cmd *exec.Cmd, timeoutSeconds int) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if timeoutSeconds <= 0 {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			killGroup(cmd, syscall.SIGTERM)
			killAfterGrace(cmd, done)
			return ctx.Err()
		}
	}

	timer := time.NewTimer(time.Duration(timeoutSeconds) * time.Second)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		killGroup(cmd, syscall.SIGTERM)
		killAfterGrace(cmd, done)
		return errTimeout
	case <-ctx.Done():
		killGroup(cmd, syscall.SIGTERM)
		killAfterGrace(cmd, done)
		return ctx.Err()
	}
}

func killGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, sig)
}

func killAfterGrace(cmd *exec.Cmd, done chan error) {
	select {
	case <-done:
		return
	case <-time.After(killGrace):
		killGroup(cmd, syscall.SIGKILL)
		<-done
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if xerrors.Is(err, errTimeout) {
		return -1
	}
	var exitErr *exec.ExitError
	if xerrors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// drainLines copies r into buf for capture in the job's status; when tee is
// set (verbose/very_verbose), it also mirrors every byte to echo, so the
// job's output streams live to the wrapper's own stdout/stderr as it runs.
func drainLines(r io.Reader, buf *bytes.Buffer, tee bool, echo io.Writer) error {
	if tee {
		_, err := io.Copy(io.MultiWriter(buf, echo), bufio.NewReader(r))
		return err
	}
	_, err := io.Copy(buf, bufio.NewReader(r))
	return err
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func writeStatus(cacheDir, jobID string, status litani.JobStatus) error {
	path := filepath.Join(cacheDir, "status", jobID+".json")
	return atomicfile.WriteJSON(path, status)
}

// copyArtifacts copies every declared output of spec into
// <cache>/artifacts/<pipeline>/<stage>/, tolerating a missing output iff
// it is phony. File outputs are copied as files; directory outputs are
// copied recursively, preserving structure -- adapted from the
// copyFile/"cp -T -ar" helpers in internal/build/build.go (dropped
// package; logic re-targeted at litani's artifact layout).
func copyArtifacts(cacheDir string, spec litani.JobSpec) error {
	destDir := filepath.Join(cacheDir, "artifacts", spec.PipelineName, spec.CIStage)
	for _, out := range spec.Outputs {
		info, err := os.Stat(out)
		if err != nil {
			if os.IsNotExist(err) && spec.HasPhonyOutput(out) {
				continue
			}
			return xerrors.Errorf("%s: %w", out, litani.ErrMissingOutput)
		}
		dest := filepath.Join(destDir, filepath.Base(out))
		if info.IsDir() {
			if err := copyDir(out, dest); err != nil {
				return xerrors.Errorf("copy dir %s: %w", out, err)
			}
		} else {
			if err := copyFile(out, dest); err != nil {
				return xerrors.Errorf("copy file %s: %w", out, err)
			}
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}
