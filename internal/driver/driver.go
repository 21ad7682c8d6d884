// Package driver implements the execution driver: spawns the Ninja
// scheduler subprocess, parses its progress stream, renders a single-line
// terminal progress indicator, and reconstructs a global parallelism
// trace. The single-reader-goroutine-plus-private-accumulator shape, and
// the isTerminal/refreshStatus terminal handling, are grounded on
// internal/batch/batch.go's scheduler.
package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
)

// NinjaStatusTemplate is installed as NINJA_STATUS so every progress line
// has the literal form "<ninja>:R/F/T <message>".
const NinjaStatusTemplate = "<ninja>:%r/%f/%t "

var statusLineRE = regexp.MustCompile(`^<ninja>:(\d+)/(\d+)/(\d+) (.*)$`)

// isTerminal mirrors internal/batch/batch.go's package-level isTerminal
// var, computed once via unix.IoctlGetTermios.
var isTerminal = func() bool {
	_, err := unix.IoctlGetTermios(int(os.Stdout.Fd()), unix.TCGETS)
	return err == nil
}()

// Options configures one invocation of Run.
type Options struct {
	NinjaPath   string // path to the ninja binary, defaults to "ninja"
	NinjaFile   string // build.ninja path
	Parallelism int    // -j argument, 0 means let ninja choose
	DryRun      bool
	Targets     []string
	Log         *log.Logger
}

// Result is the execution driver's output: the scheduler's exit status and
// the reconstructed parallelism trace.
type Result struct {
	ExitCode    int
	Parallelism litani.Parallelism
}

// Run spawns Ninja and drives it to completion.
func Run(ctx context.Context, opts Options) (*Result, error) {
	ninjaPath := opts.NinjaPath
	if ninjaPath == "" {
		ninjaPath = "ninja"
	}
	logger := opts.Log
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	args := []string{"-k", "0", "-f", opts.NinjaFile}
	if opts.Parallelism > 0 {
		args = append(args, "-j", strconv.Itoa(opts.Parallelism))
	}
	if opts.DryRun {
		args = append(args, "-n")
	}
	args = append(args, opts.Targets...)

	logger.Printf("%s %s", ninjaPath, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, ninjaPath, args...)
	cmd.Env = append(os.Environ(), "NINJA_STATUS="+NinjaStatusTemplate)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, xerrors.Errorf("ninja stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, xerrors.Errorf("start ninja: %w", err)
	}

	// A single reader goroutine consumes stdout; the driver waits on its
	// completion before reading its private accumulator: no shared mutable
	// state beyond the goroutine's private accumulator, read only after join.
	reader := &progressReader{log: logger}
	readDone := make(chan error, 1)
	go func() { readDone <- reader.consume(stdout) }()

	waitErr := cmd.Wait()
	readErr := <-readDone
	if readErr != nil && waitErr == nil {
		waitErr = readErr
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if xerrors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, xerrors.Errorf("run ninja: %w", waitErr)
		}
	}

	if exitCode != 0 && len(reader.samples) == 0 {
		return nil, xerrors.Errorf("ninja exited %d with no status lines parsed: %w", exitCode, litani.ErrSchedulerFailure)
	}

	maxParallelism := 0
	for _, s := range reader.samples {
		if s.Running > maxParallelism {
			maxParallelism = s.Running
		}
	}

	return &Result{
		ExitCode: exitCode,
		Parallelism: litani.Parallelism{
			Trace:          reader.samples,
			MaxParallelism: maxParallelism,
			NProc:          runtime.NumCPU(),
		},
	}, nil
}

type progressReader struct {
	log     *log.Logger
	samples []litani.ParallelismSample
	start   time.Time
}

func (r *progressReader) consume(stdout io.Reader) error {
	r.start = time.Now()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		m := statusLineRE.FindStringSubmatch(line)
		if m == nil {
			fmt.Println(line) // non-matching lines are printed through
			continue
		}
		running, _ := strconv.Atoi(m[1])
		finished, _ := strconv.Atoi(m[2])
		total, _ := strconv.Atoi(m[3])
		message := m[4]

		r.samples = append(r.samples, litani.ParallelismSample{
			TimeMillis: time.Since(r.start).Milliseconds(),
			Running:    running,
			Finished:   finished,
			Total:      total,
		})
		r.renderProgress(running, finished, total, message)
	}
	if err := scanner.Err(); err != nil {
		r.log.Printf("reading ninja stdout: %v", err)
		return err
	}
	return nil
}

// renderProgress renders a single-line, width-aware TTY progress
// indicator, truncating the message to fit the terminal width.
func (r *progressReader) renderProgress(running, finished, total int, message string) {
	if !isTerminal {
		return
	}
	width := terminalWidth()
	line := fmt.Sprintf("[%d/%d, %d running] %s", finished, total, running, message)
	if width > 0 && len(line) > width {
		line = line[:width-1]
	}
	fmt.Printf("\r%s\033[K", line)
	if finished == total {
		fmt.Println()
	}
}

func terminalWidth() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0
	}
	return int(ws.Col)
}
