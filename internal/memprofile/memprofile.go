// Package memprofile periodically samples RSS/VSZ across a process
// subtree, adapted from internal/trace/trace.go's ticker-driven /proc
// sampling loops (CPUEvents/MemEvents), swapped here for a `ps`-based
// process-tree snapshot since the quantity of interest is a whole
// subtree's memory, not a single counter file.
package memprofile

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/litani-build/litani"
)

// DefaultInterval is profile_memory_interval's default value.
const DefaultInterval = 1 * time.Second

// Profiler samples the memory footprint of a root PID and all of its
// transitive children on a ticker, until Stop is called.
type Profiler struct {
	rootPID  int
	interval time.Duration
	start    time.Time

	mu    sync.Mutex
	trace []litani.MemorySample

	done chan struct{}
	wg   sync.WaitGroup
}

// New starts sampling rootPID's process subtree every interval
// (DefaultInterval if zero), until the returned Profiler's Stop is called.
func New(ctx context.Context, rootPID int, interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Profiler{
		rootPID:  rootPID,
		interval: interval,
		start:    time.Now(),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run(ctx)
	return p
}

func (p *Profiler) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			rss, vsz, err := sampleSubtree(p.rootPID)
			if err != nil {
				continue // a failed ps invocation just means we miss a sample
			}
			p.mu.Lock()
			p.trace = append(p.trace, litani.MemorySample{
				Time: time.Since(p.start).Seconds(),
				RSS:  rss,
				VSZ:  vsz,
			})
			p.mu.Unlock()
		}
	}
}

// Stop cancels sampling and finalizes the peak. Finalization tolerates an
// empty trace; zero samples is not an error.
func (p *Profiler) Stop() litani.MemoryTrace {
	close(p.done)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	trace := litani.MemoryTrace{Trace: p.trace}
	if len(p.trace) == 0 {
		return trace
	}
	var peak litani.MemoryPeak
	for _, s := range p.trace {
		if s.RSS > peak.RSS {
			peak.RSS = s.RSS
		}
		if s.VSZ > peak.VSZ {
			peak.VSZ = s.VSZ
		}
	}
	peak.HumanReadableRSS = humanReadable(peak.RSS)
	peak.HumanReadableVSZ = humanReadable(peak.VSZ)
	trace.Peak = &peak
	return trace
}

// humanReadable renders n bytes with humanize.IBytes: below 10 bytes it
// prints "<n> B"; otherwise it picks the largest of B, KiB, MiB, GiB, TiB,
// PiB, EiB in which the value is at least 1 and prints one decimal place
// only when the rounded value is below 10 ("1.5 KiB", but "300 KiB"). The
// value is not capped at 1023: just under a unit boundary it prints as
// "1024 KiB" rather than "1.0 MiB".
func humanReadable(n uint64) string {
	return humanize.IBytes(n)
}

type procRow struct {
	pid, ppid int
	rss, vsz  uint64 // bytes
}

// sampleSubtree runs `ps -x -o pid,ppid,rss,vsz`, parses the resulting
// table (RSS/VSZ reported in KiB, converted to bytes), then does a BFS from
// rootPID through the parent->child edge set, summing RSS and VSZ over
// every descendant.
func sampleSubtree(rootPID int) (rss, vsz uint64, _ error) {
	cmd := exec.Command("ps", "-x", "-o", "pid,ppid,rss,vsz")
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, err
	}

	rows, err := parsePS(string(out))
	if err != nil {
		return 0, 0, err
	}

	children := make(map[int][]procRow)
	byPID := make(map[int]procRow)
	for _, r := range rows {
		children[r.ppid] = append(children[r.ppid], r)
		byPID[r.pid] = r
	}

	var totalRSS, totalVSZ uint64
	queue := []int{rootPID}
	visited := map[int]bool{}
	if root, ok := byPID[rootPID]; ok {
		totalRSS += root.rss
		totalVSZ += root.vsz
	}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		if visited[pid] {
			continue
		}
		visited[pid] = true
		for _, child := range children[pid] {
			if visited[child.pid] {
				continue
			}
			totalRSS += child.rss
			totalVSZ += child.vsz
			queue = append(queue, child.pid)
		}
	}
	return totalRSS, totalVSZ, nil
}

func parsePS(out string) ([]procRow, error) {
	var rows []procRow
	scanner := bufio.NewScanner(strings.NewReader(out))
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			continue // header: "PID PPID RSS VSZ"
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		pid, err1 := strconv.Atoi(fields[0])
		ppid, err2 := strconv.Atoi(fields[1])
		rssKiB, err3 := strconv.ParseUint(fields[2], 10, 64)
		vszKiB, err4 := strconv.ParseUint(fields[3], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		rows = append(rows, procRow{pid: pid, ppid: ppid, rss: rssKiB * 1024, vsz: vszKiB * 1024})
	}
	return rows, scanner.Err()
}
