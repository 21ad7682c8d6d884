// Package report implements the report publisher: renders a run document
// plus supporting artifacts into a fresh, uuid-named
// directory under report_data/, atomically swaps the <cache>/html symlink
// to point at it, expires the previous report directory, and runs a
// best-effort garbage collection pass over stale ones. The lock/expire
// protocol is internal/lockdir's; the atomic symlink swap is grounded on
// cmd/distri/build.go's renameio.Symlink use for publishing metadata.
package report

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/atomicfile"
	"github.com/litani-build/litani/internal/dotgraph"
	"github.com/litani-build/litani/internal/lockdir"
)

const (
	reportDataDirName = "report_data"
	htmlLinkName      = "html"
)

// Options configures one Publish call.
type Options struct {
	CacheDir string
	Run      *litani.Run
	Jobs     []litani.JobSpec
}

// Publish renders run into a fresh report_data/<uuid> directory and
// atomically republishes <cache>/html to point at it.
func Publish(opts Options) error {
	reportDataDir := filepath.Join(opts.CacheDir, reportDataDirName)
	if err := os.MkdirAll(reportDataDir, 0755); err != nil {
		return xerrors.Errorf("mkdir %s: %w", reportDataDir, err)
	}

	id := uuid.New().String()
	dir := filepath.Join(reportDataDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return xerrors.Errorf("mkdir %s: %w", dir, err)
	}

	ld := lockdir.New(dir)
	if err := ld.Init(); err != nil {
		return xerrors.Errorf("init lock %s: %w", dir, err)
	}
	// Release is idempotent (it just (re)creates the sentinel file), so this
	// deferred call is a safety net for render/symlink failures below: without
	// it, a report directory that errors out mid-publish stays locked forever
	// and GC's TryAcquire would skip it on every future run.
	defer ld.Release()

	if err := render(dir, opts); err != nil {
		return xerrors.Errorf("render %s: %w", dir, err)
	}

	htmlLink := filepath.Join(opts.CacheDir, htmlLinkName)
	oldTarget, _ := os.Readlink(htmlLink) // ignore error: no previous report is not an error

	if err := atomicfile.Symlink(dir, htmlLink); err != nil {
		return xerrors.Errorf("publish %s: %w", htmlLink, err)
	}

	if err := ld.Release(); err != nil {
		return xerrors.Errorf("release lock %s: %w", dir, err)
	}

	if oldTarget != "" && oldTarget != dir {
		if err := lockdir.New(oldTarget).Expire(); err != nil && !os.IsNotExist(err) {
			return xerrors.Errorf("expire %s: %w", oldTarget, err)
		}
	}

	return GC(reportDataDir)
}

// render writes run.json, the bucketed parallelism trace, per-stats-group
// job data, the dependency-graph DOT source, and a copy of each job's
// declared artifacts into dir.
func render(dir string, opts Options) error {
	opts.Run.ReportArchivePath = os.Getenv(litani.EnvReportArchivePath)

	if err := atomicfile.WriteJSON(filepath.Join(dir, "run.json"), opts.Run); err != nil {
		return xerrors.Errorf("write run.json: %w", err)
	}

	buckets := BucketParallelism(opts.Run.Parallelism)
	if err := atomicfile.WriteJSON(filepath.Join(dir, "parallelism.json"), buckets); err != nil {
		return xerrors.Errorf("write parallelism.json: %w", err)
	}

	groups := GroupByStatsTag(opts.Jobs)
	if err := atomicfile.WriteJSON(filepath.Join(dir, "stats.json"), groups); err != nil {
		return xerrors.Errorf("write stats.json: %w", err)
	}

	statuses := make(map[string]litani.JobStatus)
	for _, p := range opts.Run.Pipelines {
		for _, s := range p.CIStages {
			for _, j := range s.Jobs {
				if j.Name != "" {
					statuses[j.Name] = j
				}
			}
		}
	}

	dotPath := filepath.Join(dir, "graph.dot")
	dotFile, err := os.Create(dotPath)
	if err != nil {
		return xerrors.Errorf("create %s: %w", dotPath, err)
	}
	defer dotFile.Close()
	if err := dotgraph.Write(dotFile, opts.Jobs, statuses); err != nil {
		return xerrors.Errorf("write graph: %w", err)
	}

	artifactsSrc := filepath.Join(opts.CacheDir, "artifacts")
	if _, err := os.Stat(artifactsSrc); err == nil {
		if err := copyTree(artifactsSrc, filepath.Join(dir, "artifacts")); err != nil {
			return xerrors.Errorf("copy artifacts: %w", err)
		}
	}

	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return atomicfile.WriteFile(target, data, info.Mode())
	})
}

// GC scans reportDataDir for expired, unlocked report directories and
// removes them: each candidate is probed with a non-blocking lock
// acquisition (TryAcquire) so a directory mid-publish is never touched; if
// acquisition succeeds and the directory is marked expired, it is removed,
// else the lock is released again.
func GC(reportDataDir string) error {
	entries, err := os.ReadDir(reportDataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("read %s: %w", reportDataDir, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(reportDataDir, e.Name())
		ld := lockdir.New(dir)
		if err := ld.TryAcquire(); err != nil {
			continue // held by a concurrent publish or reader
		}
		if ld.IsExpired() {
			if err := os.RemoveAll(dir); err != nil {
				return xerrors.Errorf("remove %s: %w", dir, err)
			}
			continue
		}
		if err := ld.Release(); err != nil {
			return xerrors.Errorf("release %s: %w", dir, err)
		}
	}
	return nil
}

// BucketParallelism downsamples a parallelism trace to one sample per
// second, taking min(finished) and max(running, total) within each bucket,
// for compact dashboard rendering.
func BucketParallelism(p litani.Parallelism) []litani.ParallelismSample {
	if len(p.Trace) == 0 {
		return nil
	}
	buckets := make(map[int64]*litani.ParallelismSample)
	var seconds []int64
	for _, s := range p.Trace {
		sec := s.TimeMillis / 1000
		b, ok := buckets[sec]
		if !ok {
			cp := s
			buckets[sec] = &cp
			seconds = append(seconds, sec)
			continue
		}
		if s.Finished < b.Finished {
			b.Finished = s.Finished
		}
		if s.Running > b.Running {
			b.Running = s.Running
		}
		if s.Total > b.Total {
			b.Total = s.Total
		}
	}
	sort.Slice(seconds, func(i, j int) bool { return seconds[i] < seconds[j] })
	out := make([]litani.ParallelismSample, 0, len(seconds))
	for _, sec := range seconds {
		out = append(out, *buckets[sec])
	}
	return out
}

// statsGroupTagPrefix marks a job tag as contributing to a named
// cross-pipeline statistics group, e.g. "stats-group:build".
const statsGroupTagPrefix = "stats-group:"

// GroupByStatsTag collects jobs sharing a stats-group:<name> tag. Groups
// with fewer than two members are dropped: a singleton group carries no
// comparative information.
func GroupByStatsTag(jobs []litani.JobSpec) map[string][]litani.JobSpec {
	groups := make(map[string][]litani.JobSpec)
	for _, j := range jobs {
		for _, tag := range j.Tags {
			if len(tag) > len(statsGroupTagPrefix) && tag[:len(statsGroupTagPrefix)] == statsGroupTagPrefix {
				name := tag[len(statsGroupTagPrefix):]
				groups[name] = append(groups[name], j)
			}
		}
	}
	for name, members := range groups {
		if len(members) < 2 {
			delete(groups, name)
		}
	}
	return groups
}
