// Package jobstore implements the per-job JSON shards and the aggregated
// job cache: add-job writes one shard per invocation; only run-build
// enumerates the shards and fuses them into cache.json. Because every
// shard is a distinct file, concurrent add-job invocations never conflict,
// mirroring internal/batch/batch.go's per-package build.textproto layout
// (one file per package, enumerated with ioutil.ReadDir) but fused into a
// single cache instead of read independently by each worker.
package jobstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/atomicfile"
	"github.com/litani-build/litani/internal/schema"
)

const (
	jobsDirName  = "jobs"
	cacheFile    = "cache.json"
)

// Cache is the fused job cache written by run-build at the start of a run.
type Cache struct {
	Project string           `json:"project"`
	Stages  []string         `json:"stages"`
	Pools   map[string]int   `json:"pools"`
	Version string           `json:"litani_version"`
	Jobs    []litani.JobSpec `json:"jobs"`
}

func jobsDir(cacheDir string) string { return filepath.Join(cacheDir, jobsDirName) }

func shardPath(cacheDir, jobID string) string {
	return filepath.Join(jobsDir(cacheDir), jobID+".json")
}

// AddJob validates spec against the job schema and writes its shard. Every
// job_id owns exactly one shard; writing the same job_id twice overwrites
// the previous shard. Neither AddJob nor the add-job CLI frontend checks
// job_id uniqueness across the run, since shards are written independently;
// FuseCache rejects shards that carry the same job_id.
func AddJob(cacheDir string, spec litani.JobSpec) error {
	if err := schema.ValidateJob(spec); err != nil {
		return xerrors.Errorf("add-job %s: %w", spec.JobID, err)
	}
	return atomicfile.WriteJSON(shardPath(cacheDir, spec.JobID), spec)
}

// InitSkeleton writes the cache.json skeleton `litani init` creates:
// project/stages/pools fixed for the run's lifetime, with an empty job
// list -- jobs are only added into it by FuseCache, once, at run-build
// start.
func InitSkeleton(cacheDir, project string, stages []string, pools map[string]int) error {
	if stages == nil {
		stages = []string{}
	}
	if pools == nil {
		pools = map[string]int{}
	}
	cache := &Cache{Project: project, Stages: stages, Pools: pools, Version: litani.Version(), Jobs: []litani.JobSpec{}}
	return atomicfile.WriteJSON(filepath.Join(cacheDir, cacheFile), cache)
}

// FuseCache enumerates every shard under <cache>/jobs and atomically
// rewrites <cache>/cache.json with the union, preserving the
// project/stages/pools recorded by `litani init`. Only run-build calls
// this, and it does so exactly once per run. A nonempty project/stages/
// pools argument overrides the skeleton's, for callers that never ran
// init (e.g. tests).
func FuseCache(cacheDir, project string, stages []string, pools map[string]int) (*Cache, error) {
	version := litani.Version()
	if skeleton, err := ReadCache(cacheDir); err == nil {
		if project == "" {
			project = skeleton.Project
		}
		if stages == nil {
			stages = skeleton.Stages
		}
		if pools == nil {
			pools = skeleton.Pools
		}
		if skeleton.Version != "" && litani.NewerVersion(skeleton.Version, version) {
			return nil, xerrors.Errorf(
				"cache directory %s was initialized by litani %s, which is newer than this binary (%s)",
				cacheDir, skeleton.Version, version)
		}
	}

	entries, err := os.ReadDir(jobsDir(cacheDir))
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return nil, xerrors.Errorf("read %s: %w", jobsDir(cacheDir), err)
		}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names) // shard enumeration order is otherwise nondeterministic

	jobs := make([]litani.JobSpec, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(jobsDir(cacheDir), name))
		if err != nil {
			return nil, xerrors.Errorf("read shard %s: %w", name, err)
		}
		var spec litani.JobSpec
		if err := json.Unmarshal(b, &spec); err != nil {
			return nil, xerrors.Errorf("decode shard %s: %w", name, err)
		}
		if seen[spec.JobID] {
			return nil, xerrors.Errorf("duplicate job_id %q", spec.JobID)
		}
		seen[spec.JobID] = true
		jobs = append(jobs, spec)
	}

	cache := &Cache{Project: project, Stages: stages, Pools: pools, Version: version, Jobs: jobs}
	if err := atomicfile.WriteJSON(filepath.Join(cacheDir, cacheFile), cache); err != nil {
		return nil, xerrors.Errorf("fuse cache: %w", err)
	}
	return cache, nil
}

// ReadCache reads back the fused cache written by FuseCache.
func ReadCache(cacheDir string) (*Cache, error) {
	b, err := os.ReadFile(filepath.Join(cacheDir, cacheFile))
	if err != nil {
		return nil, xerrors.Errorf("read cache: %w", err)
	}
	var c Cache
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, xerrors.Errorf("decode cache: %w", err)
	}
	return &c, nil
}
