// Package aggregator joins job shards with per-job status files into a
// single validated run document: sorting, summarizing, and
// schema-validating. distri has no equivalent multi-job run document, so
// the join/sort/status logic below is written directly against the run
// document's invariants.
package aggregator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/jobstore"
	"github.com/litani-build/litani/internal/outcome"
	"github.com/litani-build/litani/internal/schema"
)

// Options configures one aggregation pass.
type Options struct {
	CacheDir    string
	RunID       string
	Project     string
	Stages      []string
	Pools       map[string]int
	StartTime   time.Time
	EndTime     *time.Time // nil while the run is in progress
	Parallelism litani.Parallelism
	Aux         map[string]any
}

// Aggregate reads the fused cache, joins each job with its status file (if
// any), groups jobs into pipelines/stages, sorts, computes statuses, and
// validates the result against the run schema before returning it.
func Aggregate(opts Options) (*litani.Run, error) {
	cache, err := jobstore.ReadCache(opts.CacheDir)
	if err != nil {
		return nil, xerrors.Errorf("read cache: %w", err)
	}

	statuses := make(map[string]litani.JobStatus, len(cache.Jobs))
	for _, j := range cache.Jobs {
		st, err := readStatus(opts.CacheDir, j.JobID)
		if err != nil {
			return nil, xerrors.Errorf("read status %s: %w", j.JobID, err)
		}
		st.Name = j.JobID
		st.CIStage = j.CIStage
		if !st.Complete {
			// An unfinished job still carries its spec, so snapshot readers
			// can see which outputs it has yet to produce.
			st.WrapperArguments = j
		}
		if st.Complete {
			if d, err := computeDuration(st); err == nil {
				st.DurationStr = d
			}
		}
		statuses[j.JobID] = st
	}

	pipelines := groupPipelines(cache.Jobs, statuses, opts.Stages)
	sortPipelines(pipelines)

	pools := opts.Pools
	if pools == nil {
		pools = map[string]int{}
	}
	stages := opts.Stages
	if stages == nil {
		stages = []string{}
	}
	parallelism := opts.Parallelism
	if parallelism.Trace == nil {
		parallelism.Trace = []litani.ParallelismSample{}
	}

	run := &litani.Run{
		RunID:       opts.RunID,
		Project:     opts.Project,
		Stages:      stages,
		Pools:       pools,
		StartTime:   opts.StartTime.UTC().Format(litani.TimeLayoutSeconds),
		Version:     litani.Version(),
		SpecVersion: litani.Version(),
		Parallelism: parallelism,
		Aux:         opts.Aux,
		Pipelines:   pipelines,
	}
	if opts.EndTime != nil {
		run.EndTime = opts.EndTime.UTC().Format(litani.TimeLayoutSeconds)
	}
	run.Status = runStatus(pipelines)

	if err := schema.ValidateRun(run); err != nil {
		return nil, xerrors.Errorf("aggregate: %w", err)
	}
	return run, nil
}

// readStatus reads a job's status file if present; absent means the job
// has not yet started (a crash before the wrapper's first write leaves no
// status file, so it is treated the same as not-started).
func readStatus(cacheDir, jobID string) (litani.JobStatus, error) {
	path := filepath.Join(cacheDir, "status", jobID+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return litani.JobStatus{Complete: false}, nil
		}
		return litani.JobStatus{}, err
	}
	var st litani.JobStatus
	if err := json.Unmarshal(b, &st); err != nil {
		return litani.JobStatus{}, xerrors.Errorf("decode %s: %w", path, err)
	}
	if st.Complete {
		if err := outcome.ValidateOutcomeLabel(st.Outcome); err != nil {
			return litani.JobStatus{}, xerrors.Errorf("%s: %w", path, err)
		}
	}
	return st, nil
}

func groupPipelines(jobs []litani.JobSpec, statuses map[string]litani.JobStatus, stages []string) []litani.Pipeline {
	type pipelineAcc struct {
		byStage map[string][]litani.JobStatus
	}
	byPipeline := make(map[string]*pipelineAcc)
	var pipelineOrder []string

	for _, j := range jobs {
		acc, ok := byPipeline[j.PipelineName]
		if !ok {
			acc = &pipelineAcc{byStage: make(map[string][]litani.JobStatus)}
			byPipeline[j.PipelineName] = acc
			pipelineOrder = append(pipelineOrder, j.PipelineName)
		}
		acc.byStage[j.CIStage] = append(acc.byStage[j.CIStage], statuses[j.JobID])
	}
	sort.Strings(pipelineOrder)

	pipelines := make([]litani.Pipeline, 0, len(pipelineOrder))
	for _, name := range pipelineOrder {
		acc := byPipeline[name]
		ciStages := make([]litani.Stage, 0, len(stages))
		for _, stageName := range stages {
			stageJobs := acc.byStage[stageName]
			sortJobs(stageJobs)
			ciStages = append(ciStages, buildStage(stageName, name, stageJobs))
		}
		pipelines = append(pipelines, litani.Pipeline{
			Name:     name,
			CIStages: ciStages,
			Status:   pipelineStatus(ciStages),
			URL:      filepath.Join("pipelines", name),
		})
	}
	return pipelines
}

// sortJobs totally orders jobs within a stage by (start_time asc, end_time
// asc), with absent start_time sorted to the tail.
func sortJobs(jobs []litani.JobStatus) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.StartTime == "" && b.StartTime != "" {
			return false
		}
		if a.StartTime != "" && b.StartTime == "" {
			return true
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.EndTime < b.EndTime
	})
}

// buildStage computes a stage's status/progress/complete:
// progress = floor(100*complete/total) (0 if empty, in which case
// complete=true); status is fail if any complete job failed, else
// fail_ignored if any is fail_ignored, else success.
func buildStage(name, pipelineName string, jobs []litani.JobStatus) litani.Stage {
	total := len(jobs)
	completeCount := 0
	anyFail, anyFailIgnored := false, false
	for _, j := range jobs {
		if j.Complete {
			completeCount++
			switch j.Outcome {
			case litani.OutcomeFail:
				anyFail = true
			case litani.OutcomeFailIgnored:
				anyFailIgnored = true
			}
		}
	}

	complete := total == 0 || completeCount == total
	progress := 0
	if total > 0 {
		progress = (100 * completeCount) / total
	}

	status := litani.StatusSuccess
	if anyFail {
		status = litani.StatusFail
	} else if anyFailIgnored {
		status = litani.StatusFailIgnored
	}

	if jobs == nil {
		jobs = []litani.JobStatus{}
	}
	return litani.Stage{
		Name:     name,
		Jobs:     jobs,
		Status:   status,
		Progress: progress,
		Complete: complete,
		URL:      filepath.Join("artifacts", pipelineName, name),
	}
}

// pipelineStatus: in_progress while any stage is incomplete; else fail if
// any stage is fail or fail_ignored (fail_ignored is a stage-only
// distinction -- it collapses into fail at the pipeline level); else
// success. A pipeline's status therefore only ever takes one of
// {in_progress, fail, success}.
func pipelineStatus(stages []litani.Stage) litani.Status {
	anyIncomplete := false
	anyFailLike := false
	for _, s := range stages {
		if !s.Complete {
			anyIncomplete = true
		}
		if s.Status == litani.StatusFail || s.Status == litani.StatusFailIgnored {
			anyFailLike = true
		}
	}
	if anyIncomplete {
		return litani.StatusInProgress
	}
	if anyFailLike {
		return litani.StatusFail
	}
	return litani.StatusSuccess
}

// runStatus aggregates pipeline statuses with the same rule as
// pipelineStatus: pipeline status is already one of {in_progress, fail,
// success}, so the run's status is too.
func runStatus(pipelines []litani.Pipeline) litani.Status {
	anyInProgress, anyFail := false, false
	for _, p := range pipelines {
		switch p.Status {
		case litani.StatusInProgress:
			anyInProgress = true
		case litani.StatusFail:
			anyFail = true
		}
	}
	if anyInProgress {
		return litani.StatusInProgress
	}
	if anyFail {
		return litani.StatusFail
	}
	return litani.StatusSuccess
}

// statusRank orders statuses so that sortPipelines can place fail first,
// then in_progress, then success, per spec.md §3's sort rule. Pipeline
// status never takes the fail_ignored value (see pipelineStatus), but the
// rank function tolerates it defensively, ranking it alongside fail.
func statusRank(s litani.Status) int {
	switch s {
	case litani.StatusFail, litani.StatusFailIgnored:
		return 0
	case litani.StatusInProgress:
		return 1
	default:
		return 2
	}
}

func sortPipelines(pipelines []litani.Pipeline) {
	sort.SliceStable(pipelines, func(i, j int) bool {
		return statusRank(pipelines[i].Status) < statusRank(pipelines[j].Status)
	})
}

// computeDuration renders a job's duration as an "HHhMMmSSs"-shaped string
// with leading zero units suppressed.
func computeDuration(st litani.JobStatus) (string, error) {
	d := time.Duration(st.Duration) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s), nil
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s), nil
	default:
		return fmt.Sprintf("%ds", s), nil
	}
}
