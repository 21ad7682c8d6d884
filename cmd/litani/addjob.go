package main

import (
	"context"
	"flag"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/jobstore"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return "" }
func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdAddJob(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-job", flag.ExitOnError)
	cacheDir := fs.String("cache-dir", "", "cache directory (default: discovered via .litani_cache_dir)")
	jobID := fs.String("job-id", "", "unique identifier for this job")
	command := fs.String("command", "", "shell command to execute")
	pipelineName := fs.String("pipeline-name", "", "pipeline this job belongs to")
	ciStage := fs.String("ci-stage", "", "stage within the pipeline this job belongs to")
	description := fs.String("description", "", "human-readable description")
	pool := fs.String("pool", "", "named concurrency pool")
	outcomeTable := fs.String("outcome-table", "", "path to a JSON or YAML outcome table")
	timeout := fs.Int("timeout", 0, "kill the job after this many seconds (0 = no timeout)")
	timeoutOk := fs.Bool("timeout-ok", false, "treat a timeout as success")
	timeoutIgnore := fs.Bool("timeout-ignore", false, "treat a timeout as fail_ignored")
	interleave := fs.Bool("interleave-stdout-stderr", false, "merge stderr into stdout")
	profileMemory := fs.Bool("profile-memory", false, "sample the job's process-tree memory usage")
	verbose := fs.Bool("verbose", false, "print this job's stdout/stderr as it runs")
	veryVerbose := fs.Bool("very-verbose", false, "print this job's command line plus stdout/stderr as it runs")

	var inputs, outputs, phonyOutputs, tags stringSliceFlag
	fs.Var(&inputs, "inputs", "declared input path (repeatable)")
	fs.Var(&outputs, "outputs", "declared output path (repeatable)")
	fs.Var(&phonyOutputs, "phony-outputs", "output path tolerated to be missing (repeatable; each phony output must be named)")
	fs.Var(&tags, "tags", "arbitrary tag, e.g. stats-group:<name> (repeatable)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := findCacheDir(*cacheDir)
	if err != nil {
		return xerrors.Errorf("add-job: %w", err)
	}
	if *jobID == "" || *command == "" || *pipelineName == "" || *ciStage == "" {
		return xerrors.New("add-job: -job-id, -command, -pipeline-name and -ci-stage are required")
	}

	spec := litani.JobSpec{
		JobID:                  *jobID,
		Command:                *command,
		PipelineName:           *pipelineName,
		CIStage:                *ciStage,
		Inputs:                 inputs,
		Outputs:                outputs,
		Description:            *description,
		Pool:                   *pool,
		Tags:                   tags,
		Timeout:                *timeout,
		OutcomeTable:           *outcomeTable,
		PhonyOutputs:           phonyOutputs,
		TimeoutOk:              *timeoutOk,
		TimeoutIgnore:          *timeoutIgnore,
		InterleaveStdoutStderr: *interleave,
		ProfileMemory:          *profileMemory,
		Verbose:                *verbose,
		VeryVerbose:            *veryVerbose,
	}

	return jobstore.AddJob(dir, spec)
}
