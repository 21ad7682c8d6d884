package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/outcome"
	"github.com/litani-build/litani/internal/wrapper"
)

// cmdExec is the job rule's invocation target: "litani exec <job-id>",
// spawned once per Ninja build edge.
func cmdExec(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	cacheDir := fs.String("cache-dir", "", "cache directory (default: discovered via .litani_cache_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return xerrors.New("exec: expected exactly one job id argument")
	}
	jobID := fs.Arg(0)

	dir, err := findCacheDir(*cacheDir)
	if err != nil {
		return xerrors.Errorf("exec: %w", err)
	}

	spec, err := readJobShard(dir, jobID)
	if err != nil {
		return xerrors.Errorf("exec %s: %w", jobID, err)
	}

	var table *litani.OutcomeTable
	if spec.OutcomeTable != "" {
		table, err = outcome.LoadFile(spec.OutcomeTable)
		if err != nil {
			return xerrors.Errorf("exec %s: %w", jobID, err)
		}
	}

	exitCode, err := wrapper.Run(ctx, wrapper.Options{CacheDir: dir, Spec: spec, Table: table})
	if err != nil {
		return xerrors.Errorf("exec %s: %w", jobID, err)
	}
	os.Exit(exitCode)
	return nil
}

func readJobShard(cacheDir, jobID string) (litani.JobSpec, error) {
	b, err := os.ReadFile(filepath.Join(cacheDir, "jobs", jobID+".json"))
	if err != nil {
		return litani.JobSpec{}, err
	}
	var spec litani.JobSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return litani.JobSpec{}, err
	}
	return spec, nil
}
