package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/dumprun"
)

// cmdDumpRun implements the client side of the dump-run protocol: signal
// the run-build process and poll for a consistent snapshot.
func cmdDumpRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dump-run", flag.ExitOnError)
	cacheDir := fs.String("cache-dir", "", "cache directory (default: discovered via .litani_cache_dir)")
	retries := fs.Int("retries", 0, "maximum poll attempts, 0 means unbounded")
	var inputs stringSliceFlag
	fs.Var(&inputs, "input", "a declared input of the caller's job, for the consistency check (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := findCacheDir(*cacheDir)
	if err != nil {
		return err
	}

	callerJobID := os.Getenv(litani.EnvJobID)
	callerInputs := []string(inputs)
	if callerJobID != "" && len(callerInputs) == 0 {
		// dump-run is itself usually invoked as a job's command: look up
		// that job's own declared inputs for the consistency check rather
		// than requiring every caller to repeat them via -input.
		if spec, err := readJobShard(dir, callerJobID); err == nil {
			callerInputs = spec.Inputs
		}
	}

	run, err := dumprun.Dump(dumprun.Request{
		CacheDir:     dir,
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   2.0,
		MaxRetries:   *retries,
		CallerJobID:  callerJobID,
		CallerInputs: callerInputs,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if run == nil {
		return enc.Encode(nil)
	}
	return enc.Encode(run)
}
