package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/dotgraph"
	"github.com/litani-build/litani/internal/jobstore"
)

// cmdPrintGraph exports the job dependency graph as DOT.
func cmdPrintGraph(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("print-graph", flag.ExitOnError)
	cacheDir := fs.String("cache-dir", "", "cache directory (default: discovered via .litani_cache_dir)")
	out := fs.String("out", "", "write DOT to this path instead of stdout")
	pipelines := fs.String("pipelines", "", "comma-separated subset of pipeline names to include (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := findCacheDir(*cacheDir)
	if err != nil {
		return xerrors.Errorf("print-graph: %w", err)
	}

	cache, err := jobstore.ReadCache(dir)
	if err != nil {
		return xerrors.Errorf("print-graph: %w", err)
	}

	jobs := cache.Jobs
	if *pipelines != "" {
		wanted := make(map[string]bool)
		for _, p := range strings.Split(*pipelines, ",") {
			wanted[p] = true
		}
		filtered := make([]litani.JobSpec, 0, len(jobs))
		for _, j := range jobs {
			if wanted[j.PipelineName] {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return xerrors.Errorf("print-graph: %w", err)
		}
		defer f.Close()
		w = f
	}

	return dotgraph.Write(w, jobs, nil)
}
