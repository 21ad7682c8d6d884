package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/aggregator"
	"github.com/litani-build/litani/internal/depgraph"
	"github.com/litani-build/litani/internal/driver"
	"github.com/litani-build/litani/internal/dumprun"
	"github.com/litani-build/litani/internal/jobstore"
	"github.com/litani-build/litani/internal/report"
)

// cmdRunBuild fuses the recorded job shards, materializes the Ninja build
// file, drives the scheduler, aggregates the result into a run document,
// and publishes it as a report.
func cmdRunBuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run-build", flag.ExitOnError)
	cacheDir := fs.String("cache-dir", "", "cache directory (default: discovered via .litani_cache_dir)")
	project := fs.String("project", "", "override the project name recorded by init (default: use init's)")
	stages := fs.String("stages", "", "override the ci_stage list recorded by init (default: use init's)")
	parallelism := fs.Int("parallelism", 0, "ninja -j value, 0 lets ninja choose")
	dryRun := fs.Bool("dry-run", false, "pass -n to ninja: report what would run without running it")
	ninjaPath := fs.String("ninja-path", "ninja", "path to the ninja binary")
	readyFD := fs.Int("ready-fd", -1, "file descriptor to signal readiness on, for test harnesses")
	pipelines := fs.String("pipelines", "", "comma-separated subset of pipeline names to build (default: all)")
	ciStage := fs.String("ci-stage", "", "build only this ci_stage's jobs and the jobs they depend on (default: all stages)")
	aux := fs.String("aux", "", "opaque JSON object stamped into the run document's aux field")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := findCacheDir(*cacheDir)
	if err != nil {
		return xerrors.Errorf("run-build: %w", err)
	}

	auxMap, err := parseAux(*aux)
	if err != nil {
		return xerrors.Errorf("run-build: %w", err)
	}

	var stageList []string
	if *stages != "" {
		stageList = strings.Split(*stages, ",")
	}

	cache, err := jobstore.FuseCache(dir, *project, stageList, nil)
	if err != nil {
		return xerrors.Errorf("run-build: %w", err)
	}

	ninjaFile := filepath.Join(dir, "build.ninja")
	wrapperPath, err := os.Executable()
	if err != nil {
		return xerrors.Errorf("run-build: %w", err)
	}
	if err := depgraph.MaterializeFile(ninjaFile, cache.Jobs, cache.Stages, cache.Pools, wrapperPath); err != nil {
		return xerrors.Errorf("run-build: %w", err)
	}

	start := time.Now()

	var runResult *litani.Run
	aggregate := func() (*litani.Run, error) {
		return aggregator.Aggregate(aggregator.Options{
			CacheDir:  dir,
			RunID:     filepath.Base(dir),
			Project:   cache.Project,
			Stages:    cache.Stages,
			Pools:     cache.Pools,
			StartTime: start,
			Aux:       auxMap,
		})
	}

	writer, err := dumprun.NewWriter(dir, aggregate)
	if err != nil {
		return xerrors.Errorf("run-build: %w", err)
	}
	defer writer.Stop()

	if *readyFD >= 0 {
		f := os.NewFile(uintptr(*readyFD), "ready")
		if f != nil {
			f.Write([]byte("\n"))
			f.Close()
		}
	}

	targets := buildTargets(*pipelines, *ciStage)
	result, runErr := driver.Run(ctx, driver.Options{
		NinjaPath:   *ninjaPath,
		NinjaFile:   ninjaFile,
		Parallelism: *parallelism,
		DryRun:      *dryRun,
		Targets:     targets,
	})
	if runErr != nil {
		return xerrors.Errorf("run-build: %w", runErr)
	}

	end := time.Now()
	runResult, err = aggregator.Aggregate(aggregator.Options{
		CacheDir:    dir,
		RunID:       filepath.Base(dir),
		Project:     cache.Project,
		Stages:      cache.Stages,
		Pools:       cache.Pools,
		StartTime:   start,
		EndTime:     &end,
		Parallelism: result.Parallelism,
		Aux:         auxMap,
	})
	if err != nil {
		return xerrors.Errorf("run-build: aggregate: %w", err)
	}

	if err := report.Publish(report.Options{CacheDir: dir, Run: runResult, Jobs: cache.Jobs}); err != nil {
		return xerrors.Errorf("run-build: publish: %w", err)
	}

	if result.ExitCode != 0 || runResult.Status == litani.StatusFail {
		os.Exit(1)
	}
	return nil
}

// parseAux decodes the -aux flag's JSON object into the opaque dict
// litani.Run.Aux carries through to the published run document. An empty
// string yields a nil map, which omits the field entirely.
func parseAux(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, xerrors.Errorf("-aux: %w", err)
	}
	return m, nil
}

// buildTargets narrows the Ninja target set per --pipelines/--ci-stage: a
// nonempty --pipelines list selects the named pipelines' phony targets
// (__litani_pipeline_name_*); otherwise --ci-stage alone selects that
// stage's phony target (__litani_ci_stage_*) across every pipeline. With
// neither set, the default target depends on every job.
func buildTargets(pipelines, ciStage string) []string {
	if pipelines != "" {
		names := strings.Split(pipelines, ",")
		targets := make([]string, 0, len(names))
		for _, n := range names {
			targets = append(targets, "__litani_pipeline_name_"+n)
		}
		return targets
	}
	if ciStage != "" {
		return []string{"__litani_ci_stage_" + ciStage}
	}
	return []string{depgraph.DefaultTarget}
}
