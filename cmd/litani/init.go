package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/litani-build/litani/internal/cachepath"
	"github.com/litani-build/litani/internal/jobstore"
)

func cmdInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	cacheDir := fs.String("cache-dir", "", "directory to use as the cache directory (default: ./.litani_cache)")
	project := fs.String("project", "", "project name stamped into the run document")
	stages := fs.String("stages", "", "comma-separated ordered list of ci_stage names")
	pools := fs.String("pools", "", "comma-separated name:depth pool declarations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return xerrors.Errorf("getwd: %w", err)
	}

	dir := *cacheDir
	if dir == "" {
		dir = filepath.Join(wd, ".litani_cache")
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return xerrors.Errorf("abs: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return xerrors.Errorf("mkdir %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "jobs"), 0755); err != nil {
		return xerrors.Errorf("mkdir jobs: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "status"), 0755); err != nil {
		return xerrors.Errorf("mkdir status: %w", err)
	}

	var stageList []string
	if *stages != "" {
		stageList = strings.Split(*stages, ",")
	}
	poolMap, err := parsePools(*pools)
	if err != nil {
		return xerrors.Errorf("init: %w", err)
	}

	if err := jobstore.InitSkeleton(dir, *project, stageList, poolMap); err != nil {
		return xerrors.Errorf("write cache.json: %w", err)
	}

	if err := cachepath.WritePointer(wd, dir); err != nil {
		return xerrors.Errorf("write pointer: %w", err)
	}

	return nil
}

// parsePools parses a comma-separated "name:depth,name:depth" list into a
// name->depth map, as in --pools foo-pool:1,bar-pool:4.
func parsePools(s string) (map[string]int, error) {
	if s == "" {
		return nil, nil
	}
	pools := make(map[string]int)
	for _, entry := range strings.Split(s, ",") {
		name, depthStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, xerrors.Errorf("malformed pool entry %q, want name:depth", entry)
		}
		depth, err := strconv.Atoi(depthStr)
		if err != nil {
			return nil, xerrors.Errorf("pool %q: %w", name, err)
		}
		pools[name] = depth
	}
	return pools, nil
}
