// Command litani orchestrates a CI pipeline's jobs: add-job records one
// job's spec, run-build schedules every recorded job with Ninja and
// publishes a report, exec runs a single job under the wrapper, dump-run
// snapshots an in-progress run, print-graph exports the dependency graph,
// and print-capabilities lists supported feature tags. Verb dispatch is
// grounded on cmd/distri/distri.go's flat "verbs map[string]cmd" table.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/cachepath"
)

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

func funcmain() error {
	verbs := map[string]cmd{
		"init":               {cmdInit},
		"add-job":            {cmdAddJob},
		"run-build":          {cmdRunBuild},
		"exec":               {cmdExec},
		"dump-run":           {cmdDumpRun},
		"print-graph":        {cmdPrintGraph},
		"print-capabilities": {cmdPrintCapabilities},
	}

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "litani <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "\tinit                - create a cache directory for a new set of runs\n")
		fmt.Fprintf(os.Stderr, "\tadd-job             - record one job to be run\n")
		fmt.Fprintf(os.Stderr, "\trun-build           - schedule and execute every recorded job\n")
		fmt.Fprintf(os.Stderr, "\texec                - run a single job under the wrapper (internal)\n")
		fmt.Fprintf(os.Stderr, "\tdump-run            - snapshot the state of an in-progress run\n")
		fmt.Fprintf(os.Stderr, "\tprint-graph         - export the job dependency graph as DOT\n")
		fmt.Fprintf(os.Stderr, "\tprint-capabilities  - list feature tags this build supports\n")
		os.Exit(2)
	}

	verb, rest := args[0], args[1:]
	v, ok := verbs[verb]
	if !ok {
		return fmt.Errorf("unknown command %q", verb)
	}

	ctx, canc := litani.InterruptibleContext()
	defer canc()

	if err := v.fn(ctx, rest); err != nil {
		return fmt.Errorf("%s: %w", verb, err)
	}
	return litani.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// findCacheDir resolves the cache directory either from -cache-dir or by
// walking up from the working directory for the .litani_cache_dir
// pointer file.
func findCacheDir(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return cachepath.Find(wd)
}
