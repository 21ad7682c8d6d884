// Package capabilities enumerates the fixed set of feature tags this
// litani build supports, for the print-capabilities verb: callers that
// drive litani as a library (e.g. a CI wrapper script) use this to detect
// features without version-string parsing.
package capabilities

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tags is the fixed set of feature tags this build reports.
var Tags = []string{
	"atomic_report_update",
	"pools",
	"memory_profile",
	"phony_outputs",
	"dump_run",
	"outcome_table",
	"parallelism_metric",
	"aux",
	"output_directory_flags",
	"report_expire",
	"dir_lock_api_v2",
}

// descriptions gives the one-line human-readable description printed next
// to each tag by -human-readable. Every entry in Tags must have one.
var descriptions = map[string]string{
	"atomic_report_update":  "report publication is atomic: readers never see a partially-rendered tree",
	"pools":                 "named concurrency pools cap how many jobs of a kind run at once",
	"memory_profile":        "jobs can be profiled for peak RSS/VSZ across their process subtree",
	"phony_outputs":         "declared outputs may be marked tolerant of being absent after the job runs",
	"dump_run":              "an in-progress run's state can be snapshotted without stopping it",
	"outcome_table":         "a job's success/fail/fail_ignored classification is table-driven, not just its return code",
	"parallelism_metric":    "the run records a time-series trace of concurrent job counts",
	"aux":                   "the run document carries an opaque caller-supplied aux dict",
	"output_directory_flags": "directory outputs are copied recursively into the artifact tree",
	"report_expire":         "superseded report directories are marked expired and garbage collected",
	"dir_lock_api_v2":       "directory locking is unlink(2)-based and survives process death",
}

// JSON returns Tags as a machine-readable JSON array.
func JSON() (string, error) {
	b, err := json.Marshal(Tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Table renders Tags as a human-readable, aligned "tag: description" table.
func Table() string {
	sorted := append([]string(nil), Tags...)
	sort.Strings(sorted)
	width := 0
	for _, t := range sorted {
		if len(t) > width {
			width = len(t)
		}
	}
	var b strings.Builder
	for _, t := range sorted {
		fmt.Fprintf(&b, "%-*s: %s\n", width, t, descriptions[t])
	}
	return b.String()
}
