// Package dotgraph exports the job dependency graph as Graphviz DOT,
// writing nodes and edges directly from the job list; unlike
// internal/depgraph's cycle pre-check it builds no gonum graph.
package dotgraph

import (
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strings"

	"github.com/litani-build/litani"
)

// Colors are the fill colors used per job outcome, matching the
// dashboard's palette.
const (
	ColorSuccess    = "#90caf9"
	ColorFailIgnored = "#ffecb3"
	ColorFail       = "#ef9a9a"
	ColorIncomplete = "#eceff1"
)

// Write renders jobs (and their file inputs/outputs) as a DOT digraph: one
// node per job, one node per distinct file path, an edge from each input
// file to the job that consumes it and from the job to each file it
// produces. statuses, if non-nil, maps job id to status for node coloring.
func Write(w io.Writer, jobs []litani.JobSpec, statuses map[string]litani.JobStatus) error {
	fmt.Fprintln(w, "digraph litani {")
	fmt.Fprintln(w, "  rankdir=LR;")

	files := make(map[string]bool)
	for _, j := range jobs {
		for _, f := range j.Inputs {
			files[f] = true
		}
		for _, f := range j.Outputs {
			files[f] = true
		}
	}

	var fileList []string
	for f := range files {
		fileList = append(fileList, f)
	}
	sort.Strings(fileList)
	for _, f := range fileList {
		fmt.Fprintf(w, "  %s [label=%s, shape=box];\n", fileNodeID(f), escapeLabel(f))
	}

	sortedJobs := append([]litani.JobSpec(nil), jobs...)
	sort.Slice(sortedJobs, func(i, j int) bool { return sortedJobs[i].JobID < sortedJobs[j].JobID })

	for _, j := range sortedJobs {
		color := jobColor(j.JobID, statuses)
		node := jobNodeID(j.Command)
		fmt.Fprintf(w, "  %s [label=%s, shape=ellipse, style=filled, fillcolor=%q];\n",
			node, escapeLabel(j.Command), color)
		for _, in := range j.Inputs {
			fmt.Fprintf(w, "  %s -> %s;\n", fileNodeID(in), node)
		}
		for _, out := range j.Outputs {
			fmt.Fprintf(w, "  %s -> %s;\n", node, fileNodeID(out))
		}
	}

	fmt.Fprintln(w, "}")
	return nil
}

func jobColor(jobID string, statuses map[string]litani.JobStatus) string {
	st, ok := statuses[jobID]
	if !ok || !st.Complete {
		return ColorIncomplete
	}
	switch st.Outcome {
	case litani.OutcomeFail:
		return ColorFail
	case litani.OutcomeFailIgnored:
		return ColorFailIgnored
	default:
		return ColorSuccess
	}
}

// jobNodeID and fileNodeID derive a node's DOT identifier from the hash of
// its command string or file path respectively, per the graph exporter's
// node-identity rule -- two jobs that happen to share a job_id prefix, or
// two paths that only differ in punctuation, still get distinct ids, which
// a naive character-substitution scheme does not guarantee.
func jobNodeID(command string) string { return "job_" + hashID(command) }
func fileNodeID(path string) string   { return "file_" + hashID(path) }

func hashID(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum64())
}

// escapeLabel quotes s as a DOT string label, escaping the two characters
// that are otherwise significant inside a quoted DOT attribute value: the
// closing quote and the statement terminator. Plain DOT-attribute escaping
// is used here rather than HTML-like labels, since nothing downstream in
// litani parses HTML-table labels.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, ";", `\;`)
	return `"` + s + `"`
}
