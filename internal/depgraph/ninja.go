// Package depgraph materializes the fused job cache into a Ninja build
// file: one build edge per job, phony targets for stages and
// pipelines, and pool declarations capping named concurrency groups. The
// template-based generation and atomic-rename publication is grounded
// directly on cmd/zi/ninja.go and cmd/distri/ninja.go's ninjaTmpl.Execute
// pattern; internal DAG bookkeeping (cycle pre-check, ahead of handing the
// graph to Ninja) is grounded on internal/batch/batch.go's
// gonum.org/v1/gonum/graph/simple usage.
package depgraph

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/litani-build/litani"
)

// DefaultTarget is the Ninja default target depending on every job.
const DefaultTarget = "everything"

const ninjaTemplate = `
{{ range $name, $depth := .Pools }}
pool {{ $name }}
  depth = {{ $depth }}
{{ end }}

rule job
  command = {{ .WrapperCommand }} exec $job_id
  description = litani $job_id

{{ range .Jobs }}
build {{ .Outputs }}: job {{ .Inputs }}
  job_id = {{ .JobID }}
{{ if .Pool }}  pool = {{ .Pool }}
{{ end }}{{ end }}
{{ range .StageTargets }}
build __litani_ci_stage_{{ .Name }}: phony {{ .Deps }}
{{ end }}
{{ range .PipelineTargets }}
build __litani_pipeline_name_{{ .Name }}: phony {{ .Deps }}
{{ end }}

build ` + DefaultTarget + `: phony {{ .AllTargets }}

default ` + DefaultTarget + `
`

var ninjaTmpl = template.Must(template.New("build.ninja").Parse(ninjaTemplate))

type jobEntry struct {
	JobID   string
	Inputs  string
	Outputs string
	Pool    string
}

type namedDeps struct {
	Name string
	Deps string
}

// jobTarget returns the string Ninja target(s) for a job: its declared
// outputs if any, or else a synthetic phony target so jobs without file
// outputs are still schedulable nodes.
func jobTarget(j litani.JobSpec) string {
	if len(j.Outputs) == 0 {
		return phonyJobTarget(j.JobID)
	}
	return strings.Join(j.Outputs, " ")
}

func phonyJobTarget(jobID string) string {
	return "__litani_job_" + jobID
}

// Materialize renders jobs (plus stages, in declared order, and pools) into
// a Ninja build file written to w. wrapperCommand is the
// executable invoked by the "job" rule, e.g. "litani" so the rule runs
// "litani exec $job_id".
func Materialize(w io.Writer, jobs []litani.JobSpec, stages []string, pools map[string]int, wrapperCommand string) error {
	if err := checkCycles(jobs); err != nil {
		return err
	}

	entries := make([]jobEntry, 0, len(jobs))
	for _, j := range jobs {
		entries = append(entries, jobEntry{
			JobID:   j.JobID,
			Inputs:  strings.Join(j.Inputs, " "),
			Outputs: jobTarget(j),
			Pool:    j.Pool,
		})
	}

	byStage := make(map[string][]string)
	byPipeline := make(map[string][]string)
	var allTargets []string
	for _, j := range jobs {
		t := jobTarget(j)
		allTargets = append(allTargets, t)
		byStage[j.CIStage] = append(byStage[j.CIStage], t)
		byPipeline[j.PipelineName] = append(byPipeline[j.PipelineName], t)
	}

	stageTargets := make([]namedDeps, 0, len(stages))
	for _, s := range stages {
		stageTargets = append(stageTargets, namedDeps{Name: s, Deps: strings.Join(byStage[s], " ")})
	}

	var pipelineNames []string
	for name := range byPipeline {
		pipelineNames = append(pipelineNames, name)
	}
	sort.Strings(pipelineNames)
	pipelineTargets := make([]namedDeps, 0, len(pipelineNames))
	for _, name := range pipelineNames {
		pipelineTargets = append(pipelineTargets, namedDeps{Name: name, Deps: strings.Join(byPipeline[name], " ")})
	}

	return ninjaTmpl.Execute(w, struct {
		Pools           map[string]int
		Jobs            []jobEntry
		StageTargets    []namedDeps
		PipelineTargets []namedDeps
		AllTargets      string
		WrapperCommand  string
	}{
		Pools:           pools,
		Jobs:            entries,
		StageTargets:    stageTargets,
		PipelineTargets: pipelineTargets,
		AllTargets:      strings.Join(allTargets, " "),
		WrapperCommand:  wrapperCommand,
	})
}

// checkCycles builds a job-dependency graph (an edge from job A to job B
// when B declares an input that A declares as an output) and rejects
// cycles before handing the result to Ninja, which would otherwise report
// a less specific diagnostic. Grounded on internal/batch/batch.go's
// simple.NewDirectedGraph/topo.Sort cycle-breaking logic, used here to
// detect rather than silently break cycles -- litani has no bootstrap
// concept to fall back on.
func checkCycles(jobs []litani.JobSpec) error {
	g := simple.NewDirectedGraph()
	idByJob := make(map[string]int64, len(jobs))
	for idx, j := range jobs {
		idByJob[j.JobID] = int64(idx)
		g.AddNode(simple.Node(int64(idx)))
	}

	producedBy := make(map[string]string) // output path -> job id
	for _, j := range jobs {
		for _, out := range j.Outputs {
			producedBy[out] = j.JobID
		}
	}

	for _, j := range jobs {
		for _, in := range j.Inputs {
			producer, ok := producedBy[in]
			if !ok || producer == j.JobID {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(idByJob[producer]), simple.Node(idByJob[j.JobID])))
		}
	}

	if _, err := topo.Sort(g); err != nil {
		return xerrors.Errorf("job graph has a cycle: %w", err)
	}
	return nil
}

// MaterializeFile writes the Ninja build file to ninjaPath via a temp file
// in the same directory followed by an atomic rename, exactly the
// ioutil.TempFile-then-os.Rename sequence cmd/zi/ninja.go and
// cmd/distri/ninja.go use to publish build.ninja.
func MaterializeFile(ninjaPath string, jobs []litani.JobSpec, stages []string, pools map[string]int, wrapperCommand string) error {
	f, err := os.CreateTemp(filepath.Dir(ninjaPath), "litani-ninja")
	if err != nil {
		return xerrors.Errorf("create temp ninja file: %w", err)
	}
	tmpName := f.Name()
	if err := Materialize(f, jobs, stages, pools, wrapperCommand); err != nil {
		f.Close()
		os.Remove(tmpName)
		return xerrors.Errorf("materialize: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return xerrors.Errorf("close temp ninja file: %w", err)
	}
	if err := os.Rename(tmpName, ninjaPath); err != nil {
		os.Remove(tmpName)
		return xerrors.Errorf("rename to %s: %w", ninjaPath, err)
	}
	return nil
}
