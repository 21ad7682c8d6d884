package depgraph

import (
	"strings"
	"testing"

	"github.com/litani-build/litani"
)

func TestMaterializeProducesJobRuleAndDefaultTarget(t *testing.T) {
	jobs := []litani.JobSpec{
		{JobID: "build-a", PipelineName: "p", CIStage: "build", Outputs: []string{"a.o"}},
		{JobID: "test-a", PipelineName: "p", CIStage: "test", Inputs: []string{"a.o"}},
	}

	var buf strings.Builder
	if err := Materialize(&buf, jobs, []string{"build", "test"}, nil, "litani"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, "build a.o: job") {
		t.Errorf("missing build edge for job with file output:\n%s", out)
	}
	if !strings.Contains(out, "job_id = build-a") {
		t.Errorf("missing job_id binding:\n%s", out)
	}
	if !strings.Contains(out, "__litani_job_test-a") {
		t.Errorf("missing synthetic phony target for output-less job:\n%s", out)
	}
	if !strings.Contains(out, "build "+DefaultTarget+": phony") {
		t.Errorf("missing default target:\n%s", out)
	}
	if !strings.Contains(out, "command = litani exec $job_id") {
		t.Errorf("missing wrapper command in job rule:\n%s", out)
	}
}

func TestMaterializeRejectsCycle(t *testing.T) {
	jobs := []litani.JobSpec{
		{JobID: "a", PipelineName: "p", CIStage: "build", Inputs: []string{"b.out"}, Outputs: []string{"a.out"}},
		{JobID: "b", PipelineName: "p", CIStage: "build", Inputs: []string{"a.out"}, Outputs: []string{"b.out"}},
	}

	var buf strings.Builder
	if err := Materialize(&buf, jobs, []string{"build"}, nil, "litani"); err == nil {
		t.Fatal("Materialize over a cyclic job graph: want error, got nil")
	}
}

func TestMaterializePoolDeclaration(t *testing.T) {
	jobs := []litani.JobSpec{
		{JobID: "a", PipelineName: "p", CIStage: "build", Pool: "heavy", Outputs: []string{"a.out"}},
	}
	var buf strings.Builder
	if err := Materialize(&buf, jobs, []string{"build"}, map[string]int{"heavy": 2}, "litani"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "pool heavy\n  depth = 2") {
		t.Errorf("missing pool declaration:\n%s", out)
	}
	if !strings.Contains(out, "pool = heavy") {
		t.Errorf("missing pool binding on job build edge:\n%s", out)
	}
}
