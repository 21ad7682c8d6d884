package wrapper

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/litani-build/litani"
)

func readStatus(t *testing.T, cacheDir, jobID string) litani.JobStatus {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(cacheDir, "status", jobID+".json"))
	if err != nil {
		t.Fatal(err)
	}
	var st litani.JobStatus
	if err := json.Unmarshal(b, &st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestRunSuccessWritesStatus(t *testing.T) {
	dir := t.TempDir()
	spec := litani.JobSpec{JobID: "ok", Command: "true", PipelineName: "p", CIStage: "build"}

	code, err := Run(context.Background(), Options{CacheDir: dir, Spec: spec})
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}

	st := readStatus(t, dir, "ok")
	if !st.Complete || st.Outcome != litani.OutcomeSuccess {
		t.Errorf("status = %+v, want complete success", st)
	}
}

func TestRunFailureReturnsExitCode1(t *testing.T) {
	dir := t.TempDir()
	spec := litani.JobSpec{JobID: "bad", Command: "false", PipelineName: "p", CIStage: "build"}

	code, err := Run(context.Background(), Options{CacheDir: dir, Spec: spec})
	if err != nil {
		t.Fatal(err)
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}

	st := readStatus(t, dir, "bad")
	if st.Outcome != litani.OutcomeFail || st.WrapperReturnCode != 1 {
		t.Errorf("status = %+v, want fail/wrapper_return_code=1", st)
	}
}

func TestRunCapturesStdout(t *testing.T) {
	dir := t.TempDir()
	spec := litani.JobSpec{JobID: "echoer", Command: "echo hello", PipelineName: "p", CIStage: "build"}

	if _, err := Run(context.Background(), Options{CacheDir: dir, Spec: spec}); err != nil {
		t.Fatal(err)
	}

	st := readStatus(t, dir, "echoer")
	if len(st.Stdout) != 1 || st.Stdout[0] != "hello" {
		t.Errorf("stdout = %v, want [\"hello\"]", st.Stdout)
	}
}

func TestRunMissingNonPhonyOutputFails(t *testing.T) {
	dir := t.TempDir()
	spec := litani.JobSpec{
		JobID:        "noout",
		Command:      "true",
		PipelineName: "p",
		CIStage:      "build",
		Outputs:      []string{filepath.Join(dir, "never-created.txt")},
	}

	code, err := Run(context.Background(), Options{CacheDir: dir, Spec: spec})
	if err != nil {
		t.Fatal(err)
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1 (missing declared output)", code)
	}
	st := readStatus(t, dir, "noout")
	if st.Outcome != litani.OutcomeFail {
		t.Errorf("outcome = %q, want fail", st.Outcome)
	}
}

func TestRunVerboseTeesStdoutWhileCapturingIt(t *testing.T) {
	dir := t.TempDir()
	spec := litani.JobSpec{JobID: "loud", Command: "echo hello", PipelineName: "p", CIStage: "build", Verbose: true}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	oldStdout := os.Stdout
	os.Stdout = w
	_, runErr := Run(context.Background(), Options{CacheDir: dir, Spec: spec})
	os.Stdout = oldStdout
	w.Close()
	if runErr != nil {
		t.Fatal(runErr)
	}

	echoed := make([]byte, 64)
	n, _ := r.Read(echoed)
	if got := string(echoed[:n]); got != "hello\n" {
		t.Errorf("teed stdout = %q, want %q", got, "hello\n")
	}

	st := readStatus(t, dir, "loud")
	if len(st.Stdout) != 1 || st.Stdout[0] != "hello" {
		t.Errorf("captured stdout = %v, want [\"hello\"] (tee must not prevent capture)", st.Stdout)
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	dir := t.TempDir()
	spec := litani.JobSpec{
		JobID:        "sleepy",
		Command:      "sleep 30",
		PipelineName: "p",
		CIStage:      "build",
		Timeout:      1,
	}

	code, err := Run(context.Background(), Options{CacheDir: dir, Spec: spec})
	if err != nil {
		t.Fatal(err)
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1 (timeout without timeout_ok)", code)
	}
	st := readStatus(t, dir, "sleepy")
	if !st.TimeoutReached {
		t.Error("status.TimeoutReached = false, want true")
	}
	if st.Duration >= 30 {
		t.Errorf("job ran for %ds, want it killed well before its 30s sleep", st.Duration)
	}
}
