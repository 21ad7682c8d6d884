package main

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/litani-build/litani"
	"github.com/litani-build/litani/internal/e2etest"
)

// litaniBin is built once per test binary run, into a throwaway temp
// directory, by the real go toolchain invoked as a subprocess -- the same
// build-then-exec pattern cmd/distri's own tests use to drive the distri
// binary end to end.
var litaniBin string

func TestMain(m *testing.M) {
	if _, err := exec.LookPath("go"); err != nil {
		os.Exit(m.Run()) // every test below skips itself when litaniBin is empty or ninja is missing
	}
	dir, err := os.MkdirTemp("", "litani-e2e")
	if err != nil {
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	litaniBin = filepath.Join(dir, "litani")
	build := exec.Command("go", "build", "-o", litaniBin, ".")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func requireNinja(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ninja"); err != nil {
		t.Skip("ninja not found in $PATH")
	}
	if litaniBin == "" {
		t.Skip("litani binary not built (go toolchain unavailable)")
	}
}

func TestEndToEndSuccessfulRunProducesReport(t *testing.T) {
	requireNinja(t)

	wd := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(wd); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(oldWD)

	cacheDir := filepath.Join(wd, ".litani_cache")

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command(litaniBin, args...)
		cmd.Dir = wd
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("litani %v: %v\n%s", args, err, out)
		}
	}

	run("init", "-cache-dir", cacheDir, "-project", "demo")
	run("add-job", "-cache-dir", cacheDir, "-job-id", "compile", "-command", "true",
		"-pipeline-name", "p", "-ci-stage", "build")
	run("add-job", "-cache-dir", cacheDir, "-job-id", "link", "-command", "true",
		"-pipeline-name", "p", "-ci-stage", "build")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	build := exec.CommandContext(ctx, litaniBin, "run-build", "-cache-dir", cacheDir, "-project", "demo", "-stages", "build")
	build.Dir = wd
	out, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("run-build: %v\n%s", err, out)
	}

	htmlLink := filepath.Join(cacheDir, "html")
	target, err := os.Readlink(htmlLink)
	if err != nil {
		t.Fatalf("report html symlink missing: %v", err)
	}
	runJSON := filepath.Join(target, "run.json")
	b, err := os.ReadFile(runJSON)
	if err != nil {
		t.Fatalf("run.json missing: %v", err)
	}
	var r litani.Run
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatal(err)
	}
	if r.Status != litani.StatusSuccess {
		t.Errorf("run status = %q, want success", r.Status)
	}
	if len(r.Pipelines) != 1 || len(r.Pipelines[0].CIStages) != 1 || len(r.Pipelines[0].CIStages[0].Jobs) != 2 {
		t.Errorf("run document shape unexpected: %+v", r)
	}
}

func TestEndToEndFailingJobReportsFailStatus(t *testing.T) {
	requireNinja(t)

	wd := t.TempDir()
	cacheDir := filepath.Join(wd, ".litani_cache")

	run := func(args ...string) ([]byte, error) {
		cmd := exec.Command(litaniBin, args...)
		cmd.Dir = wd
		return cmd.CombinedOutput()
	}

	if out, err := run("init", "-cache-dir", cacheDir); err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}
	if out, err := run("add-job", "-cache-dir", cacheDir, "-job-id", "broken", "-command", "false",
		"-pipeline-name", "p", "-ci-stage", "build"); err != nil {
		t.Fatalf("add-job: %v\n%s", err, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	build := exec.CommandContext(ctx, litaniBin, "run-build", "-cache-dir", cacheDir, "-stages", "build")
	build.Dir = wd
	out, err := build.CombinedOutput()
	if err == nil {
		t.Fatalf("run-build with a failing job: want nonzero exit, got success\n%s", out)
	}

	target, err := os.Readlink(filepath.Join(cacheDir, "html"))
	if err != nil {
		t.Fatalf("report html symlink missing: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(target, "run.json"))
	if err != nil {
		t.Fatalf("run.json missing: %v", err)
	}
	var r litani.Run
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatal(err)
	}
	if r.Status != litani.StatusFail {
		t.Errorf("run status = %q, want fail", r.Status)
	}
}

func TestEndToEndDumpRunDuringInProgressBuild(t *testing.T) {
	requireNinja(t)

	wd := t.TempDir()
	cacheDir := filepath.Join(wd, ".litani_cache")

	init := exec.Command(litaniBin, "init", "-cache-dir", cacheDir)
	init.Dir = wd
	if out, err := init.CombinedOutput(); err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}
	addJob := exec.Command(litaniBin, "add-job", "-cache-dir", cacheDir, "-job-id", "slow",
		"-command", "sleep 2", "-pipeline-name", "p", "-ci-stage", "build")
	addJob.Dir = wd
	if out, err := addJob.CombinedOutput(); err != nil {
		t.Fatalf("add-job: %v\n%s", err, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cleanup, err := e2etest.SpawnRunBuild(ctx, litaniBin, cacheDir, "-stages", "build")
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	dump := exec.Command(litaniBin, "dump-run", "-cache-dir", cacheDir, "-retries", "20")
	out, err := dump.Output()
	if err != nil {
		t.Fatalf("dump-run: %v", err)
	}

	var r litani.Run
	if err := json.Unmarshal(out, &r); err != nil {
		t.Fatalf("dump-run did not emit a JSON run document: %v\n%s", err, out)
	}
	if r.RunID == "" {
		t.Error("dumped run has no run_id")
	}
}

func TestPrintCapabilitiesEmitsKnownTags(t *testing.T) {
	if litaniBin == "" {
		t.Skip("litani binary not built (go toolchain unavailable)")
	}
	out, err := exec.Command(litaniBin, "print-capabilities").Output()
	if err != nil {
		t.Fatal(err)
	}
	var tags []string
	if err := json.Unmarshal(out, &tags); err != nil {
		t.Fatal(err)
	}
	if len(tags) == 0 {
		t.Error("print-capabilities: want at least one tag")
	}
}

func TestPrintCapabilitiesHumanReadableListsEveryTag(t *testing.T) {
	if litaniBin == "" {
		t.Skip("litani binary not built (go toolchain unavailable)")
	}
	out, err := exec.Command(litaniBin, "print-capabilities", "-human-readable").Output()
	if err != nil {
		t.Fatal(err)
	}
	for _, tag := range []string{"pools", "dump_run", "memory_profile"} {
		if !strings.Contains(string(out), tag) {
			t.Errorf("print-capabilities -human-readable: missing tag %q in:\n%s", tag, out)
		}
	}
}
