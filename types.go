package litani

// JobSpec is produced by add-job and is immutable once written.
type JobSpec struct {
	JobID        string   `json:"job_id"`
	Command      string   `json:"command"`
	PipelineName string   `json:"pipeline_name"`
	CIStage      string   `json:"ci_stage"`
	Inputs       []string `json:"inputs,omitempty"`
	Outputs      []string `json:"outputs,omitempty"`
	Description  string   `json:"description,omitempty"`
	Pool         string   `json:"pool,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Timeout      int      `json:"timeout,omitempty"` // seconds, 0 = no timeout
	OutcomeTable string   `json:"outcome_table,omitempty"`
	PhonyOutputs []string `json:"phony_outputs,omitempty"`

	TimeoutOk              bool `json:"timeout_ok,omitempty"`
	TimeoutIgnore          bool `json:"timeout_ignore,omitempty"`
	InterleaveStdoutStderr bool `json:"interleave_stdout_stderr,omitempty"`
	ProfileMemory          bool `json:"profile_memory,omitempty"`
	Verbose                bool `json:"verbose,omitempty"`
	VeryVerbose            bool `json:"very_verbose,omitempty"`
}

// HasPhonyOutput reports whether path is tolerated to be missing after the
// command runs: either phony_outputs is the empty (but present) list,
// meaning every output is phony, or path is named explicitly.
func (j *JobSpec) HasPhonyOutput(path string) bool {
	if j.PhonyOutputs == nil {
		return false
	}
	if len(j.PhonyOutputs) == 0 {
		return true
	}
	for _, p := range j.PhonyOutputs {
		if p == path {
			return true
		}
	}
	return false
}

// MemorySample is one point in a memory trace.
type MemorySample struct {
	Time float64 `json:"time"` // seconds since job start
	RSS  uint64  `json:"rss"`  // bytes
	VSZ  uint64  `json:"vsz"`  // bytes
}

// MemoryPeak summarizes a memory trace's high-water marks.
type MemoryPeak struct {
	RSS               uint64 `json:"rss"`
	VSZ               uint64 `json:"vsz"`
	HumanReadableRSS  string `json:"human_readable_rss"`
	HumanReadableVSZ  string `json:"human_readable_vsz"`
}

// MemoryTrace is the wrapper's memory-profiling output for one job.
type MemoryTrace struct {
	Trace []MemorySample `json:"trace,omitempty"`
	Peak  *MemoryPeak    `json:"peak,omitempty"`
}

// JobStatus is written by the wrapper on completion of a job.
type JobStatus struct {
	Complete           bool            `json:"complete"`
	CommandReturnCode  int             `json:"command_return_code"`
	TimeoutReached     bool            `json:"timeout_reached"`
	StartTime          string          `json:"start_time,omitempty"`
	EndTime            string          `json:"end_time,omitempty"`
	Duration           int             `json:"duration"`
	Outcome            Outcome         `json:"outcome"`
	WrapperReturnCode  int             `json:"wrapper_return_code"`
	Stdout             []string        `json:"stdout"`
	Stderr             []string        `json:"stderr"`
	MemoryTrace        MemoryTrace     `json:"memory_trace"`
	LoadedOutcomeDict  *OutcomeTable   `json:"loaded_outcome_dict,omitempty"`
	WrapperArguments   JobSpec         `json:"wrapper_arguments"`

	// Aggregation-only fields, populated by internal/aggregator and not
	// written by the wrapper itself.
	DurationStr string `json:"duration_str,omitempty"`
	Name        string `json:"name,omitempty"`
	CIStage     string `json:"ci_stage,omitempty"`
}

// OutcomeRule is one rule of an outcome table.
type OutcomeRule struct {
	Type       string  `json:"type"` // "return-code", "timeout", "wildcard"
	Value      *int    `json:"value,omitempty"`
	Action     Outcome `json:"action"`
}

// OutcomeTable is an ordered list of rules, the first matching rule wins.
type OutcomeTable struct {
	Outcomes []OutcomeRule `json:"outcomes"`
}

// ParallelismSample is one entry in a parallelism trace.
type ParallelismSample struct {
	TimeMillis int64 `json:"time"`
	Running    int   `json:"running"`
	Finished   int   `json:"finished"`
	Total      int   `json:"total"`
}

// Parallelism summarizes a run's concurrency over time.
type Parallelism struct {
	Trace          []ParallelismSample `json:"trace"`
	MaxParallelism int                 `json:"max_parallelism"`
	NProc          int                 `json:"n_proc"`
}

// Stage is one named phase of a pipeline, holding the jobs assigned to it.
type Stage struct {
	Name     string      `json:"name"`
	Jobs     []JobStatus `json:"jobs"`
	Status   Status      `json:"status"`
	Progress int         `json:"progress"`
	Complete bool        `json:"complete"`
	URL      string      `json:"url"`
}

// Pipeline is a named sequence of stages.
type Pipeline struct {
	Name     string  `json:"name"`
	CIStages []Stage `json:"ci_stages"`
	Status   Status  `json:"status"`
	URL      string  `json:"url"`
}

// Run is the aggregated document describing an entire execution.
type Run struct {
	RunID       string            `json:"run_id"`
	Project     string            `json:"project"`
	Stages      []string          `json:"stages"`
	Pools       map[string]int    `json:"pools"`
	StartTime   string            `json:"start_time"`
	EndTime     string            `json:"end_time,omitempty"`
	Version     string            `json:"version"`
	SpecVersion string            `json:"spec_version"`
	Status      Status            `json:"status"`
	Aux         map[string]any    `json:"aux,omitempty"`
	Parallelism Parallelism       `json:"parallelism"`
	Pipelines   []Pipeline        `json:"pipelines"`

	// ReportArchivePath is LITANI_REPORT_ARCHIVE_PATH, stamped onto the run
	// document at publish time so the dashboard can embed it verbatim.
	ReportArchivePath string `json:"report_archive_path,omitempty"`
}
