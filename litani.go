// Package litani implements the shared data model and sentinel errors for
// the litani pipeline orchestrator: job specs, job statuses and the
// aggregated run document described by the run schema.
package litani

import "errors"

// Outcome is the terminal classification of one job's execution.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFail        Outcome = "fail"
	OutcomeFailIgnored Outcome = "fail_ignored"
)

// Status is the lifecycle state of a stage, pipeline or run.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusFail       Status = "fail"
	StatusFailIgnored Status = "fail_ignored"
	StatusSuccess    Status = "success"
)

// Sentinel errors surfaced across package boundaries, per the error kinds
// enumerated in the error-handling design.
var (
	ErrAcquisitionFailed  = errors.New("litani: could not acquire lock")
	ErrTimeoutExpired     = errors.New("litani: timed out waiting to acquire lock")
	ErrMissingOutput      = errors.New("litani: declared output is missing and not phony")
	ErrSchemaInvalid      = errors.New("litani: document failed schema validation")
	ErrInconsistentRun    = errors.New("litani: run snapshot is not yet consistent with caller job")
	ErrMissingCache       = errors.New("litani: no .litani_cache_dir pointer found; run 'litani init' first")
	ErrSchedulerFailure   = errors.New("litani: scheduler process failed")
	ErrUnknownOutcomeLabel = errors.New("litani: job outcome is not one of success, fail, fail_ignored")
)

// TimeLayoutSeconds and TimeLayoutMillis are the two UTC timestamp formats
// used throughout persisted documents.
const (
	TimeLayoutSeconds = "2006-01-02T15:04:05Z"
	TimeLayoutMillis  = "2006-01-02T15:04:05.000000Z"
)

// EnvJobID is set by the job wrapper in the child process's environment and
// read by dump-run to determine the calling job, if any.
const EnvJobID = "LITANI_JOB_ID"

// EnvReportArchivePath is an opaque string embedded verbatim in the
// dashboard, set by the invoking CI system.
const EnvReportArchivePath = "LITANI_REPORT_ARCHIVE_PATH"
