package model

// Job status as reported by the inference server. The server may introduce
// values that are not listed here; anything outside the terminal set keeps
// the client polling.
type JobStatus string

const (
	JobStatusPending        JobStatus = "pending"
	JobStatusPreprocessing  JobStatus = "preprocessing"
	JobStatusPreprocessed   JobStatus = "preprocessed"
	JobStatusInferencing    JobStatus = "inferencing"
	JobStatusInferenced     JobStatus = "inferenced"
	JobStatusPostprocessing JobStatus = "postprocessing"
	JobStatusRunning        JobStatus = "running"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusFailed         JobStatus = "failed"
)

// IsTerminal reports whether no further change is expected for the job.
// Comparison is case-sensitive.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsSuccess reports whether the job finished with a result.
func (s JobStatus) IsSuccess() bool {
	return s == JobStatusCompleted
}

// Poll phases of the orchestrator
type PollPhase string

const (
	PollPhaseIdle    PollPhase = "idle"
	PollPhasePolling PollPhase = "polling"
	PollPhaseSettled PollPhase = "settled"
)

// Stage outcome states
type OutcomeState string

const (
	OutcomeNone      OutcomeState = "none"
	OutcomePending   OutcomeState = "pending"
	OutcomeSucceeded OutcomeState = "succeeded"
	OutcomeFailed    OutcomeState = "failed"
)
