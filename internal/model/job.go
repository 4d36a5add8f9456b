package model

// Model is an inference model registered on the server.
type Model struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// Job is a server-tracked unit of inference work.
type Job struct {
	ID         int64     `json:"id"`
	CreatedAt  Timestamp `json:"created_at"`
	UpdatedAt  Timestamp `json:"updated_at"`
	Status     JobStatus `json:"status"`
	ResultPath *string   `json:"result_path"`
	FailedLog  *string   `json:"failed_log,omitempty"`
}

// HasResult reports whether the result content may be fetched.
func (j *Job) HasResult() bool {
	return j != nil && j.Status.IsSuccess() && j.ResultPath != nil && *j.ResultPath != ""
}

// JobCreateRequest is the body of POST jobs/
type JobCreateRequest struct {
	ModelID      int64  `json:"model_id"`
	ArgumentPath string `json:"argument_path"`
}

// FileCreated is the response of POST files/
type FileCreated struct {
	Path string `json:"path"`
}
