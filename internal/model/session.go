package model

// UploadedFile is the currently selected input and, once uploaded, its
// server-side path reference.
type UploadedFile struct {
	Name          string  `json:"name"`
	ContentType   string  `json:"contentType"`
	Size          int64   `json:"size"`
	Preview       string  `json:"preview,omitempty"` // data URL, display only
	PathReference *string `json:"pathReference"`
}

// Uploaded reports whether the file has a path reference.
func (f *UploadedFile) Uploaded() bool {
	return f != nil && f.PathReference != nil && *f.PathReference != ""
}

// Outcome is the explicit result of a stage.
type Outcome struct {
	State OutcomeState `json:"state"`
	Error string       `json:"error,omitempty"`
}

// Result is the text content stored at a completed job's result path.
type Result struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// Snapshot is the full orchestrator state. It is replaced wholesale on every
// transition and Version increases by one each time.
type Snapshot struct {
	Version       uint64        `json:"version"`
	Model         *Model        `json:"model"`
	ModelOutcome  Outcome       `json:"modelOutcome"`
	File          *UploadedFile `json:"file"`
	UploadOutcome Outcome       `json:"uploadOutcome"`
	Job           *Job          `json:"job"`
	JobOutcome    Outcome       `json:"jobOutcome"`
	Phase         PollPhase     `json:"phase"`
	Result        *Result       `json:"result"`
	ResultOutcome Outcome       `json:"resultOutcome"`
}

// ReadyToSubmit reports whether both a model and an uploaded file exist.
func (s Snapshot) ReadyToSubmit() bool {
	return s.Model != nil && s.File.Uploaded()
}
