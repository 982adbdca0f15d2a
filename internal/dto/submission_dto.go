package dto

// SubmissionResponse is returned to API clients once a pipeline run reaches a terminal state.
type SubmissionResponse struct {
	RunID          string   `json:"runId"`
	State          string   `json:"state"`
	AssessmentID   string   `json:"assessmentId"`
	AssessmentType string   `json:"assessmentType"`
	ResultID       string   `json:"resultId,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Redirect       string   `json:"redirect,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	CorrectCount   *int     `json:"correctCount,omitempty"`
	TotalItems     *int     `json:"totalItems,omitempty"`
	// ManualCheckCount counts identification items the grader flagged for human review.
	ManualCheckCount *int `json:"manualCheckCount,omitempty"`
}
