package service

import (
	"errors"
	"fmt"
)

var (
	// ErrImageRequired indicates the submission carried no image payload.
	ErrImageRequired = errors.New("image is required")
	// ErrImageTooLarge indicates the image exceeded the configured upload limit.
	ErrImageTooLarge = errors.New("image exceeds maximum allowed size")
	// ErrImageUnreadable indicates the uploaded file could not be read.
	ErrImageUnreadable = errors.New("uploaded image could not be read")
	// ErrImageTypeNotAllowed indicates the payload is not an image.
	ErrImageTypeNotAllowed = errors.New("file is not an image")
	// ErrAssessmentIDRequired indicates the run is not bound to an assessment.
	ErrAssessmentIDRequired = errors.New("assessment id is required")
	// ErrSubmissionInProgress indicates a run with the same submission key is still active.
	ErrSubmissionInProgress = errors.New("submission already in progress")
)

// User-facing messages, stable per failure stage.
const (
	MessageValidation     = "Please select an image to upload."
	MessageGradingRequest = "Failed to process image. Please try again."
	MessageScoring        = "The grading result could not be scored. Please try again."
	MessagePersistence    = "Failed to save the graded result. Please try again."
	MessageInProgress     = "This answer sheet is already being processed."
)

// ValidationError is raised before any network call when the submission input is unusable.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// GradingRequestError reports an unreachable grading endpoint or a non-success status.
type GradingRequestError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *GradingRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("grading request to %s failed with status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("grading request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *GradingRequestError) Unwrap() error {
	return e.Err
}

// ScoringError reports a grading response that violates the data model so no score can be produced.
type ScoringError struct {
	Reason string
	Err    error
}

func (e *ScoringError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scoring: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("scoring: %s", e.Reason)
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}

// PersistenceError reports an unreachable persistence endpoint, a non-success status,
// or an acknowledgement without a record id.
type PersistenceError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("persistence request to %s failed with status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("persistence request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UserMessage maps a pipeline error to the message shown to the person who submitted the sheet.
func UserMessage(err error) string {
	var (
		validationErr  *ValidationError
		gradingErr     *GradingRequestError
		scoringErr     *ScoringError
		persistenceErr *PersistenceError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSubmissionInProgress):
		return MessageInProgress
	case errors.As(err, &validationErr):
		if errors.Is(err, ErrImageRequired) {
			return MessageValidation
		}
		return "Invalid submission: " + validationErr.Err.Error() + "."
	case errors.As(err, &gradingErr):
		return MessageGradingRequest
	case errors.As(err, &scoringErr):
		return MessageScoring
	case errors.As(err, &persistenceErr):
		return MessagePersistence
	default:
		return MessageGradingRequest
	}
}

// FailureStage names the stage that produced err, used for metrics and events.
func FailureStage(err error) string {
	var (
		validationErr  *ValidationError
		gradingErr     *GradingRequestError
		scoringErr     *ScoringError
		persistenceErr *PersistenceError
	)

	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &gradingErr):
		return "grading"
	case errors.As(err, &scoringErr):
		return "scoring"
	case errors.As(err, &persistenceErr):
		return "persistence"
	default:
		return "unknown"
	}
}
