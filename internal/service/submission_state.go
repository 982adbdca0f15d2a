package service

import (
	"context"
	"fmt"
	"time"
)

// State is a stage of a submission pipeline run.
type State string

const (
	// StateIdle means no image has been accepted and no request is in flight.
	StateIdle State = "idle"
	// StateUploading means the grading request is in flight.
	StateUploading State = "uploading"
	// StateSubmitting means the persistence request is in flight.
	StateSubmitting State = "submitting"
	// StateSucceeded is terminal and carries the persisted result id.
	StateSucceeded State = "succeeded"
	// StateFailed is terminal and carries a user-facing failure message.
	StateFailed State = "failed"
)

// IsTerminal reports whether the state ends a run.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateUploading
	case StateUploading:
		return to == StateSubmitting || to == StateFailed
	case StateSubmitting:
		return to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}

// StateChange describes a single transition of a run.
type StateChange struct {
	RunID          string    `json:"runId"`
	AssessmentID   string    `json:"assessmentId"`
	AssessmentType string    `json:"assessmentType"`
	From           State     `json:"from"`
	To             State     `json:"to"`
	Message        string    `json:"message,omitempty"`
	ResultID       string    `json:"resultId,omitempty"`
	CorrelationID  string    `json:"correlationId,omitempty"`
	At             time.Time `json:"at"`
}

// StateObserver receives every transition of every run.
type StateObserver interface {
	OnStateChange(ctx context.Context, change StateChange)
}

// StateObserverFunc adapts a function to StateObserver.
type StateObserverFunc func(ctx context.Context, change StateChange)

// OnStateChange calls f.
func (f StateObserverFunc) OnStateChange(ctx context.Context, change StateChange) {
	f(ctx, change)
}

// Navigator routes a client to the results view once a run succeeds.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}

// submissionRun is the run-local state tracker. It is never shared between runs.
type submissionRun struct {
	state     State
	base      StateChange
	observers []StateObserver
	now       func() time.Time
}

func (r *submissionRun) transition(ctx context.Context, to State, message, resultID string) error {
	if !isAllowedTransition(r.state, to) {
		return fmt.Errorf("disallowed transition for run %q: %s -> %s", r.base.RunID, r.state, to)
	}

	change := r.base
	change.From = r.state
	change.To = to
	change.Message = message
	change.ResultID = resultID
	change.At = r.now().UTC()

	r.state = to
	for _, observer := range r.observers {
		observer.OnStateChange(ctx, change)
	}

	return nil
}
