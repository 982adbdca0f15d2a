package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-sheet-grader/internal/models"
	"github.com/noah-isme/gema-sheet-grader/internal/observability"
)

// SubmissionRequest is one user-initiated submission of an answer sheet.
type SubmissionRequest struct {
	RunID          string
	AssessmentID   string
	AssessmentType models.AssessmentType
	Image          Image
	CorrelationID  string
	Navigator      Navigator
}

// SubmissionOutcome is the terminal result of a pipeline run. Validation and guard
// rejections leave the run in StateIdle.
type SubmissionOutcome struct {
	RunID          string
	State          State
	AssessmentID   string
	AssessmentType models.AssessmentType
	ResultID       string
	Path           string
	Summary        string
	Message        string
	Err            error
	Essay          *EssayScore
	Identification *IdentificationScore
}

// Succeeded reports whether the run persisted a result.
func (o SubmissionOutcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// SubmissionPipeline turns a photographed answer sheet into a persisted, scored result.
type SubmissionPipeline interface {
	Submit(ctx context.Context, request SubmissionRequest) SubmissionOutcome
}

// PipelineConfig tunes the image precondition.
type PipelineConfig struct {
	MaxImageBytes int64
}

type submissionPipeline struct {
	dispatcher GradingDispatcher
	submitter  ResultSubmitter
	guard      SubmissionGuard
	observers  []StateObserver
	maxImage   int64
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewSubmissionPipeline wires the grading dispatcher and result submitter into a pipeline.
func NewSubmissionPipeline(dispatcher GradingDispatcher, submitter ResultSubmitter, guard SubmissionGuard, cfg PipelineConfig, logger zerolog.Logger, observers ...StateObserver) SubmissionPipeline {
	if guard == nil {
		guard = NewMemorySubmissionGuard()
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 * 1024 * 1024
	}

	pipelineLogger := logger.With().Str("component", "submission_pipeline").Logger()
	all := make([]StateObserver, 0, len(observers)+1)
	all = append(all, transitionLogger(pipelineLogger))
	for _, observer := range observers {
		if observer != nil {
			all = append(all, observer)
		}
	}

	return &submissionPipeline{
		dispatcher: dispatcher,
		submitter:  submitter,
		guard:      guard,
		observers:  all,
		maxImage:   cfg.MaxImageBytes,
		logger:     pipelineLogger,
		tracer:     otel.Tracer("github.com/noah-isme/gema-sheet-grader/internal/service/submission"),
		now:        time.Now,
	}
}

func (p *submissionPipeline) Submit(parent context.Context, request SubmissionRequest) SubmissionOutcome {
	// Requests are awaited to completion once issued.
	ctx := context.WithoutCancel(parent)

	runID := strings.TrimSpace(request.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	assessmentID := strings.TrimSpace(request.AssessmentID)
	if parsed, err := models.ParseAssessmentType(request.AssessmentType.String()); err == nil {
		request.AssessmentType = parsed
	}

	outcome := SubmissionOutcome{
		RunID:          runID,
		State:          StateIdle,
		AssessmentID:   assessmentID,
		AssessmentType: request.AssessmentType,
	}

	logger := p.logger.With().
		Str("run_id", runID).
		Str("assessment_id", assessmentID).
		Str("assessment_type", request.AssessmentType.String()).
		Str("correlation_id", request.CorrelationID).
		Logger()

	ctx, span := p.tracer.Start(ctx, "submission.run", trace.WithAttributes(
		attribute.String("submission.run_id", runID),
		attribute.String("submission.assessment_id", assessmentID),
		attribute.String("submission.assessment_type", request.AssessmentType.String()),
	))
	defer span.End()

	if err := p.validate(assessmentID, request); err != nil {
		observability.PipelineRuns().WithLabelValues(request.AssessmentType.String(), "rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		logger.Info().Err(err).Msg("submission rejected before upload")
		return p.reject(outcome, err)
	}

	release, err := p.guard.Acquire(ctx, runID)
	if err != nil {
		observability.PipelineRuns().WithLabelValues(request.AssessmentType.String(), "rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "guard_rejected")
		logger.Warn().Err(err).Msg("submission already running")
		return p.reject(outcome, err)
	}
	defer release()

	run := &submissionRun{
		state: StateIdle,
		base: StateChange{
			RunID:          runID,
			AssessmentID:   assessmentID,
			AssessmentType: request.AssessmentType.String(),
			CorrelationID:  request.CorrelationID,
		},
		observers: p.observers,
		now:       p.now,
	}

	outcome = p.execute(ctx, run, request, outcome)
	outcome.State = run.state

	observability.PipelineRuns().WithLabelValues(request.AssessmentType.String(), string(run.state)).Inc()
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, FailureStage(outcome.Err)+"_failed")
		return outcome
	}

	span.SetAttributes(attribute.String("submission.result_id", outcome.ResultID))
	span.SetStatus(codes.Ok, "succeeded")

	if request.Navigator != nil {
		request.Navigator.Navigate(ctx, outcome.Path)
	}

	return outcome
}

func (p *submissionPipeline) execute(ctx context.Context, run *submissionRun, request SubmissionRequest, outcome SubmissionOutcome) SubmissionOutcome {
	typeLabel := request.AssessmentType.String()

	if err := run.transition(ctx, StateUploading, "", ""); err != nil {
		return p.fail(ctx, run, outcome, err)
	}

	gradingStart := p.now()
	graded, err := p.dispatcher.Dispatch(ctx, request.AssessmentType, request.Image)
	observability.PipelineStageLatency().WithLabelValues(typeLabel, "grading").Observe(time.Since(gradingStart).Seconds())
	if err != nil {
		return p.fail(ctx, run, outcome, err)
	}

	switch request.AssessmentType {
	case models.AssessmentTypeEssay:
		if graded.Essay == nil {
			return p.fail(ctx, run, outcome, &ScoringError{Reason: "grading response carried no essay result"})
		}
		score, err := AggregateEssay(*graded.Essay)
		if err != nil {
			return p.fail(ctx, run, outcome, err)
		}
		outcome.Essay = &score
		outcome.Summary = EssaySummary(score)

		if err := run.transition(ctx, StateSubmitting, "", ""); err != nil {
			return p.fail(ctx, run, outcome, err)
		}
		persistStart := p.now()
		persisted, err := p.submitter.SubmitEssay(ctx, outcome.AssessmentID, *graded.Essay, score)
		observability.PipelineStageLatency().WithLabelValues(typeLabel, "persistence").Observe(time.Since(persistStart).Seconds())
		if err != nil {
			return p.fail(ctx, run, outcome, err)
		}
		outcome.ResultID = persisted.ID

	case models.AssessmentTypeIdentification:
		if graded.Identification == nil {
			return p.fail(ctx, run, outcome, &ScoringError{Reason: "grading response carried no identification result"})
		}
		score, err := AggregateIdentification(*graded.Identification)
		if err != nil {
			return p.fail(ctx, run, outcome, err)
		}
		outcome.Identification = &score
		outcome.Summary = IdentificationSummary(score)

		if err := run.transition(ctx, StateSubmitting, "", ""); err != nil {
			return p.fail(ctx, run, outcome, err)
		}
		persistStart := p.now()
		persisted, err := p.submitter.SubmitIdentification(ctx, outcome.AssessmentID, *graded.Identification, score)
		observability.PipelineStageLatency().WithLabelValues(typeLabel, "persistence").Observe(time.Since(persistStart).Seconds())
		if err != nil {
			return p.fail(ctx, run, outcome, err)
		}
		outcome.ResultID = persisted.ID

	default:
		return p.fail(ctx, run, outcome, &ValidationError{Err: models.ErrUnknownAssessmentType})
	}

	outcome.Path = ResultPath(outcome.AssessmentID, request.AssessmentType, outcome.ResultID)
	outcome.Message = outcome.Summary
	if err := run.transition(ctx, StateSucceeded, outcome.Summary, outcome.ResultID); err != nil {
		return p.fail(ctx, run, outcome, err)
	}

	return outcome
}

// fail moves the run to StateFailed. A graded result whose persistence failed is discarded.
func (p *submissionPipeline) fail(ctx context.Context, run *submissionRun, outcome SubmissionOutcome, err error) SubmissionOutcome {
	outcome.Err = err
	outcome.Message = UserMessage(err)
	outcome.ResultID = ""
	outcome.Path = ""
	outcome.Summary = ""
	outcome.Essay = nil
	outcome.Identification = nil

	if run.state.IsTerminal() {
		return outcome
	}
	if transitionErr := run.transition(ctx, StateFailed, outcome.Message, ""); transitionErr != nil {
		p.logger.Error().Err(transitionErr).Str("run_id", run.base.RunID).Msg("failed to record pipeline failure")
	}

	return outcome
}

func (p *submissionPipeline) reject(outcome SubmissionOutcome, err error) SubmissionOutcome {
	outcome.State = StateIdle
	outcome.Err = err
	outcome.Message = UserMessage(err)
	return outcome
}

func (p *submissionPipeline) validate(assessmentID string, request SubmissionRequest) error {
	if assessmentID == "" {
		return &ValidationError{Err: ErrAssessmentIDRequired}
	}
	if _, err := models.ParseAssessmentType(request.AssessmentType.String()); err != nil {
		return &ValidationError{Err: err}
	}
	if len(request.Image.Data) == 0 {
		return &ValidationError{Err: ErrImageRequired}
	}
	if int64(len(request.Image.Data)) > p.maxImage {
		return &ValidationError{Err: ErrImageTooLarge}
	}
	if detected := mimetype.Detect(request.Image.Data); !strings.HasPrefix(detected.String(), "image/") {
		return &ValidationError{Err: fmt.Errorf("%w: detected %s", ErrImageTypeNotAllowed, detected.String())}
	}
	return nil
}

// EssaySummary renders the success message for an essay run.
func EssaySummary(score EssayScore) string {
	return fmt.Sprintf("Essay submitted successfully! Average score: %.1f%%", score.Overall)
}

// IdentificationSummary renders the success message for an identification run.
func IdentificationSummary(score IdentificationScore) string {
	return fmt.Sprintf("Score: %d out of %d", score.CorrectCount, score.TotalItems)
}

// ResultPath is the results view route handed off after a successful run.
func ResultPath(assessmentID string, assessmentType models.AssessmentType, resultID string) string {
	return fmt.Sprintf("/assessments/%s/%s/%s",
		url.PathEscape(assessmentID),
		url.PathEscape(assessmentType.String()),
		url.PathEscape(resultID),
	)
}

func transitionLogger(logger zerolog.Logger) StateObserver {
	return StateObserverFunc(func(_ context.Context, change StateChange) {
		observability.PipelineTransitions().WithLabelValues(string(change.From), string(change.To)).Inc()

		event := logger.Info()
		if change.To == StateFailed {
			event = logger.Warn()
		}
		event.
			Str("run_id", change.RunID).
			Str("assessment_id", change.AssessmentID).
			Str("assessment_type", change.AssessmentType).
			Str("correlation_id", change.CorrelationID).
			Str("from", string(change.From)).
			Str("to", string(change.To)).
			Str("result_id", change.ResultID).
			Msg("submission state changed")
	})
}

// IsRejected reports whether err stopped a run before it left StateIdle.
func IsRejected(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr) || errors.Is(err, ErrSubmissionInProgress)
}
