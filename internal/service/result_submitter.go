package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-sheet-grader/internal/config"
	"github.com/noah-isme/gema-sheet-grader/internal/dto"
	"github.com/noah-isme/gema-sheet-grader/internal/models"
	"github.com/noah-isme/gema-sheet-grader/internal/observability"
)

// essayQuestionID is the single question an essay sheet is persisted under.
const essayQuestionID = "1"

// ErrResultIDMissing indicates the backend acknowledged a result without an identifier.
var ErrResultIDMissing = errors.New("persisted result has no id")

// ResultSubmitter persists aggregated grading results to the backend store. No idempotency
// key is sent, so every call creates a new record.
type ResultSubmitter interface {
	SubmitEssay(ctx context.Context, assessmentID string, response models.EssayGradingResponse, score EssayScore) (models.PersistedResult, error)
	SubmitIdentification(ctx context.Context, assessmentID string, response models.IdentificationGradingResponse, score IdentificationScore) (models.PersistedResult, error)
}

type resultSubmitter struct {
	client    HTTPDoer
	endpoints config.Endpoints
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewResultSubmitter constructs a submitter posting to the persistence endpoints derived from endpoints.
func NewResultSubmitter(client HTTPDoer, endpoints config.Endpoints, logger zerolog.Logger) ResultSubmitter {
	if client == nil {
		client = http.DefaultClient
	}

	return &resultSubmitter{
		client:    client,
		endpoints: endpoints,
		logger:    logger.With().Str("component", "result_submitter").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-sheet-grader/internal/service/results"),
	}
}

// BuildEssayResultRequest maps an aggregated essay into the persistence schema.
func BuildEssayResultRequest(assessmentID string, response models.EssayGradingResponse, score EssayScore) dto.EssayResultRequest {
	criteria := make([]dto.EssayCriteriaResult, 0, len(score.Criteria))
	for _, criterion := range score.Criteria {
		criteria = append(criteria, dto.EssayCriteriaResult{
			CriteriaID: criterion.ID,
			Score:      criterion.Score,
		})
	}

	return dto.EssayResultRequest{
		StudentName:  response.StudentName,
		AssessmentID: assessmentID,
		Score:        score.Overall,
		QuestionResults: []dto.EssayQuestionResult{
			{
				QuestionID:           essayQuestionID,
				Score:                score.Overall,
				EssayCriteriaResults: criteria,
			},
		},
	}
}

// BuildIdentificationResultRequest maps an aggregated identification sheet into the persistence schema.
func BuildIdentificationResultRequest(assessmentID string, response models.IdentificationGradingResponse, score IdentificationScore) dto.IdentificationResultRequest {
	results := make([]dto.IdentificationQuestionResult, 0, len(score.Results))
	for _, result := range score.Results {
		results = append(results, dto.IdentificationQuestionResult{
			QuestionID: strconv.Itoa(result.Position),
			IsCorrect:  result.IsCorrect,
		})
	}

	return dto.IdentificationResultRequest{
		StudentName:     response.StudentName,
		AssessmentID:    assessmentID,
		QuestionResults: results,
	}
}

func (s *resultSubmitter) SubmitEssay(ctx context.Context, assessmentID string, response models.EssayGradingResponse, score EssayScore) (models.PersistedResult, error) {
	payload := BuildEssayResultRequest(assessmentID, response, score)
	return s.post(ctx, s.endpoints.EssayResults, models.AssessmentTypeEssay, payload)
}

func (s *resultSubmitter) SubmitIdentification(ctx context.Context, assessmentID string, response models.IdentificationGradingResponse, score IdentificationScore) (models.PersistedResult, error) {
	payload := BuildIdentificationResultRequest(assessmentID, response, score)
	return s.post(ctx, s.endpoints.IdentificationResults, models.AssessmentTypeIdentification, payload)
}

func (s *resultSubmitter) post(ctx context.Context, endpoint string, assessmentType models.AssessmentType, payload interface{}) (models.PersistedResult, error) {
	ctx, span := s.tracer.Start(ctx, "results.submit", trace.WithAttributes(
		attribute.String("results.assessment_type", assessmentType.String()),
		attribute.String("results.endpoint", endpoint),
	))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode_failed")
		return models.PersistedResult{}, &PersistenceError{Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request_build_failed")
		return models.PersistedResult{}, &PersistenceError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		observability.OutboundFailures().WithLabelValues("persistence", "transport").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport_failed")
		s.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("persistence request failed")
		return models.PersistedResult{}, &PersistenceError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("results.status_code", resp.StatusCode))
	if resp.StatusCode/100 != 2 {
		observability.OutboundFailures().WithLabelValues("persistence", "status").Inc()
		_, _ = io.Copy(io.Discard, resp.Body)
		err := &PersistenceError{Endpoint: endpoint, StatusCode: resp.StatusCode}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected_status")
		s.logger.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("result store rejected result")
		return models.PersistedResult{}, err
	}

	var persisted models.PersistedResult
	if err := json.NewDecoder(resp.Body).Decode(&persisted); err != nil {
		observability.OutboundFailures().WithLabelValues("persistence", "decode").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode_failed")
		return models.PersistedResult{}, &PersistenceError{Endpoint: endpoint, Err: err}
	}

	persisted.ID = strings.TrimSpace(persisted.ID)
	if persisted.ID == "" {
		observability.OutboundFailures().WithLabelValues("persistence", "missing_id").Inc()
		span.RecordError(ErrResultIDMissing)
		span.SetStatus(codes.Error, "missing_id")
		return models.PersistedResult{}, &PersistenceError{Endpoint: endpoint, Err: ErrResultIDMissing}
	}

	span.SetAttributes(attribute.String("results.id", persisted.ID))
	span.SetStatus(codes.Ok, "persisted")

	return persisted, nil
}
