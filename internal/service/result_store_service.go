package service

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-sheet-grader/internal/dto"
	"github.com/noah-isme/gema-sheet-grader/internal/models"
	"github.com/noah-isme/gema-sheet-grader/internal/repository"
)

// ErrResultNotFound indicates the requested result does not exist.
var ErrResultNotFound = errors.New("result not found")

// ResultStoreService backs the persistence endpoints the submission pipeline posts to.
type ResultStoreService interface {
	CreateEssay(ctx context.Context, payload dto.EssayResultRequest) (dto.EssayResultResponse, error)
	CreateIdentification(ctx context.Context, payload dto.IdentificationResultRequest) (dto.IdentificationResultResponse, error)
	GetEssay(ctx context.Context, id string) (dto.EssayResultResponse, error)
	GetIdentification(ctx context.Context, id string) (dto.IdentificationResultResponse, error)
	ListEssays(ctx context.Context, assessmentID string, limit int) ([]dto.EssayResultResponse, error)
	ListIdentifications(ctx context.Context, assessmentID string, limit int) ([]dto.IdentificationResultResponse, error)
}

type resultStoreService struct {
	repo      repository.ResultRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	newID     func() string
	now       func() time.Time
}

// NewResultStoreService constructs the result store service.
func NewResultStoreService(repo repository.ResultRepository, validate *validator.Validate, logger zerolog.Logger) ResultStoreService {
	return &resultStoreService{
		repo:      repo,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "result_store_service").Logger(),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func (s *resultStoreService) CreateEssay(ctx context.Context, payload dto.EssayResultRequest) (dto.EssayResultResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EssayResultResponse{}, err
	}

	questions, err := json.Marshal(payload.QuestionResults)
	if err != nil {
		return dto.EssayResultResponse{}, err
	}

	record := models.EssayResult{
		ID:              s.newID(),
		AssessmentID:    strings.TrimSpace(payload.AssessmentID),
		StudentName:     s.cleanName(payload.StudentName),
		Score:           payload.Score,
		QuestionResults: datatypes.JSON(questions),
		CreatedAt:       s.now().UTC(),
	}

	if err := s.repo.CreateEssay(ctx, &record); err != nil {
		return dto.EssayResultResponse{}, err
	}

	s.logger.Info().
		Str("result_id", record.ID).
		Str("assessment_id", record.AssessmentID).
		Float64("score", record.Score).
		Msg("essay result stored")

	return dto.NewEssayResultResponse(record)
}

func (s *resultStoreService) CreateIdentification(ctx context.Context, payload dto.IdentificationResultRequest) (dto.IdentificationResultResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.IdentificationResultResponse{}, err
	}

	questions, err := json.Marshal(payload.QuestionResults)
	if err != nil {
		return dto.IdentificationResultResponse{}, err
	}

	correct := 0
	for _, question := range payload.QuestionResults {
		if question.IsCorrect {
			correct++
		}
	}

	record := models.IdentificationResult{
		ID:              s.newID(),
		AssessmentID:    strings.TrimSpace(payload.AssessmentID),
		StudentName:     s.cleanName(payload.StudentName),
		CorrectCount:    correct,
		TotalItems:      len(payload.QuestionResults),
		QuestionResults: datatypes.JSON(questions),
		CreatedAt:       s.now().UTC(),
	}

	if err := s.repo.CreateIdentification(ctx, &record); err != nil {
		return dto.IdentificationResultResponse{}, err
	}

	s.logger.Info().
		Str("result_id", record.ID).
		Str("assessment_id", record.AssessmentID).
		Int("correct", record.CorrectCount).
		Int("total", record.TotalItems).
		Msg("identification result stored")

	return dto.NewIdentificationResultResponse(record)
}

func (s *resultStoreService) GetEssay(ctx context.Context, id string) (dto.EssayResultResponse, error) {
	record, err := s.repo.GetEssay(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EssayResultResponse{}, ErrResultNotFound
		}
		return dto.EssayResultResponse{}, err
	}
	return dto.NewEssayResultResponse(record)
}

func (s *resultStoreService) GetIdentification(ctx context.Context, id string) (dto.IdentificationResultResponse, error) {
	record, err := s.repo.GetIdentification(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.IdentificationResultResponse{}, ErrResultNotFound
		}
		return dto.IdentificationResultResponse{}, err
	}
	return dto.NewIdentificationResultResponse(record)
}

func (s *resultStoreService) ListEssays(ctx context.Context, assessmentID string, limit int) ([]dto.EssayResultResponse, error) {
	records, err := s.repo.ListEssays(ctx, repository.ResultFilter{AssessmentID: strings.TrimSpace(assessmentID), Limit: limit})
	if err != nil {
		return nil, err
	}

	responses := make([]dto.EssayResultResponse, 0, len(records))
	for _, record := range records {
		response, err := dto.NewEssayResultResponse(record)
		if err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}
	return responses, nil
}

func (s *resultStoreService) ListIdentifications(ctx context.Context, assessmentID string, limit int) ([]dto.IdentificationResultResponse, error) {
	records, err := s.repo.ListIdentifications(ctx, repository.ResultFilter{AssessmentID: strings.TrimSpace(assessmentID), Limit: limit})
	if err != nil {
		return nil, err
	}

	responses := make([]dto.IdentificationResultResponse, 0, len(records))
	for _, record := range records {
		response, err := dto.NewIdentificationResultResponse(record)
		if err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}
	return responses, nil
}

// cleanName strips markup from a student name recognised off a photographed sheet while
// keeping characters such as apostrophes unescaped.
func (s *resultStoreService) cleanName(name string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(name)))
}
