package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/gema-sheet-grader/internal/models"
)

// EssayResultRequest is the persistence payload for a graded essay.
type EssayResultRequest struct {
	StudentName     string                `json:"studentName"`
	AssessmentID    string                `json:"assessmentId" validate:"required"`
	Score           float64               `json:"score" validate:"gte=0,lte=100"`
	QuestionResults []EssayQuestionResult `json:"questionResults" validate:"required,min=1,dive"`
}

// EssayQuestionResult carries the score of one essay question and its rubric breakdown.
type EssayQuestionResult struct {
	QuestionID           string                `json:"questionId" validate:"required"`
	Score                float64               `json:"score" validate:"gte=0,lte=100"`
	EssayCriteriaResults []EssayCriteriaResult `json:"essayCriteriaResults" validate:"required,min=1,dive"`
}

// EssayCriteriaResult is a normalised per-criterion score.
type EssayCriteriaResult struct {
	CriteriaID string  `json:"criteriaId" validate:"required"`
	Score      float64 `json:"score" validate:"gte=0,lte=100"`
}

// IdentificationResultRequest is the persistence payload for a graded identification sheet.
type IdentificationResultRequest struct {
	StudentName     string                         `json:"studentName"`
	AssessmentID    string                         `json:"assessmentId" validate:"required"`
	QuestionResults []IdentificationQuestionResult `json:"questionResults" validate:"required,min=1,dive"`
}

// IdentificationQuestionResult records whether the answer at a position was correct.
type IdentificationQuestionResult struct {
	QuestionID string `json:"questionId" validate:"required"`
	IsCorrect  bool   `json:"isCorrect"`
}

// EssayResultResponse is returned by the result store for essay records.
type EssayResultResponse struct {
	ID              string                `json:"id"`
	AssessmentID    string                `json:"assessmentId"`
	StudentName     string                `json:"studentName"`
	Score           float64               `json:"score"`
	QuestionResults []EssayQuestionResult `json:"questionResults"`
	CreatedAt       time.Time             `json:"createdAt"`
}

// IdentificationResultResponse is returned by the result store for identification records.
type IdentificationResultResponse struct {
	ID              string                         `json:"id"`
	AssessmentID    string                         `json:"assessmentId"`
	StudentName     string                         `json:"studentName"`
	CorrectCount    int                            `json:"correctCount"`
	TotalItems      int                            `json:"totalItems"`
	QuestionResults []IdentificationQuestionResult `json:"questionResults"`
	CreatedAt       time.Time                      `json:"createdAt"`
}

// NewEssayResultResponse converts a stored essay record into a DTO. Stored question
// results that no longer decode are reported rather than dropped.
func NewEssayResultResponse(model models.EssayResult) (EssayResultResponse, error) {
	response := EssayResultResponse{
		ID:           model.ID,
		AssessmentID: model.AssessmentID,
		StudentName:  model.StudentName,
		Score:        model.Score,
		CreatedAt:    model.CreatedAt,
	}
	if len(model.QuestionResults) > 0 {
		if err := json.Unmarshal(model.QuestionResults, &response.QuestionResults); err != nil {
			return EssayResultResponse{}, fmt.Errorf("decode question results of essay result %s: %w", model.ID, err)
		}
	}
	return response, nil
}

// NewIdentificationResultResponse converts a stored identification record into a DTO.
func NewIdentificationResultResponse(model models.IdentificationResult) (IdentificationResultResponse, error) {
	response := IdentificationResultResponse{
		ID:           model.ID,
		AssessmentID: model.AssessmentID,
		StudentName:  model.StudentName,
		CorrectCount: model.CorrectCount,
		TotalItems:   model.TotalItems,
		CreatedAt:    model.CreatedAt,
	}
	if len(model.QuestionResults) > 0 {
		if err := json.Unmarshal(model.QuestionResults, &response.QuestionResults); err != nil {
			return IdentificationResultResponse{}, fmt.Errorf("decode question results of identification result %s: %w", model.ID, err)
		}
	}
	return response, nil
}
