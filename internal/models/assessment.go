package models

import (
	"errors"
	"strings"
)

// AssessmentType selects grading endpoints, scoring semantics and the persistence schema.
type AssessmentType string

const (
	// AssessmentTypeEssay grades free text against a rubric of named criteria.
	AssessmentTypeEssay AssessmentType = "essay"
	// AssessmentTypeIdentification grades fixed-answer items as correct or incorrect.
	AssessmentTypeIdentification AssessmentType = "identification"
)

// ErrUnknownAssessmentType indicates the requested assessment type is not supported.
var ErrUnknownAssessmentType = errors.New("unknown assessment type")

// ParseAssessmentType normalises raw input into a supported assessment type.
func ParseAssessmentType(raw string) (AssessmentType, error) {
	switch AssessmentType(strings.ToLower(strings.TrimSpace(raw))) {
	case AssessmentTypeEssay:
		return AssessmentTypeEssay, nil
	case AssessmentTypeIdentification:
		return AssessmentTypeIdentification, nil
	default:
		return "", ErrUnknownAssessmentType
	}
}

func (t AssessmentType) String() string {
	return string(t)
}

// EssayGradingResponse is the grading service output for an essay answer sheet.
type EssayGradingResponse struct {
	StudentName  string                 `json:"studentName"`
	EssayContent string                 `json:"essayContent"`
	Criteria     []RubricCriterionScore `json:"criteria" validate:"required,min=1,dive"`
}

// RubricCriterionScore is the rating awarded for one rubric criterion.
type RubricCriterionScore struct {
	Name      string  `json:"name" validate:"required"`
	Rating    float64 `json:"rating" validate:"gte=0,ltefield=MaxRating"`
	MaxRating float64 `json:"maxRating" validate:"gt=0"`
}

// IdentificationGradingResponse is the grading service output for an identification sheet.
type IdentificationGradingResponse struct {
	StudentName string               `json:"studentName"`
	Items       []IdentificationItem `json:"items" validate:"required,min=1,dive"`
}

// IdentificationItem is a single recognised answer. ManualCheck flags ambiguous
// recognition for human review and never affects scoring.
type IdentificationItem struct {
	ItemNumber    int    `json:"itemNumber" validate:"gte=1"`
	CorrectAnswer string `json:"correctAnswer"`
	StudentAnswer string `json:"studentAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
	ManualCheck   bool   `json:"manualCheck"`
}

// PersistedResult is the backend acknowledgement of a stored result.
type PersistedResult struct {
	ID string `json:"id"`
}
