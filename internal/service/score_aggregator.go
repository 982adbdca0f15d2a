package service

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gema-sheet-grader/internal/models"
)

// gradingValidator checks the data-model invariants of grading responses. Validate is
// safe for concurrent use, so aggregation stays free of shared mutable state.
var gradingValidator = validator.New(validator.WithRequiredStructEnabled())

// CriterionScore is a rubric criterion normalised to 0-100.
type CriterionScore struct {
	ID    string
	Name  string
	Score float64
}

// EssayScore is the aggregated result of an essay grading response.
type EssayScore struct {
	Overall  float64
	Criteria []CriterionScore
}

// PositionalResult is the correctness of an identification item keyed by its 1-based position.
type PositionalResult struct {
	Position    int
	IsCorrect   bool
	ManualCheck bool
}

// IdentificationScore is the aggregated result of an identification grading response.
type IdentificationScore struct {
	CorrectCount     int
	TotalItems       int
	ManualCheckCount int
	Results          []PositionalResult
}

// Fraction returns correctCount / totalItems.
func (s IdentificationScore) Fraction() float64 {
	if s.TotalItems == 0 {
		return 0
	}
	return float64(s.CorrectCount) / float64(s.TotalItems)
}

// AggregateEssay averages the normalised criterion ratings of an essay response.
func AggregateEssay(response models.EssayGradingResponse) (EssayScore, error) {
	if len(response.Criteria) == 0 {
		return EssayScore{}, &ScoringError{Reason: "essay response has no criteria"}
	}
	if err := gradingValidator.Struct(response); err != nil {
		return EssayScore{}, &ScoringError{Reason: "essay response violates rubric invariants", Err: err}
	}

	criteria := make([]CriterionScore, 0, len(response.Criteria))
	seen := make(map[string]struct{}, len(response.Criteria))
	total := 0.0
	for _, criterion := range response.Criteria {
		id := CriterionID(criterion.Name)
		if id == "" {
			return EssayScore{}, &ScoringError{Reason: "essay criterion has a blank name"}
		}
		if _, ok := seen[id]; ok {
			return EssayScore{}, &ScoringError{Reason: fmt.Sprintf("essay criterion %q is listed more than once", id)}
		}
		seen[id] = struct{}{}

		normalized := (criterion.Rating / criterion.MaxRating) * 100
		total += normalized
		criteria = append(criteria, CriterionScore{
			ID:    id,
			Name:  criterion.Name,
			Score: normalized,
		})
	}

	return EssayScore{
		Overall:  total / float64(len(criteria)),
		Criteria: criteria,
	}, nil
}

// AggregateIdentification tallies correct items of an identification response. Items are
// keyed by position (index + 1), not by their recognised item number.
func AggregateIdentification(response models.IdentificationGradingResponse) (IdentificationScore, error) {
	if len(response.Items) == 0 {
		return IdentificationScore{}, &ScoringError{Reason: "identification response has no items"}
	}
	if err := gradingValidator.Struct(response); err != nil {
		return IdentificationScore{}, &ScoringError{Reason: "identification response violates item invariants", Err: err}
	}

	score := IdentificationScore{
		TotalItems: len(response.Items),
		Results:    make([]PositionalResult, 0, len(response.Items)),
	}
	for index, item := range response.Items {
		if item.IsCorrect {
			score.CorrectCount++
		}
		if item.ManualCheck {
			score.ManualCheckCount++
		}
		score.Results = append(score.Results, PositionalResult{
			Position:    index + 1,
			IsCorrect:   item.IsCorrect,
			ManualCheck: item.ManualCheck,
		})
	}

	return score, nil
}

// CriterionID derives the persistence identifier of a rubric criterion. Names are
// compared case-insensitively, so "Grammar" and "grammar " share an id.
func CriterionID(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
