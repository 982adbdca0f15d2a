package models

import (
	"time"

	"gorm.io/datatypes"
)

// EssayResult is a persisted essay grading record held by the result store.
type EssayResult struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	AssessmentID    string         `gorm:"size:128;index;not null" json:"assessmentId"`
	StudentName     string         `gorm:"size:255" json:"studentName"`
	Score           float64        `gorm:"not null" json:"score"`
	QuestionResults datatypes.JSON `gorm:"type:json" json:"questionResults"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// IdentificationResult is a persisted identification grading record.
type IdentificationResult struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	AssessmentID    string         `gorm:"size:128;index;not null" json:"assessmentId"`
	StudentName     string         `gorm:"size:255" json:"studentName"`
	CorrectCount    int            `json:"correctCount"`
	TotalItems      int            `json:"totalItems"`
	QuestionResults datatypes.JSON `gorm:"type:json" json:"questionResults"`
	CreatedAt       time.Time      `json:"createdAt"`
}
