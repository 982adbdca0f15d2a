package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-sheet-grader/internal/models"
)

func setupResultDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.EssayResult{}, &models.IdentificationResult{}))
	return db
}

func TestResultRepositoryEssayRoundTrip(t *testing.T) {
	repo := NewResultRepository(setupResultDB(t))
	ctx := context.Background()

	record := models.EssayResult{
		ID:              "essay-1",
		AssessmentID:    "asm-1",
		StudentName:     "Juan",
		Score:           83.3,
		QuestionResults: datatypes.JSON(`[{"questionId":"1","score":83.3,"essayCriteriaResults":[]}]`),
	}
	require.NoError(t, repo.CreateEssay(ctx, &record))

	stored, err := repo.GetEssay(ctx, "essay-1")
	require.NoError(t, err)
	require.Equal(t, "asm-1", stored.AssessmentID)
	require.InDelta(t, 83.3, stored.Score, 1e-9)

	_, err = repo.GetEssay(ctx, "missing")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestResultRepositoryListsByAssessment(t *testing.T) {
	repo := NewResultRepository(setupResultDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for i, assessment := range []string{"asm-1", "asm-1", "asm-2"} {
		record := models.IdentificationResult{
			ID:           []string{"a", "b", "c"}[i],
			AssessmentID: assessment,
			CorrectCount: i,
			TotalItems:   10,
			CreatedAt:    now.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.CreateIdentification(ctx, &record))
	}

	results, err := repo.ListIdentifications(ctx, ResultFilter{AssessmentID: "asm-1"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "b", results[0].ID)

	essays, err := repo.ListEssays(ctx, ResultFilter{})
	require.NoError(t, err)
	require.Empty(t, essays)
}
