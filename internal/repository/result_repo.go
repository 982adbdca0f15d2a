package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-sheet-grader/internal/models"
)

// ResultFilter allows narrowing result listings.
type ResultFilter struct {
	AssessmentID string
	Limit        int
}

// ResultRepository defines data operations for graded answer sheet results.
type ResultRepository interface {
	CreateEssay(ctx context.Context, result *models.EssayResult) error
	CreateIdentification(ctx context.Context, result *models.IdentificationResult) error
	GetEssay(ctx context.Context, id string) (models.EssayResult, error)
	GetIdentification(ctx context.Context, id string) (models.IdentificationResult, error)
	ListEssays(ctx context.Context, filter ResultFilter) ([]models.EssayResult, error)
	ListIdentifications(ctx context.Context, filter ResultFilter) ([]models.IdentificationResult, error)
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository instantiates the repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) CreateEssay(ctx context.Context, result *models.EssayResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *resultRepository) CreateIdentification(ctx context.Context, result *models.IdentificationResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *resultRepository) GetEssay(ctx context.Context, id string) (models.EssayResult, error) {
	var result models.EssayResult
	if err := r.db.WithContext(ctx).First(&result, "id = ?", id).Error; err != nil {
		return models.EssayResult{}, err
	}
	return result, nil
}

func (r *resultRepository) GetIdentification(ctx context.Context, id string) (models.IdentificationResult, error) {
	var result models.IdentificationResult
	if err := r.db.WithContext(ctx).First(&result, "id = ?", id).Error; err != nil {
		return models.IdentificationResult{}, err
	}
	return result, nil
}

func (r *resultRepository) ListEssays(ctx context.Context, filter ResultFilter) ([]models.EssayResult, error) {
	var results []models.EssayResult
	if err := r.filtered(ctx, &models.EssayResult{}, filter).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *resultRepository) ListIdentifications(ctx context.Context, filter ResultFilter) ([]models.IdentificationResult, error) {
	var results []models.IdentificationResult
	if err := r.filtered(ctx, &models.IdentificationResult{}, filter).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *resultRepository) filtered(ctx context.Context, model interface{}, filter ResultFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(model)
	if filter.AssessmentID != "" {
		query = query.Where("assessment_id = ?", filter.AssessmentID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return query.Order("created_at DESC").Limit(limit)
}
