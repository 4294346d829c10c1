package plans

import (
	"context"

	"gorm.io/gorm"

	"github.com/kolabz/kolabz-backend/pkg/db/models"
)

// Repository handles subscription plan persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, plan *models.SubscriptionPlan) error
	Update(ctx context.Context, plan *models.SubscriptionPlan) error
	List(ctx context.Context, query ListQuery) ([]models.SubscriptionPlan, error)
	FindByID(ctx context.Context, id string) (*models.SubscriptionPlan, error)
	Delete(ctx context.Context, id string) error
}

// ListQuery configures plan list queries.
type ListQuery struct {
	ActiveOnly bool
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, plan *models.SubscriptionPlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repository) Update(ctx context.Context, plan *models.SubscriptionPlan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.SubscriptionPlan, error) {
	q := r.db.WithContext(ctx).Model(&models.SubscriptionPlan{})
	if query.ActiveOnly {
		q = q.Where("active = ?", true)
	}

	var plans []models.SubscriptionPlan
	if err := q.Order("price_monthly ASC, id ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	if id == "" {
		return nil, nil
	}
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.SubscriptionPlan{}).Error
}
