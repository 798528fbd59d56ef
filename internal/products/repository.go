package product

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/internal/repo"
	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
)

// Repository reads the catalog. Product CRUD is owned by the catalog service;
// the order engine reads price and availability at checkout, and the stock
// ledger is the only writer of quantity.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type repository struct {
	repo.Base
}

// NewRepository constructs a read-only product repo over the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs returns the products that exist among ids; callers compare the
// result against what they asked for to spot dangling references.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []models.Product
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}
