package repository

import (
	"context"

	"eventreg/internal/domain"

	"gorm.io/gorm"
)

// TenantRepository reads tenants resolved by the identity layer.
type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) GetByStripeAccount(ctx context.Context, accountID string) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := r.db.WithContext(ctx).Where("stripe_account_id = ?", accountID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
