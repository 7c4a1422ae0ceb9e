package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/pkg/apperr"
	"eventreg/internal/pkg/authz"
	"eventreg/internal/pkg/validator"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ValidateTaxRate must pass before an option is created, edited or
// registered for.
func (s *Service) ValidateTaxRate(ctx context.Context, tenantID string, isPaid bool, taxRateRef *string) error {
	hasRef := taxRateRef != nil && *taxRateRef != ""

	switch {
	case isPaid && !hasRef:
		return apperr.BadRequestErr(apperr.CodePaidRequiresTaxRate, ErrPaidRequiresTaxRate, "paid registration options require a tax rate")
	case !isPaid && hasRef:
		return apperr.BadRequestErr(apperr.CodeFreeCannotHaveTaxRate, ErrFreeCannotHaveTaxRate, "free registration options cannot have a tax rate")
	case !isPaid:
		return nil
	}

	var rate domain.TaxRate
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", tenantID, *taxRateRef).
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.BadRequestErr(apperr.CodeIncompatibleTaxRate, ErrIncompatibleTaxRate, "tax rate not found for tenant")
	}
	if err != nil {
		return apperr.Wrap(fmt.Errorf("load tax rate: %w", err))
	}
	if !rate.Compatible() {
		return apperr.BadRequestErr(apperr.CodeIncompatibleTaxRate, ErrIncompatibleTaxRate, "tax rate must be inclusive and active")
	}
	return nil
}

// ValidateOption checks an option's configuration before it is saved.
func (s *Service) ValidateOption(ctx context.Context, opt *domain.RegistrationOption) error {
	if errs := validator.Validate(opt); errs != nil {
		return apperr.BadRequestErr("", fmt.Errorf("%w: %v", ErrInvalidOption, errs), "invalid registration option")
	}
	if opt.CancellationPolicy != nil {
		if errs := validator.Validate(opt.CancellationPolicy); errs != nil {
			return apperr.BadRequestErr("", fmt.Errorf("%w: %v", ErrInvalidOption, errs), "invalid cancellation policy")
		}
	}
	if opt.IsPaid && opt.Price <= 0 {
		return apperr.BadRequestErr("", ErrInvalidOption, "paid registration options need a positive price")
	}
	return s.ValidateTaxRate(ctx, opt.TenantID, opt.IsPaid, opt.TaxRateRef)
}

// LoadEligibility gathers the user's discount credentials for the tenant.
func (s *Service) LoadEligibility(ctx context.Context, tenant authz.TenantContext, userID string, eventStart time.Time) (Eligibility, error) {
	var creds []domain.DiscountCredential
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenant.ID, userID).
		Find(&creds).Error
	if err != nil {
		return Eligibility{}, fmt.Errorf("load discount credentials: %w", err)
	}
	return Eligibility{
		EnabledProviders: tenant.EnabledDiscountProviders,
		Credentials:      creds,
		EventStart:       eventStart,
	}, nil
}
