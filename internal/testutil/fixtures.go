package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/pkg/authz"
)

const TaxRateID = "txr_inclusive"

// Fixture is a tenant with one event a week out and an inclusive tax rate.
type Fixture struct {
	DB     *gorm.DB
	Tenant *domain.Tenant
	Event  *domain.Event
}

func NewFixture(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()

	tenant := &domain.Tenant{
		Name:                     "ESN Test",
		Currency:                 "eur",
		StripeAccountID:          "acct_test",
		ApplicationFeePercent:    3.5,
		EnabledDiscountProviders: datatypes.JSONSlice[string]{"esnCard"},
		DefaultCancellationPolicy: datatypes.NewJSONType(domain.CancellationPolicy{
			AllowCancellation: true,
			CutoffDays:        1,
		}),
	}
	require.NoError(t, db.Create(tenant).Error)

	start := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Second)
	event := &domain.Event{TenantID: tenant.ID, Title: "Ski trip", Start: start, End: start.Add(48 * time.Hour)}
	require.NoError(t, db.Create(event).Error)

	require.NoError(t, db.Create(&domain.TaxRate{
		TenantID:   tenant.ID,
		ExternalID: TaxRateID,
		Inclusive:  true,
		Active:     true,
		Percentage: 19,
	}).Error)

	return &Fixture{DB: db, Tenant: tenant, Event: event}
}

func (f *Fixture) TenantContext() authz.TenantContext {
	return authz.TenantFromModel(f.Tenant)
}

// Option inserts a registration option open for registration now. Zero
// price means free.
func (f *Fixture) Option(t *testing.T, spots int, price int64, mutate ...func(*domain.RegistrationOption)) *domain.RegistrationOption {
	t.Helper()

	opt := &domain.RegistrationOption{
		TenantID:              f.Tenant.ID,
		EventID:               f.Event.ID,
		Title:                 "Participant",
		Spots:                 spots,
		IsPaid:                price > 0,
		Price:                 price,
		OpenRegistrationTime:  time.Now().Add(-time.Hour),
		CloseRegistrationTime: f.Event.Start,
	}
	if opt.IsPaid {
		ref := TaxRateID
		opt.TaxRateRef = &ref
	}
	for _, m := range mutate {
		m(opt)
	}
	require.NoError(t, f.DB.Create(opt).Error)
	return opt
}

func (f *Fixture) Reload(t *testing.T, dst any, id string) {
	t.Helper()
	require.NoError(t, f.DB.First(dst, "id = ?", id).Error)
}
