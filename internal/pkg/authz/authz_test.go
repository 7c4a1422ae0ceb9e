package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"eventreg/internal/domain"
)

func TestCan(t *testing.T) {
	perms := ParsePermissions([]string{"registrations:cancel:any", "other"})

	assert.True(t, Can(perms, PermCancelAnyRegistration))
	assert.False(t, Can(perms, PermSkipRefund))
	assert.False(t, Can(nil, PermCheckIn))

	u := UserContext{ID: "u1", Permissions: perms}
	assert.True(t, u.Can(PermCancelAnyRegistration))
}

func TestTenantFromModel(t *testing.T) {
	policy := domain.CancellationPolicy{AllowCancellation: true, CutoffDays: 2}
	tc := TenantFromModel(&domain.Tenant{
		ID:                        "t1",
		Currency:                  "eur",
		StripeAccountID:           "acct_1",
		EnabledDiscountProviders:  datatypes.JSONSlice[string]{"esnCard"},
		DefaultCancellationPolicy: datatypes.NewJSONType(policy),
	})

	assert.Equal(t, "t1", tc.ID)
	assert.Equal(t, []string{"esnCard"}, tc.EnabledDiscountProviders)
	assert.Equal(t, policy, tc.DefaultCancellationPolicy)
}
