package authz

import (
	"slices"

	"eventreg/internal/domain"
)

type Permission string

const (
	PermCancelAnyRegistration Permission = "registrations:cancel:any"
	PermSkipRefund            Permission = "registrations:refund:skip"
	PermCheckIn               Permission = "registrations:checkin"
)

// Can reports whether perms grants required. It is the single capability
// check every operation calls on entry.
func Can(perms []Permission, required Permission) bool {
	return slices.Contains(perms, required)
}

// UserContext is the resolved caller, passed explicitly into every call.
type UserContext struct {
	ID          string
	Permissions []Permission
}

func (u UserContext) Can(required Permission) bool {
	return Can(u.Permissions, required)
}

// TenantContext is the resolved tenant the request runs under.
type TenantContext struct {
	ID                        string
	Currency                  string
	StripeAccountID           string
	ApplicationFeePercent     float64
	EnabledDiscountProviders  []string
	DefaultCancellationPolicy domain.CancellationPolicy
}

func TenantFromModel(t *domain.Tenant) TenantContext {
	return TenantContext{
		ID:                        t.ID,
		Currency:                  t.Currency,
		StripeAccountID:           t.StripeAccountID,
		ApplicationFeePercent:     t.ApplicationFeePercent,
		EnabledDiscountProviders:  []string(t.EnabledDiscountProviders),
		DefaultCancellationPolicy: t.DefaultCancellationPolicy.Data(),
	}
}

func ParsePermissions(raw []string) []Permission {
	out := make([]Permission, 0, len(raw))
	for _, p := range raw {
		out = append(out, Permission(p))
	}
	return out
}
