package pricing

import (
	"slices"
	"time"

	"eventreg/internal/domain"
)

// Eligibility is what the user can claim for one event.
type Eligibility struct {
	EnabledProviders []string
	Credentials      []domain.DiscountCredential
	EventStart       time.Time
}

// Price is the snapshot stored on the registration.
type Price struct {
	Base            int64
	Effective       int64
	DiscountType    *string
	DiscountedPrice *int64
}

func (p Price) IsFree() bool { return p.Effective == 0 }

// holds reports a verified credential of the given type still valid when
// the event starts.
func (e Eligibility) holds(discountType string) bool {
	for _, c := range e.Credentials {
		if c.Type != discountType || c.Status != domain.DiscountCredentialVerified {
			continue
		}
		if c.ValidTo == nil || c.ValidTo.After(e.EventStart) {
			return true
		}
	}
	return false
}

// ResolveEffectivePrice picks the cheapest discount the user qualifies for.
// Ties keep the rule listed first.
func ResolveEffectivePrice(opt *domain.RegistrationOption, elig Eligibility) Price {
	if !opt.IsPaid {
		return Price{}
	}

	price := Price{Base: opt.Price, Effective: opt.Price}

	var best *domain.DiscountRule
	for i := range opt.DiscountRules {
		rule := &opt.DiscountRules[i]
		if !slices.Contains(elig.EnabledProviders, rule.DiscountType) || !elig.holds(rule.DiscountType) {
			continue
		}
		if best == nil || rule.DiscountedPrice < best.DiscountedPrice {
			best = rule
		}
	}

	if best != nil && best.DiscountedPrice < price.Base {
		discountType := best.DiscountType
		discounted := best.DiscountedPrice
		price.Effective = discounted
		price.DiscountType = &discountType
		price.DiscountedPrice = &discounted
	}
	return price
}
