package domain

// Models lists every table owned by the engine, in migration order.
func Models() []any {
	return []any{
		&Tenant{},
		&Event{},
		&TaxRate{},
		&DiscountCredential{},
		&RegistrationOption{},
		&Registration{},
		&Transaction{},
		&ProcessedEvent{},
	}
}
