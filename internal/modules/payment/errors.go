package payment

import "errors"

var (
	ErrOptionNotFound       = errors.New("registration option not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationClosed   = errors.New("registration window is closed")
	ErrNotPending           = errors.New("registration is not pending")
	ErrNotOwner             = errors.New("registration belongs to another user")
	ErrCheckoutUnavailable  = errors.New("checkout session could not be created")
	ErrCheckoutAbandoned    = errors.New("registration stopped pending during checkout")
	ErrMissingCheckInRights = errors.New("check-in requires elevated permission")
)
