package registration

import "errors"

var (
	ErrAlreadyRegistered = errors.New("user already registered for this event")
	ErrNotFound          = errors.New("registration not found")
	ErrInvalidTransition = errors.New("registration cannot move to the requested status")
	ErrUnexpectedStatus  = errors.New("registration is no longer in the expected status")
	ErrAlreadyCheckedIn  = errors.New("registration already checked in")
)
