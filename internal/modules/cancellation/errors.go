package cancellation

import "errors"

var (
	ErrNotConfirmed        = errors.New("registration is not confirmed")
	ErrNotOwner            = errors.New("registration belongs to another user")
	ErrSkipRefundForbidden = errors.New("skipping the refund requires elevated permission")
	ErrNotAllowed          = errors.New("cancellation policy does not allow cancelling")
	ErrCutoffPassed        = errors.New("cancellation cutoff has passed")
	ErrNoPayment           = errors.New("no settled payment to refund")
	ErrManualRefund        = errors.New("payment method needs a manual refund")
	ErrRefundFailed        = errors.New("refund could not be issued")
)
