package ledger

import "errors"

var (
	ErrEventFull        = errors.New("no free spots left")
	ErrOptionNotFound   = errors.New("registration option not found")
	ErrCounterUnderflow = errors.New("spot counter would drop below zero")
	ErrCheckInOverflow  = errors.New("checked-in spots would exceed confirmed spots")
)
