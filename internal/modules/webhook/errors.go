package webhook

import "errors"

var (
	ErrUnknownCharge   = errors.New("charge not linked to any transaction yet")
	ErrSessionMismatch = errors.New("gateway returned a different session")
)
