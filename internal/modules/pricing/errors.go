package pricing

import "errors"

var (
	ErrPaidRequiresTaxRate   = errors.New("paid option requires a tax rate")
	ErrFreeCannotHaveTaxRate = errors.New("free option cannot have a tax rate")
	ErrIncompatibleTaxRate   = errors.New("tax rate missing, inactive or exclusive")
	ErrInvalidOption         = errors.New("invalid registration option")
)
