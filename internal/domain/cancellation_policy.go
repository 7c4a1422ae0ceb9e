package domain

// CancellationPolicy is copied onto every registration at creation time, so
// later edits never change the terms of an existing registration.
type CancellationPolicy struct {
	AllowCancellation      bool `json:"allowCancellation"`
	IncludeTransactionFees bool `json:"includeTransactionFees"`
	IncludeAppFees         bool `json:"includeAppFees"`
	CutoffDays             int  `json:"cutoffDays" validate:"gte=0"`
	CutoffHours            int  `json:"cutoffHours" validate:"gte=0,lte=23"`
}
