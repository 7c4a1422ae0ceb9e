package cancellation

type Request struct {
	Reason     string `json:"reason" binding:"required,max=500"`
	ReasonNote string `json:"reasonNote" binding:"max=2000"`
	SkipRefund bool   `json:"skipRefund"`
}

type Result struct {
	RefundAmount                  int64 `json:"refundAmount"`
	RefundIncludesAppFees         bool  `json:"refundIncludesAppFees"`
	RefundIncludesTransactionFees bool  `json:"refundIncludesTransactionFees"`
}
