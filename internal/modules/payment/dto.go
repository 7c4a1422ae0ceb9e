package payment

import "eventreg/internal/domain"

type RegisterRequest struct {
	RegistrationOptionID string `json:"registrationOptionId" binding:"required"`
}

type RegisterResult struct {
	Registration *domain.Registration `json:"registration"`
	Transaction  *domain.Transaction  `json:"transaction,omitempty"`
	CheckoutURL  string               `json:"checkoutUrl,omitempty"`
}

type ErrorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
