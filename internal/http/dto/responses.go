package dto

import "time"

type AuthResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type PaymentInfoResponse struct {
	DealID            string     `json:"deal_id"`
	PaymentAddress    string     `json:"payment_address"`
	AmountNano        int64      `json:"amount_nano"`
	ReceivedNano      int64      `json:"received_nano"`
	Currency          string     `json:"currency"`
	PaymentDeadlineAt *time.Time `json:"payment_deadline_at,omitempty"`
	Status            string     `json:"status"`
}
