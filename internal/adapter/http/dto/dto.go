package dto

import (
	"time"

	"payment-session-reconciler/internal/core/domain"
)

// CreateSessionRequest is the request body for opening a payment session.
type CreateSessionRequest struct {
	TransactionID    string  `json:"transaction_id" binding:"required,max=128,safe_id"`
	RecipientAddress string  `json:"recipient_address" binding:"required,max=128,ledger_address"`
	ExpectedAmount   string  `json:"expected_amount" binding:"required,max=78,base_units"`
	VendorEmail      string  `json:"vendor_email" binding:"required,email,max=254"`
	CustomerEmail    *string `json:"customer_email,omitempty" binding:"omitempty,email,max=254"`
	ExpiresInMinutes int     `json:"expires_in_minutes,omitempty" binding:"omitempty,min=1"`
}

// SessionResponse is the public view of a payment session.
type SessionResponse struct {
	SessionID        string  `json:"session_id"`
	TransactionID    string  `json:"transaction_id"`
	RecipientAddress string  `json:"recipient_address"`
	ExpectedAmount   string  `json:"expected_amount"`
	Status           string  `json:"status"`
	TransactionHash  *string `json:"transaction_hash,omitempty"`
	CreatedAt        string  `json:"created_at"`
	ExpiresAt        string  `json:"expires_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// NewSessionResponse converts a domain session to its response DTO.
func NewSessionResponse(s *domain.PaymentSession) SessionResponse {
	resp := SessionResponse{
		SessionID:        s.ID.String(),
		TransactionID:    s.TransactionID,
		RecipientAddress: s.RecipientAddress,
		ExpectedAmount:   s.ExpectedAmount,
		Status:           s.Status.String(),
		CreatedAt:        s.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:        s.ExpiresAt.UTC().Format(time.RFC3339),
		UpdatedAt:        s.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if s.TransactionHash != "" {
		hash := s.TransactionHash
		resp.TransactionHash = &hash
	}
	return resp
}
