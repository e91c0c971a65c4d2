package api

import (
	"time"

	"airpay/internal/models"
	"airpay/internal/session"
)

// ==================== Events ====================

// Event types accepted by POST /api/v1/events
const (
	EventStart  = "start"
	EventAction = "action"
	EventText   = "text"
)

// EventRequest injects a chat event without going through Telegram
type EventRequest struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	Text   string `json:"text,omitempty"`
}

// EventResponse acknowledges a processed event
type EventResponse struct {
	Status string `json:"status"`
}

// ==================== Transactions ====================

// TransactionSummary is a deposit record without its private key
type TransactionSummary struct {
	ID            string               `json:"id"`
	WalletAddress string               `json:"wallet_address"`
	Amount        string               `json:"amount"`
	Status        models.DepositStatus `json:"status"`
	Balance       *string              `json:"balance,omitempty"`
	SweepTxHash   *string              `json:"sweep_tx_hash,omitempty"`
	Reason        *string              `json:"reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     *time.Time           `json:"updated_at,omitempty"`
}

// GetUserTransactionsResponse represents response with user's deposits
type GetUserTransactionsResponse struct {
	UserID       string               `json:"user_id"`
	Transactions []TransactionSummary `json:"transactions"`
}

// ==================== Sessions ====================

// GetSessionsResponse lists in-flight deposit sessions
type GetSessionsResponse struct {
	Count    int            `json:"count"`
	Sessions []session.Info `json:"sessions"`
}

// ==================== Fees ====================

// GetFeesResponse represents the current cost of a plain transfer
type GetFeesResponse struct {
	GasPriceWei    string `json:"gas_price_wei"`
	GasLimit       uint64 `json:"gas_limit"`
	TransferFeeWei string `json:"transfer_fee_wei"`
	TransferFee    string `json:"transfer_fee"`
}

// ==================== Error Response ====================

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==================== Health Check ====================

// HealthResponse represents health check response
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version,omitempty"`
	ChainID        int64  `json:"chain_id"`
	ActiveSessions int    `json:"active_sessions"`
}
