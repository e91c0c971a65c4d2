package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus represents the state of a deposit session
type DepositStatus string

const (
	DepositStatusAwaitingAmount DepositStatus = "awaiting_amount" // in-memory only
	DepositStatusPending        DepositStatus = "pending"
	DepositStatusConfirmed      DepositStatus = "confirmed"
	DepositStatusExpired        DepositStatus = "expired"
	DepositStatusError          DepositStatus = "error"
)

// IsTerminal reports whether no further transitions can happen
func (s DepositStatus) IsTerminal() bool {
	switch s {
	case DepositStatusConfirmed, DepositStatusExpired, DepositStatusError:
		return true
	}
	return false
}

// Reasons attached to terminal records
const (
	ReasonCancelled   = "cancelled"
	ReasonSweepFailed = "sweep_failed"
)

// Transaction is one entry of the append-only deposit log. Every state
// transition appends a new entry sharing the ID of the pending entry.
type Transaction struct {
	ID            string          `json:"id" db:"record_id"`
	UserID        string          `json:"userId" db:"user_id"`
	WalletAddress string          `json:"walletAddress" db:"wallet_address"`
	PrivateKey    string          `json:"privateKey" db:"private_key"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Status        DepositStatus   `json:"status" db:"status"`
	Balance       *string         `json:"balance,omitempty" db:"balance"`
	SweepTxHash   *string         `json:"sweepTxHash,omitempty" db:"sweep_tx_hash"`
	Reason        *string         `json:"reason,omitempty" db:"reason"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     *time.Time      `json:"updatedAt,omitempty" db:"updated_at"`
}

// UserAccount is the persistent bulk-withdrawal wallet of a user
type UserAccount struct {
	UserID                 string   `json:"-" db:"user_id"`
	WalletAddress          string   `json:"walletAddress" db:"wallet_address"`
	PrivateKey             string   `json:"privateKey" db:"private_key"`
	BulkWallets            []string `json:"bulkWallets,omitempty" db:"-"`
	AwaitingBulkWallets    bool     `json:"awaitingBulkWallets,omitempty" db:"awaiting_bulk_wallets"`
	AwaitingTransferAmount bool     `json:"awaitingTransferAmount,omitempty" db:"awaiting_transfer_amount"`
}

// LatestTransactions folds the log to the newest entry per record ID,
// ordered by creation time.
func LatestTransactions(log []Transaction) []Transaction {
	index := make(map[string]int)
	latest := make([]Transaction, 0, len(log))

	for _, tx := range log {
		if i, ok := index[tx.ID]; ok {
			latest[i] = tx
			continue
		}
		index[tx.ID] = len(latest)
		latest = append(latest, tx)
	}

	sort.SliceStable(latest, func(i, j int) bool {
		return latest[i].CreatedAt.Before(latest[j].CreatedAt)
	})
	return latest
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
