// Package store defines the record store used for deposit and account state.
package store

import (
	"context"
	"errors"

	"airpay/internal/models"
)

var (
	// ErrPersistence wraps any failed read or write of the record store
	ErrPersistence = errors.New("persistence error")
	// ErrAccountNotFound is returned by Get for unknown users
	ErrAccountNotFound = errors.New("account not found")
)

// TransactionStore is the append-only deposit log
type TransactionStore interface {
	LoadAll(ctx context.Context) ([]models.Transaction, error)
	Append(ctx context.Context, tx models.Transaction) error
}

// AccountStore holds bulk-withdrawal accounts keyed by user ID
type AccountStore interface {
	LoadAll(ctx context.Context) (map[string]models.UserAccount, error)
	SaveAll(ctx context.Context, accounts map[string]models.UserAccount) error
	Get(ctx context.Context, userID string) (*models.UserAccount, error)
	Put(ctx context.Context, account models.UserAccount) error
}
