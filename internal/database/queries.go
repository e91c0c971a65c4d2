package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"airpay/internal/models"
	"airpay/internal/store"
)

var (
	_ store.TransactionStore = (*TransactionStore)(nil)
	_ store.AccountStore     = (*AccountStore)(nil)
)

// ==================== Transaction Log ====================

// TransactionStore keeps the deposit log in the transactions table
type TransactionStore struct {
	db *DB
}

// NewTransactionStore creates a Postgres-backed deposit log
func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// LoadAll returns every log row in insertion order
func (s *TransactionStore) LoadAll(ctx context.Context) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	query := `
		SELECT record_id, user_id, wallet_address, private_key, amount, status,
		       balance, sweep_tx_hash, reason, created_at, updated_at
		FROM transactions
		ORDER BY id
	`
	if err := s.db.SelectContext(ctx, &txs, query); err != nil {
		return nil, fmt.Errorf("%w: failed to load transactions: %w", store.ErrPersistence, err)
	}
	return txs, nil
}

// Append inserts one log row
func (s *TransactionStore) Append(ctx context.Context, tx models.Transaction) error {
	query := `
		INSERT INTO transactions (record_id, user_id, wallet_address, private_key, amount, status,
		                          balance, sweep_tx_hash, reason, created_at, updated_at)
		VALUES (:record_id, :user_id, :wallet_address, :private_key, :amount, :status,
		        :balance, :sweep_tx_hash, :reason, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, tx); err != nil {
		return fmt.Errorf("%w: failed to append transaction %s: %w", store.ErrPersistence, tx.ID, err)
	}
	return nil
}

// ==================== Accounts ====================

// accountRow mirrors the accounts table; bulk_wallets is a TEXT[]
type accountRow struct {
	UserID                 string         `db:"user_id"`
	WalletAddress          string         `db:"wallet_address"`
	PrivateKey             string         `db:"private_key"`
	BulkWallets            pq.StringArray `db:"bulk_wallets"`
	AwaitingBulkWallets    bool           `db:"awaiting_bulk_wallets"`
	AwaitingTransferAmount bool           `db:"awaiting_transfer_amount"`
}

func (r accountRow) account() models.UserAccount {
	var wallets []string
	if len(r.BulkWallets) > 0 {
		wallets = []string(r.BulkWallets)
	}
	return models.UserAccount{
		UserID:                 r.UserID,
		WalletAddress:          r.WalletAddress,
		PrivateKey:             r.PrivateKey,
		BulkWallets:            wallets,
		AwaitingBulkWallets:    r.AwaitingBulkWallets,
		AwaitingTransferAmount: r.AwaitingTransferAmount,
	}
}

func toRow(a models.UserAccount) accountRow {
	wallets := pq.StringArray(a.BulkWallets)
	if wallets == nil {
		wallets = pq.StringArray{}
	}
	return accountRow{
		UserID:                 a.UserID,
		WalletAddress:          a.WalletAddress,
		PrivateKey:             a.PrivateKey,
		BulkWallets:            wallets,
		AwaitingBulkWallets:    a.AwaitingBulkWallets,
		AwaitingTransferAmount: a.AwaitingTransferAmount,
	}
}

const upsertAccount = `
	INSERT INTO accounts (user_id, wallet_address, private_key, bulk_wallets,
	                      awaiting_bulk_wallets, awaiting_transfer_amount, updated_at)
	VALUES (:user_id, :wallet_address, :private_key, :bulk_wallets,
	        :awaiting_bulk_wallets, :awaiting_transfer_amount, NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		wallet_address = EXCLUDED.wallet_address,
		private_key = EXCLUDED.private_key,
		bulk_wallets = EXCLUDED.bulk_wallets,
		awaiting_bulk_wallets = EXCLUDED.awaiting_bulk_wallets,
		awaiting_transfer_amount = EXCLUDED.awaiting_transfer_amount,
		updated_at = NOW()
`

// AccountStore keeps bulk accounts in the accounts table
type AccountStore struct {
	db *DB
}

// NewAccountStore creates a Postgres-backed account store
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// LoadAll returns all accounts keyed by user ID
func (s *AccountStore) LoadAll(ctx context.Context) (map[string]models.UserAccount, error) {
	var rows []accountRow
	query := `
		SELECT user_id, wallet_address, private_key, bulk_wallets,
		       awaiting_bulk_wallets, awaiting_transfer_amount
		FROM accounts
	`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: failed to load accounts: %w", store.ErrPersistence, err)
	}

	accounts := make(map[string]models.UserAccount, len(rows))
	for _, row := range rows {
		accounts[row.UserID] = row.account()
	}
	return accounts, nil
}

// SaveAll replaces the table content with accounts in one transaction
func (s *AccountStore) SaveAll(ctx context.Context, accounts map[string]models.UserAccount) error {
	err := s.db.InTransaction(func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
			return err
		}
		for id, account := range accounts {
			account.UserID = id
			if _, err := tx.NamedExecContext(ctx, upsertAccount, toRow(account)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to save accounts: %w", store.ErrPersistence, err)
	}
	return nil
}

// Get returns one account or store.ErrAccountNotFound
func (s *AccountStore) Get(ctx context.Context, userID string) (*models.UserAccount, error) {
	var row accountRow
	query := `
		SELECT user_id, wallet_address, private_key, bulk_wallets,
		       awaiting_bulk_wallets, awaiting_transfer_amount
		FROM accounts
		WHERE user_id = $1
	`
	err := s.db.GetContext(ctx, &row, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account %s: %w", store.ErrPersistence, userID, err)
	}

	account := row.account()
	return &account, nil
}

// Put upserts one account
func (s *AccountStore) Put(ctx context.Context, account models.UserAccount) error {
	if _, err := s.db.NamedExecContext(ctx, upsertAccount, toRow(account)); err != nil {
		return fmt.Errorf("%w: failed to save account %s: %w", store.ErrPersistence, account.UserID, err)
	}
	return nil
}
