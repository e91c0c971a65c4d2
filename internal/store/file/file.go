// Package file implements the record store as JSON files on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"airpay/internal/models"
	"airpay/internal/store"
)

const filePerm = 0o600 // files carry private keys

var (
	_ store.TransactionStore = (*TransactionLog)(nil)
	_ store.AccountStore     = (*AccountFile)(nil)
)

// TransactionLog is a JSON array of transaction records
type TransactionLog struct {
	path string
	mu   sync.Mutex
}

// NewTransactionLog returns a log backed by path. The file is created on first append.
func NewTransactionLog(path string) *TransactionLog {
	return &TransactionLog{path: path}
}

// LoadAll returns every entry in append order
func (l *TransactionLog) LoadAll(ctx context.Context) ([]models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Append adds tx to the end of the log, rewriting the file atomically
func (l *TransactionLog) Append(ctx context.Context, tx models.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	txs, err := l.load()
	if err != nil {
		return err
	}
	txs = append(txs, tx)
	return writeJSON(l.path, txs)
}

func (l *TransactionLog) load() ([]models.Transaction, error) {
	txs := []models.Transaction{}
	if err := readJSON(l.path, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// AccountFile is a JSON object mapping user ID to account
type AccountFile struct {
	path string
	mu   sync.Mutex
}

// NewAccountFile returns an account store backed by path
func NewAccountFile(path string) *AccountFile {
	return &AccountFile{path: path}
}

// LoadAll returns all accounts
func (f *AccountFile) LoadAll(ctx context.Context) (map[string]models.UserAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// SaveAll replaces the whole file with accounts
func (f *AccountFile) SaveAll(ctx context.Context, accounts map[string]models.UserAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSON(f.path, accounts)
}

// Get returns the account of userID or store.ErrAccountNotFound
func (f *AccountFile) Get(ctx context.Context, userID string) (*models.UserAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	accounts, err := f.load()
	if err != nil {
		return nil, err
	}
	account, ok := accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &account, nil
}

// Put inserts or replaces one account under the file lock
func (f *AccountFile) Put(ctx context.Context, account models.UserAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	accounts, err := f.load()
	if err != nil {
		return err
	}
	accounts[account.UserID] = account
	return writeJSON(f.path, accounts)
}

func (f *AccountFile) load() (map[string]models.UserAccount, error) {
	accounts := make(map[string]models.UserAccount)
	if err := readJSON(f.path, &accounts); err != nil {
		return nil, err
	}
	// the key is the user ID; it is not repeated inside the record
	for id, account := range accounts {
		account.UserID = id
		accounts[id] = account
	}
	return accounts, nil
}

// readJSON decodes path into v. A missing or empty file leaves v untouched.
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %w", store.ErrPersistence, path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %w", store.ErrPersistence, path, err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s: %w", store.ErrPersistence, path, err)
	}
	if err := writeAtomic(path, data, filePerm); err != nil {
		return fmt.Errorf("%w: %w", store.ErrPersistence, err)
	}
	return nil
}

// writeAtomic writes to a temp file in the same directory, syncs, then
// renames over path so readers never observe a partial file.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmpFile.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmpFile.Close()
		}
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	closed = true

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		_ = dirFile.Close()
	}
	return nil
}
