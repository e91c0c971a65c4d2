// Package session tracks in-flight deposit requests per chat user.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"airpay/internal/blockchain/evm"
	"airpay/internal/models"
)

var (
	// ErrSessionActive is returned when a user already has a pending deposit
	ErrSessionActive = errors.New("deposit already in progress")
	// ErrNotAwaiting is returned when an amount arrives for a session that did not ask for one
	ErrNotAwaiting = errors.New("session is not awaiting an amount")
)

// Session is one deposit request. Fields set by Begin are immutable afterwards.
type Session struct {
	UserID       string
	TargetAmount decimal.Decimal
	Wallet       *evm.Wallet
	RecordID     string
	CreatedAt    time.Time

	mu        sync.Mutex
	status    models.DepositStatus
	updatedAt time.Time
	cancel    context.CancelFunc
	finished  bool
}

func newAwaiting(userID string, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		CreatedAt: now,
		status:    models.DepositStatusAwaitingAmount,
		updatedAt: now,
	}
}

// Status returns the current state
func (s *Session) Status() models.DepositStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// UpdatedAt returns the time of the last transition
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Begin moves an awaiting session to pending
func (s *Session) Begin(target decimal.Decimal, wallet *evm.Wallet, recordID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.DepositStatusAwaitingAmount {
		return ErrNotAwaiting
	}
	s.TargetAmount = target
	s.Wallet = wallet
	s.RecordID = recordID
	s.CreatedAt = now
	s.status = models.DepositStatusPending
	s.updatedAt = now
	return nil
}

// SetCancel attaches the handle that stops this session's polling task.
// If the session already finished, cancel is called right away.
func (s *Session) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		cancel()
		return
	}
	s.cancel = cancel
}

// Finish claims the terminal transition. Only the first caller with a
// terminal status gets true; the polling task is cancelled as part of the claim.
func (s *Session) Finish(status models.DepositStatus, now time.Time) bool {
	if !status.IsTerminal() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return false
	}
	s.finished = true
	s.status = status
	s.updatedAt = now
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// Info is a key-free view of a session
type Info struct {
	UserID        string               `json:"user_id"`
	Status        models.DepositStatus `json:"status"`
	TargetAmount  string               `json:"target_amount,omitempty"`
	WalletAddress string               `json:"wallet_address,omitempty"`
	RecordID      string               `json:"record_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		UserID:    s.UserID,
		Status:    s.status,
		RecordID:  s.RecordID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.updatedAt,
	}
	if s.Wallet != nil {
		info.TargetAmount = s.TargetAmount.String()
		info.WalletAddress = s.Wallet.Address.Hex()
	}
	return info
}
