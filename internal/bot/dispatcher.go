// Package bot turns inbound chat events into deposit and bulk-withdrawal
// operations.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"go.uber.org/zap"

	"airpay/internal/notify"
)

var (
	// ErrUnknownAction is returned for button actions the bot does not offer
	ErrUnknownAction = errors.New("unknown action")
	// ErrInternal is returned when a handler panicked
	ErrInternal = errors.New("internal error")
)

// DepositFlow is the single-deposit state machine
type DepositFlow interface {
	BeginDeposit(ctx context.Context, userID string) error
	AwaitingAmount(userID string) bool
	SubmitAmount(ctx context.Context, userID, text string) error
	Cancel(ctx context.Context, userID string) error
}

// BulkFlow is the account wallet and bulk withdrawal flow
type BulkFlow interface {
	Start(ctx context.Context, userID string) error
	CheckBalance(ctx context.Context, userID string) error
	BeginTransfer(ctx context.Context, userID string) error
	HandleText(ctx context.Context, userID, text string) (bool, error)
}

// Dispatcher routes events. Events of one user are handled one at a time;
// different users proceed concurrently.
type Dispatcher struct {
	deposits DepositFlow
	bulk     BulkFlow
	notifier notify.Notifier
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock is dropped from the map once no event holds or waits for it
type userLock struct {
	sync.Mutex
	refs int
}

// NewDispatcher creates a dispatcher
func NewDispatcher(deposits DepositFlow, bulk BulkFlow, notifier notify.Notifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		deposits: deposits,
		bulk:     bulk,
		notifier: notifier,
		logger:   logger.Named("bot"),
		locks:    make(map[string]*userLock),
	}
}

// OnStart handles the /start command
func (d *Dispatcher) OnStart(ctx context.Context, userID string) error {
	return d.handle(ctx, userID, "start", func() error {
		return d.bulk.Start(ctx, userID)
	})
}

// OnAction handles an inline button press
func (d *Dispatcher) OnAction(ctx context.Context, userID, action string) error {
	return d.handle(ctx, userID, "action:"+action, func() error {
		switch action {
		case notify.ActionStartDeposit:
			return d.deposits.BeginDeposit(ctx, userID)
		case notify.ActionCancel:
			return d.deposits.Cancel(ctx, userID)
		case notify.ActionCheckBalance:
			return d.bulk.CheckBalance(ctx, userID)
		case notify.ActionStartTransfer:
			return d.bulk.BeginTransfer(ctx, userID)
		}

		if err := d.notifier.Notify(ctx, userID, notify.UnknownInput()); err != nil {
			d.logger.Error("Failed to notify user", zap.String("user_id", userID), zap.Error(err))
		}
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	})
}

// OnText handles free text. A deposit waiting for its amount takes
// precedence over the bulk flow.
func (d *Dispatcher) OnText(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	if text == "/start" || strings.HasPrefix(text, "/start ") {
		return d.OnStart(ctx, userID)
	}

	return d.handle(ctx, userID, "text", func() error {
		if d.deposits.AwaitingAmount(userID) {
			return d.deposits.SubmitAmount(ctx, userID, text)
		}

		handled, err := d.bulk.HandleText(ctx, userID, text)
		if err != nil || handled {
			return err
		}

		return d.notifier.Notify(ctx, userID, notify.UnknownInput())
	})
}

// handle serialises events per user and keeps a panicking handler from
// taking the process down.
func (d *Dispatcher) handle(ctx context.Context, userID, event string, fn func() error) (err error) {
	unlock := d.lock(userID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic recovered",
				zap.String("user_id", userID),
				zap.String("event", event),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			if nerr := d.notifier.Notify(ctx, userID, notify.InternalError()); nerr != nil {
				d.logger.Error("Failed to notify user", zap.String("user_id", userID), zap.Error(nerr))
			}
			err = ErrInternal
		}
	}()

	if err = fn(); err != nil {
		d.logger.Error("Event handling failed",
			zap.String("user_id", userID),
			zap.String("event", event),
			zap.Error(err))
	}
	return err
}

// lock blocks until userID's lock is held and returns its release
func (d *Dispatcher) lock(userID string) func() {
	d.mu.Lock()
	l, ok := d.locks[userID]
	if !ok {
		l = &userLock{}
		d.locks[userID] = l
	}
	l.refs++
	d.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, userID)
		}
		d.mu.Unlock()
	}
}
