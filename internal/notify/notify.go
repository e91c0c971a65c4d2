// Package notify delivers user-facing status messages.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Action IDs carried by inline buttons
const (
	ActionStartDeposit  = "start_deposit"
	ActionCancel        = "cancel_process"
	ActionCheckBalance  = "check_balance"
	ActionStartTransfer = "start_transfer"
)

// Button is an inline action offered with a message
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Message is one outbound notification. Text may contain <code> markup.
type Message struct {
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
}

// Notifier sends a message to a chat user
type Notifier interface {
	Notify(ctx context.Context, userID string, msg Message) error
}

// Multi fans a message out to several notifiers
type Multi []Notifier

// Notify delivers to all notifiers and joins their errors
func (m Multi) Notify(ctx context.Context, userID string, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes messages to the logger; used when no chat transport is configured
type Log struct {
	logger *zap.Logger
}

// NewLog creates a logging notifier
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify")}
}

// Notify implements Notifier
func (l *Log) Notify(_ context.Context, userID string, msg Message) error {
	actions := make([]string, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		actions = append(actions, b.Action)
	}
	l.logger.Info("Notification",
		zap.String("user_id", userID),
		zap.String("text", msg.Text),
		zap.Strings("actions", actions))
	return nil
}
