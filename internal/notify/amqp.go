package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// Event is the JSON body published for every notification
type Event struct {
	UserID  string    `json:"user_id"`
	Message Message   `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// AMQP publishes notifications to a topic exchange, routed as "notify.<userID>"
type AMQP struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQP dials uri and declares the exchange
func NewAMQP(uri, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQP{conn: conn, exchange: exchange, ch: ch}, nil
}

// Notify implements Notifier
func (a *AMQP) Notify(_ context.Context, userID string, msg Message) error {
	body, err := json.Marshal(Event{UserID: userID, Message: msg, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// channels die on any protocol error; reopen lazily
	if a.ch == nil {
		if a.ch, err = a.conn.Channel(); err != nil {
			return fmt.Errorf("failed to open channel: %w", err)
		}
	}

	pub := amqp.Publishing{
		Headers:     amqp.Table{"x-user-id": userID},
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	}
	if err := a.ch.Publish(a.exchange, "notify."+userID, false, false, pub); err != nil {
		a.ch.Close()
		a.ch = nil
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close closes the channel and connection
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ch != nil {
		a.ch.Close()
		a.ch = nil
	}
	return a.conn.Close()
}
