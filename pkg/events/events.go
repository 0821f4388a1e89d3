package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/deskly/deskbot/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	BookingCreated  = "booking.created"
	BookingCanceled = "booking.canceled"

	UserRegistered    = "user.registered"
	UserAdded         = "user.added"
	UserRemoved       = "user.removed"
	UserPromoted      = "user.promoted"
	UserRevoked       = "user.revoked"
	UserBlacklisted   = "user.blacklisted"
	UserUnblacklisted = "user.unblacklisted"

	NotifySend = "notify.send"
)

// Event payloads
type BookingCreatedEvent struct {
	BookingID     int64     `json:"booking_id"`
	OwnerIdentity string    `json:"owner_identity"`
	Date          string    `json:"date"`
	Desk          int       `json:"desk"`
	CreatedAt     time.Time `json:"created_at"`
}

type BookingCanceledEvent struct {
	BookingID     int64     `json:"booking_id"`
	OwnerIdentity string    `json:"owner_identity"`
	Date          string    `json:"date"`
	Desk          int       `json:"desk"`
	ByAdmin       bool      `json:"by_admin"`
	CanceledAt    time.Time `json:"canceled_at"`
}

type UserEvent struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type NotificationEvent struct {
	Recipient string                 `json:"recipient"`
	Text      string                 `json:"text"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
