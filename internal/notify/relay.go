// Package notify relays notification events from the bus to the messaging
// channel. It is the only component that talks outward; the command core
// just publishes notify.send and moves on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/deskly/deskbot/pkg/events"
	"github.com/deskly/deskbot/pkg/logger"
)

// Relay subscribes to notification-bearing subjects and POSTs each one to
// the channel webhook as a {recipient, text} JSON document.
type Relay struct {
	bus        events.Subscriber
	client     *http.Client
	webhookURL string
}

func New(bus events.Subscriber, client *http.Client, webhookURL string) *Relay {
	if client == nil {
		client = http.DefaultClient
	}
	return &Relay{bus: bus, client: client, webhookURL: webhookURL}
}

// Start registers the subscriptions. Handlers run on the bus's delivery
// goroutines until the bus is closed.
func (r *Relay) Start() error {
	if err := r.bus.QueueSubscribe(events.NotifySend, "notifier", r.onNotifySend); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.NotifySend, err)
	}
	if err := r.bus.QueueSubscribe(events.BookingCanceled, "notifier", r.onBookingCanceled); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.BookingCanceled, err)
	}
	return nil
}

func (r *Relay) onNotifySend(msg *events.Message) {
	var event events.NotificationEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Malformed notification event", "subject", msg.Subject, "error", err)
		return
	}
	r.deliver(event.Recipient, event.Text)
}

// onBookingCanceled tells the owner when an admin cancels their booking.
// Self-cancellations already got a reply and produce no notification.
func (r *Relay) onBookingCanceled(msg *events.Message) {
	var event events.BookingCanceledEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Malformed booking event", "subject", msg.Subject, "error", err)
		return
	}
	if !event.ByAdmin {
		return
	}
	text := fmt.Sprintf("Your booking for desk %d on %s was cancelled by an administrator.", event.Desk, event.Date)
	r.deliver(event.OwnerIdentity, text)
}

func (r *Relay) deliver(recipient, text string) {
	if r.webhookURL == "" {
		logger.Info("Notification dropped, no webhook configured", "recipient", recipient, "text", text)
		return
	}

	payload, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"text":      text,
	})
	if err != nil {
		logger.Error("Failed to encode notification", "recipient", recipient, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, r.webhookURL, bytes.NewReader(payload))
	if err != nil {
		logger.Error("Failed to build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		logger.Error("Failed to deliver notification", "recipient", recipient, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Error("Channel rejected notification", "recipient", recipient, "status", resp.StatusCode)
		return
	}
	logger.Info("Notification delivered", "recipient", recipient)
}
