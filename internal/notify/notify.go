// Package notify defines the notification collaborator. Delivery is
// fire-and-forget from the closeout engine's perspective: a failed send
// never rolls back a committed transition.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Notification is one outbound message to a stakeholder.
type Notification struct {
	Type      string            `json:"type"`
	PermitID  string            `json:"permit_id"`
	Recipient string            `json:"recipient,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender records notifications to the process log. It stands in for
// email and SMS integrations, which live outside this system.
type LogSender struct{}

var _ Sender = (*LogSender)(nil)

// NewLogSender creates a logging notification sender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send logs the notification as a structured JSON event.
func (s *LogSender) Send(ctx context.Context, n Notification) error {
	event := map[string]interface{}{
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"level":      "info",
		"component":  "notify",
		"event_type": "notification_sent",
		"type":       n.Type,
		"permit_id":  n.PermitID,
		"recipient":  n.Recipient,
		"data":       n.Data,
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	log.Println(string(jsonData))
	return nil
}
