package services

import (
	"context"
	"sync"
	"time"

	"github.com/company-marketplace/backend/internal/events"
	"github.com/company-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

// Notifier is fire-and-forget: it never reports failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, recipient string, msg Message)
}

type Message struct {
	Event  string
	Text   string
	Change *models.ChangeRecord
}

// EventNotifier publishes notifications to the moderation stream from a
// background goroutine so a slow broker cannot hold up a decision.
type EventNotifier struct {
	publisher events.Publisher
	timeout   time.Duration
	log       *zap.Logger
	wg        sync.WaitGroup
}

func NewEventNotifier(publisher events.Publisher, log *zap.Logger) *EventNotifier {
	return &EventNotifier{publisher: publisher, timeout: 5 * time.Second, log: log}
}

func (n *EventNotifier) Notify(ctx context.Context, recipient string, msg Message) {
	event := events.Event{
		Type: msg.Event,
		Payload: map[string]any{
			"recipient": recipient,
			"text":      msg.Text,
		},
	}
	if msg.Change != nil {
		event.Payload["change_id"] = msg.Change.ID.String()
		event.Payload["change_type"] = string(msg.Change.ChangeType)
		event.Payload["company_id"] = msg.Change.CompanyID.String()
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.publisher.Publish(pubCtx, events.StreamModeration, event); err != nil {
			n.log.Warn("failed to publish notification",
				zap.String("recipient", recipient),
				zap.String("event", msg.Event),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every notification handed to Notify so far has been
// published or has failed. Short-lived binaries call it before exiting.
func (n *EventNotifier) Wait() {
	n.wg.Wait()
}
